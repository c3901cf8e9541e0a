package transform

import (
	"regexp"
	"strings"
)

var (
	blockOpenPattern = regexp.MustCompile(`(?i)<(p|h[1-6]|li|blockquote|ul|ol)(\s[^>]*)?>`)
	spaceBetweenTags = regexp.MustCompile(`>\s+<`)
	repeatedSpace    = regexp.MustCompile(`[ \t]{2,}`)
	blankLinePattern = regexp.MustCompile(`\n\s*\n`)
)

// SplitFragments cuts transform output into complete block elements so they
// can be revealed one at a time. Text between blocks stays attached to the
// following block, and the fragments always concatenate back to text.
func SplitFragments(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lower := asciiLower(text)
	var fragments []string
	from, pos := 0, 0
	for pos < len(text) {
		loc := blockOpenPattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		tag := lower[pos+loc[2] : pos+loc[3]]
		bodyStart := pos + loc[1]
		closeIdx := strings.Index(lower[bodyStart:], "</"+tag+">")
		if closeIdx < 0 {
			break
		}
		end := bodyStart + closeIdx + len("</"+tag+">")
		fragments = append(fragments, text[from:end])
		from, pos = end, end
	}

	if from < len(text) {
		rest := text[from:]
		if len(fragments) > 0 && strings.TrimSpace(rest) == "" {
			fragments[len(fragments)-1] += rest
		} else {
			fragments = append(fragments, rest)
		}
	}
	return fragments
}

// Tidy squeezes the whitespace a model tends to leave around markup.
func Tidy(text string) string {
	text = spaceBetweenTags.ReplaceAllString(text, "><")
	text = repeatedSpace.ReplaceAllString(text, " ")
	for blankLinePattern.MatchString(text) {
		text = blankLinePattern.ReplaceAllString(text, "\n")
	}
	return strings.TrimSpace(text)
}

// asciiLower lowercases ASCII letters only so byte offsets stay aligned with
// the original string.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
