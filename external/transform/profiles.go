package transform

import (
	"strings"

	"github.com/foxseedlab/mojinote/internal/transform"
)

// Profile is the prompt and sampling setup of one pipeline stage.
type Profile struct {
	Name        string
	System      string
	Instruction string
	Temperature float64
	MaxTokens   int
	Tidy        bool
	// MinRunes short-circuits inputs too small to be worth a request.
	MinRunes int
}

func (p Profile) userMessage(req transform.Request) string {
	var b strings.Builder
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("Previous output, for continuity only. Do not repeat it:\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}
	b.WriteString(p.Instruction)
	b.WriteString("\n\n")
	b.WriteString(req.Text)
	return b.String()
}

var OrganizeProfile = Profile{
	Name: "organize",
	System: "You turn raw speech transcripts into clean note text. " +
		"Fix recognition errors, drop filler words and false starts, and keep every fact. " +
		"Reply with simple HTML paragraphs only.",
	Instruction: "Organize this transcript into readable paragraphs:",
	Temperature: 0.3,
	MaxTokens:   1200,
	Tidy:        true,
	MinRunes:    20,
}

var FormatProfile = Profile{
	Name: "format",
	System: "You format study notes. Add headings, lists and emphasis where they help. " +
		"Never drop or invent content. Reply with HTML using p, h2, h3, ul, ol, li and blockquote.",
	Instruction: "Format these notes:",
	Temperature: 0.2,
	MaxTokens:   2000,
	MinRunes:    10,
}

var PolishProfile = Profile{
	Name: "polish",
	System: "You polish formatted study notes. Merge duplicates, tighten wording and fix structure. " +
		"Keep the HTML elements already used and never drop content.",
	Instruction: "Polish these notes:",
	Temperature: 0.2,
	MaxTokens:   3000,
	MinRunes:    20,
}

var CleanupProfile = Profile{
	Name: "cleanup",
	System: "You finish a note at the end of a session. Make the unfinished tail consistent with " +
		"the rest of the note. Keep the HTML elements already used and never drop content.",
	Instruction: "Clean up the end of this note:",
	Temperature: 0.2,
	MaxTokens:   4000,
	MinRunes:    20,
}
