package pipeline

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// TranscriptBuffer collects Layer 1 text until the next organize pass drains
// it. Between drains it only grows.
type TranscriptBuffer struct {
	mu    sync.Mutex
	text  string
	armed bool
}

// Append adds text and reports the buffered length in runes.
func (b *TranscriptBuffer) Append(text string) int {
	text = strings.TrimSpace(text)

	b.mu.Lock()
	defer b.mu.Unlock()
	if text != "" {
		if b.text == "" {
			b.text = text
		} else {
			b.text += " " + text
		}
		b.armed = true
	}
	return utf8.RuneCountInString(b.text)
}

// Drain empties the buffer and returns what it held.
func (b *TranscriptBuffer) Drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	text := b.text
	b.text = ""
	b.armed = false
	return text
}

// Restore puts drained text back in front of anything appended since.
func (b *TranscriptBuffer) Restore(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.text == "" {
		b.text = text
	} else {
		b.text = text + " " + b.text
	}
	b.armed = true
}

func (b *TranscriptBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return utf8.RuneCountInString(b.text)
}

// Armed reports whether text is waiting for an organize pass.
func (b *TranscriptBuffer) Armed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}
