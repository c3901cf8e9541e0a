package pipeline

import (
	"strings"
	"testing"
)

func TestTranscriptBufferDrainAndRestore(t *testing.T) {
	t.Parallel()

	var b TranscriptBuffer
	if b.Armed() {
		t.Fatal("empty buffer is armed")
	}
	b.Append("alpha")
	if n := b.Append("  beta "); n != len("alpha beta") {
		t.Fatalf("Append() len = %d", n)
	}
	b.Append("   ")
	if !b.Armed() {
		t.Fatal("buffer with text is not armed")
	}

	drained := b.Drain()
	if drained != "alpha beta" || b.Len() != 0 || b.Armed() {
		t.Fatalf("Drain() = %q, len after = %d", drained, b.Len())
	}

	b.Append("gamma")
	b.Restore(drained)
	if got := b.Drain(); got != "alpha beta gamma" {
		t.Fatalf("after restore = %q", got)
	}
}

func TestContextWindowTrimsAndSendsTail(t *testing.T) {
	t.Parallel()

	w := newContextWindow(5, 8, 3)
	w.Add("abcd")
	if got := w.Hint(); got != "bcd" {
		t.Fatalf("Hint() = %q", got)
	}
	w.Add("efgh")
	if got := string(w.text); got != "\nefgh" {
		t.Fatalf("kept = %q, want last 5 runes", got)
	}

	polish := newPolishWindow()
	polish.Add(strings.Repeat("x", 3100))
	if got := len([]rune(polish.Hint())); got != 800 {
		t.Fatalf("polish hint = %d runes", got)
	}
	if got := len(polish.text); got != 2500 {
		t.Fatalf("polish kept = %d runes", got)
	}
}
