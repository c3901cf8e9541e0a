package pipeline

import "sync"

// contextWindow keeps the tail of a stage's own output so the next call can
// continue in the same voice.
type contextWindow struct {
	mu     sync.Mutex
	text   []rune
	keep   int
	trimAt int
	send   int
}

func newContextWindow(keep, trimAt, send int) *contextWindow {
	return &contextWindow{keep: keep, trimAt: trimAt, send: send}
}

// Window sizes in runes: keep, trim threshold, and the tail sent with a request.
func newOrganizeWindow() *contextWindow {
	return newContextWindow(1500, 1500, 500)
}

func newFormatWindow() *contextWindow {
	return newContextWindow(1500, 2000, 500)
}

func newPolishWindow() *contextWindow {
	return newContextWindow(2500, 3000, 800)
}

func (w *contextWindow) Add(out string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.text) > 0 {
		w.text = append(w.text, '\n')
	}
	w.text = append(w.text, []rune(out)...)
	if len(w.text) > w.trimAt {
		w.text = append([]rune(nil), w.text[len(w.text)-w.keep:]...)
	}
}

func (w *contextWindow) Hint() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.text) <= w.send {
		return string(w.text)
	}
	return string(w.text[len(w.text)-w.send:])
}
