package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// autosaver coalesces document changes into one save per quiet period.
type autosaver struct {
	delay time.Duration
	save  func(ctx context.Context) error

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	closed  bool

	// saveMu serializes saves so an older snapshot never lands last.
	saveMu sync.Mutex
}

func newAutosaver(delay time.Duration, save func(ctx context.Context) error) *autosaver {
	return &autosaver{delay: delay, save: save}
}

// Schedule restarts the quiet period.
func (a *autosaver) Schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.pending = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *autosaver) fire() {
	a.mu.Lock()
	if a.closed || !a.pending {
		a.mu.Unlock()
		return
	}
	a.pending = false
	a.mu.Unlock()

	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	if err := a.save(context.Background()); err != nil {
		slog.Warn("failed to autosave note", "error", err)
	}
}

// Cancel drops a pending save and waits for a running one. Later changes
// schedule again.
func (a *autosaver) Cancel() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.pending = false
	a.mu.Unlock()
	a.saveMu.Lock()
	a.saveMu.Unlock()
}

// Flush saves now if a change is pending.
func (a *autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	pending := a.pending && !a.closed
	a.pending = false
	a.mu.Unlock()

	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	if !pending {
		return nil
	}
	return a.save(ctx)
}

func (a *autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.saveMu.Lock()
	a.saveMu.Unlock()
}
