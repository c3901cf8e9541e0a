package document

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

var ErrOutOfRange = errors.New("document offset out of range")

// Surface is the linearly addressed editing surface shared by the pipeline
// stages and the human editor. Offsets count runes.
type Surface interface {
	InsertAt(offset int, text string) error
	DeleteRange(start, end int) (int, error)
	Len() int
	Slice(start, end int) (string, error)
	ReplaceAll(text string) error
}

// Buffer is an in-memory Surface.
type Buffer struct {
	mu    sync.RWMutex
	runes []rune
}

func NewBuffer(initial string) *Buffer {
	return &Buffer{runes: []rune(initial)}
}

func (b *Buffer) InsertAt(offset int, text string) error {
	if text == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if offset < 0 || offset > len(b.runes) {
		return fmt.Errorf("insert at %d (len %d): %w", offset, len(b.runes), ErrOutOfRange)
	}

	ins := []rune(text)
	next := make([]rune, 0, len(b.runes)+len(ins))
	next = append(next, b.runes[:offset]...)
	next = append(next, ins...)
	next = append(next, b.runes[offset:]...)
	b.runes = next
	return nil
}

func (b *Buffer) DeleteRange(start, end int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if start < 0 || end < start || end > len(b.runes) {
		return 0, fmt.Errorf("delete [%d,%d) (len %d): %w", start, end, len(b.runes), ErrOutOfRange)
	}
	b.runes = append(b.runes[:start], b.runes[end:]...)
	return end - start, nil
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.runes)
}

func (b *Buffer) Slice(start, end int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if start < 0 || end < start || end > len(b.runes) {
		return "", fmt.Errorf("slice [%d,%d) (len %d): %w", start, end, len(b.runes), ErrOutOfRange)
	}
	return string(b.runes[start:end]), nil
}

func (b *Buffer) ReplaceAll(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runes = []rune(text)
	return nil
}

func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.runes)
}

// RuneLen reports the length of text in Surface offsets.
func RuneLen(text string) int {
	return utf8.RuneCountInString(text)
}
