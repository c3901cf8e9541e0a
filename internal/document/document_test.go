package document

import (
	"errors"
	"testing"
)

func TestBufferInsertAndDelete(t *testing.T) {
	t.Parallel()

	b := NewBuffer("hello world")
	if err := b.InsertAt(5, ","); err != nil {
		t.Fatalf("InsertAt() error = %v", err)
	}
	if got := b.String(); got != "hello, world" {
		t.Fatalf("after insert = %q", got)
	}

	removed, err := b.DeleteRange(0, 7)
	if err != nil {
		t.Fatalf("DeleteRange() error = %v", err)
	}
	if removed != 7 {
		t.Fatalf("removed = %d, want 7", removed)
	}
	if got := b.String(); got != "world" {
		t.Fatalf("after delete = %q", got)
	}
}

func TestBufferCountsRunes(t *testing.T) {
	t.Parallel()

	b := NewBuffer("こんにちは")
	if got := b.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	got, err := b.Slice(1, 3)
	if err != nil {
		t.Fatalf("Slice() error = %v", err)
	}
	if got != "んに" {
		t.Fatalf("Slice() = %q", got)
	}
}

func TestBufferRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	b := NewBuffer("abc")
	if err := b.InsertAt(4, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("InsertAt(4) error = %v, want ErrOutOfRange", err)
	}
	if _, err := b.DeleteRange(2, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("DeleteRange(2,1) error = %v, want ErrOutOfRange", err)
	}
	if _, err := b.Slice(-1, 2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Slice(-1,2) error = %v, want ErrOutOfRange", err)
	}
	if got := b.String(); got != "abc" {
		t.Fatalf("buffer mutated on error: %q", got)
	}
}
