package transform

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

var ErrEmptyResult = errors.New("transform returned empty text")

type Request struct {
	SessionID string
	Text      string
	// Context is the tail of the stage's previous output.
	Context string
}

type Result struct {
	Text string
}

// Transformer is an opaque text rewrite: organize, format, polish or cleanup.
type Transformer interface {
	Transform(ctx context.Context, req Request) (Result, error)
}

// Set holds one Transformer per pipeline stage.
type Set struct {
	Organize Transformer
	Format   Transformer
	Polish   Transformer
	Cleanup  Transformer
}

type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Transform(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Identity returns its input unchanged.
type Identity struct{}

func (Identity) Transform(_ context.Context, req Request) (Result, error) {
	return Result{Text: req.Text}, nil
}

func IdentitySet() Set {
	return Set{Organize: Identity{}, Format: Identity{}, Polish: Identity{}, Cleanup: Identity{}}
}

// WithMinLength skips next and returns the input as is when the trimmed
// input is shorter than minRunes.
func WithMinLength(next Transformer, minRunes int) Transformer {
	return Func(func(ctx context.Context, req Request) (Result, error) {
		if utf8.RuneCountInString(strings.TrimSpace(req.Text)) < minRunes {
			return Result{Text: req.Text}, nil
		}
		return next.Transform(ctx, req)
	})
}
