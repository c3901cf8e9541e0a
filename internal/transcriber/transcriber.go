package transcriber

import (
	"context"

	"github.com/foxseedlab/mojinote/internal/audio"
)

// Transcriber turns one audio chunk into text. Calls are independent and may
// run concurrently.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk audio.Chunk) (string, error)
}
