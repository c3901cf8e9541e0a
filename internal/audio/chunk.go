package audio

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded slice of session audio. It is transcribed exactly once.
type Chunk struct {
	ID         string
	Sequence   int64
	Payload    []byte
	StartedAt  time.Time
	Duration   time.Duration
	SampleRate int
	Channels   int
}

type PCMReader interface {
	ReadMixedPCM(buf []byte) (int, error)
}

type ChunkerConfig struct {
	ChunkDuration time.Duration
	// MinDuration is the shortest remainder flushed when the chunker stops.
	MinDuration time.Duration
	Now         func() time.Time
}

// Chunker pulls mixed frames from a PCMReader and cuts them into chunks of
// ChunkDuration. Silence produces no frames and therefore no chunks.
type Chunker struct {
	src       PCMReader
	cfg       ChunkerConfig
	pending   []byte
	startedAt time.Time
	next      int64
}

func NewChunker(src PCMReader, cfg ChunkerConfig) *Chunker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Chunker{src: src, cfg: cfg}
}

// Run reads one frame every FrameDuration until ctx is done, then flushes
// what is left.
func (c *Chunker) Run(ctx context.Context, emit func(Chunk)) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	frame := make([]byte, FrameBytes)
	for {
		select {
		case <-ctx.Done():
			c.flush(emit, c.cfg.MinDuration)
			return
		case <-ticker.C:
			c.readFrame(frame, emit)
		}
	}
}

func (c *Chunker) readFrame(frame []byte, emit func(Chunk)) {
	n, err := c.src.ReadMixedPCM(frame)
	if err != nil {
		slog.Warn("failed to read mixed audio frame", "error", err)
		return
	}
	if n == 0 {
		return
	}
	if len(c.pending) == 0 {
		c.startedAt = c.cfg.Now()
	}
	c.pending = append(c.pending, frame[:n]...)
	if PCMDuration(len(c.pending)) >= c.cfg.ChunkDuration {
		c.flush(emit, 0)
	}
}

func (c *Chunker) flush(emit func(Chunk), minDuration time.Duration) {
	if len(c.pending) == 0 {
		return
	}
	d := PCMDuration(len(c.pending))
	if d < minDuration {
		c.pending = nil
		return
	}

	chunk := Chunk{
		ID:         uuid.NewString(),
		Sequence:   c.next,
		Payload:    c.pending,
		StartedAt:  c.startedAt,
		Duration:   d,
		SampleRate: SampleRate,
		Channels:   Channels,
	}
	c.next++
	c.pending = nil
	emit(chunk)
}
