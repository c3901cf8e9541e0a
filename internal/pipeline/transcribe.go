package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/foxseedlab/mojinote/internal/audio"
	"github.com/foxseedlab/mojinote/internal/observe"
)

// SubmitChunk queues a chunk for Layer 1 and returns without waiting for a
// transcription slot. A chunk that finds the queue full is dropped and
// reported the same way as a failed transcription.
func (p *Pipeline) SubmitChunk(ctx context.Context, chunk audio.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := p.current()
	if st == nil {
		return ErrNotRunning
	}
	accepted, open := st.enqueue(chunk)
	if !open {
		return ErrNotRunning
	}
	if accepted {
		return nil
	}
	p.dropChunk(st, chunk, ErrQueueFull)
	return fmt.Errorf("chunk %s: %w", chunk.ID, ErrQueueFull)
}

// dispatchChunks starts a transcription for each queued chunk as slots free
// up. It returns once the queue is closed and drained, so chunks accepted
// before stop are still transcribed and may land late.
func (p *Pipeline) dispatchChunks(st *session) {
	for chunk := range st.queue {
		if err := p.sem.Acquire(st.chunkCtx, 1); err != nil {
			p.dropChunk(st, chunk, err)
			st.chunks.Done()
			continue
		}
		go func() {
			defer st.chunks.Done()
			defer p.sem.Release(1)
			p.transcribe(st, chunk)
		}()
	}
}

func (p *Pipeline) dropChunk(st *session, chunk audio.Chunk, err error) {
	slog.Warn("dropping chunk before transcription",
		"session_id", st.id,
		"chunk_id", chunk.ID,
		"sequence", chunk.Sequence,
		"error", err,
	)
	p.metrics.RecordChunk(st.chunkCtx, observe.OutcomeDropped, 0)
	p.emit(st, Event{Layer: LayerTranscribe, Status: StatusError, ChunkID: chunk.ID, Sequence: chunk.Sequence, Err: err})
	st.seq.resolve(chunk.Sequence, "", false)
}

func (p *Pipeline) transcribe(st *session, chunk audio.Chunk) {
	ctx := st.chunkCtx
	if p.cfg.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TranscribeTimeout)
		defer cancel()
	}

	started := p.now()
	p.emit(st, Event{Layer: LayerTranscribe, Status: StatusStarted, ChunkID: chunk.ID, Sequence: chunk.Sequence})

	text, err := p.transcriber.Transcribe(ctx, chunk)
	elapsed := p.now().Sub(started)
	if err != nil {
		slog.Warn("chunk transcription failed; dropping chunk",
			"session_id", st.id,
			"chunk_id", chunk.ID,
			"sequence", chunk.Sequence,
			"error", err,
		)
		p.metrics.RecordChunk(ctx, observe.OutcomeFailed, elapsed)
		p.emit(st, Event{Layer: LayerTranscribe, Status: StatusError, ChunkID: chunk.ID, Sequence: chunk.Sequence, Err: err})
		st.seq.resolve(chunk.Sequence, "", false)
		return
	}

	p.metrics.RecordChunk(ctx, observe.OutcomeOK, elapsed)
	slog.Debug("chunk transcribed", "session_id", st.id, "chunk_id", chunk.ID, "sequence", chunk.Sequence, "runes", len([]rune(text)))
	p.emit(st, Event{Layer: LayerTranscribe, Status: StatusCompleted, ChunkID: chunk.ID, Sequence: chunk.Sequence, ChunkStartedAt: chunk.StartedAt, Payload: text})
	st.seq.resolve(chunk.Sequence, text, true)
}

// acceptTranscript is the sequencer's release. Text released after the
// session was finalized goes straight to the end of the document.
func (p *Pipeline) acceptTranscript(st *session, text string, late bool) {
	if late {
		if _, err := p.tracker.Append(text, blockSeparator); err != nil {
			slog.Error("failed to append late transcript", "session_id", st.id, "error", err)
			return
		}
		slog.Info("late transcript appended after finalization", "session_id", st.id)
		return
	}
	n := st.buffer.Append(text)
	p.metrics.SetBufferedRunes(st.chunkCtx, st.id, n)
}
