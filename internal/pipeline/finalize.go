package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/mojinote/internal/transform"
)

// finalize runs after st is detached. Order matters: timers and passes end
// first, then Layer 1 gets its grace, then pending text is organized, and only
// then does cleanup take the tail.
func (p *Pipeline) finalize(ctx context.Context, st *session) (Summary, error) {
	st.close()
	st.loops.Wait()
	st.passes.Wait()

	if !waitTimeout(&st.chunks, p.cfg.FinalizeGrace) {
		slog.Warn("transcriptions still running after grace period; late results will be appended as is",
			"session_id", st.id,
			"grace", p.cfg.FinalizeGrace,
		)
	}
	st.seq.close()

	if st.buffer.Len() > 0 {
		if _, err := p.runOrganize(ctx, st); err != nil {
			raw := st.buffer.Drain()
			if _, appendErr := p.tracker.Append(raw, blockSeparator); appendErr != nil {
				slog.Error("failed to keep unorganized transcript", "session_id", st.id, "error", appendErr)
			} else {
				slog.Warn("final organize failed; transcript appended as is", "session_id", st.id, "error", err)
			}
		}
	}

	p.runCleanup(ctx, st)
	p.metrics.SessionEnded(ctx)

	text, err := p.tracker.Text()
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		SessionID: st.id,
		StartedAt: st.startedAt,
		StoppedAt: p.now(),
		Document:  text,
		Snapshot:  p.tracker.Snapshot(),
	}
	slog.Info("pipeline session finalized",
		"session_id", st.id,
		"document_runes", summary.Snapshot.LiveEnd,
		"duration", summary.StoppedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

// runCleanup gives the not yet polished tail one last pass and writes it back
// as a single document replacement.
func (p *Pipeline) runCleanup(ctx context.Context, st *session) {
	claim, err := p.tracker.ClaimTail()
	if err != nil {
		slog.Error("failed to claim tail for cleanup", "session_id", st.id, "error", err)
		p.emit(st, Event{Layer: LayerCleanup, Status: StatusError, Err: err})
		return
	}
	if claim == nil {
		return
	}

	started := p.now()
	p.emit(st, Event{Layer: LayerCleanup, Status: StatusStarted, Payload: claim.Text})
	res, err := p.callTransform(ctx, p.transforms.Cleanup, transform.Request{
		SessionID: st.id,
		Text:      claim.Text,
		Context:   st.windows[LayerPolish].Hint(),
	})
	if err == nil {
		_, err = p.tracker.CommitTail(claim, res.Text)
	} else {
		p.tracker.Release(claim)
	}
	if err != nil {
		slog.Warn("cleanup pass failed; document left as is", "session_id", st.id, "error", err)
		p.metrics.RecordPass(ctx, LayerCleanup.String(), string(OutcomeFailed), p.now().Sub(started))
		p.emit(st, Event{Layer: LayerCleanup, Status: StatusError, Err: err})
		return
	}

	p.metrics.RecordPass(ctx, LayerCleanup.String(), string(OutcomeApplied), p.now().Sub(started))
	p.emit(st, Event{Layer: LayerCleanup, Status: StatusCompleted, Payload: res.Text})
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
