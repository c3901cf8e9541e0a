package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxseedlab/mojinote/internal/observe"
	"github.com/foxseedlab/mojinote/internal/rangetrack"
	"github.com/foxseedlab/mojinote/internal/transform"
)

type Outcome string

const (
	OutcomeApplied  Outcome = observe.OutcomeApplied
	OutcomeEmpty    Outcome = observe.OutcomeEmpty
	OutcomeBusy     Outcome = observe.OutcomeBusy
	OutcomeFailed   Outcome = observe.OutcomeFailed
	OutcomeConflict Outcome = observe.OutcomeConflict
)

// runOrganize drains the transcript buffer through the organize transform
// and appends the result at the live end. On failure the text goes back to
// the front of the buffer.
func (p *Pipeline) runOrganize(ctx context.Context, st *session) (Outcome, error) {
	busy := &st.busy[LayerOrganize]
	if !busy.CompareAndSwap(false, true) {
		p.metrics.RecordPass(ctx, LayerOrganize.String(), string(OutcomeBusy), 0)
		return OutcomeBusy, nil
	}
	defer busy.Store(false)

	text := st.buffer.Drain()
	if strings.TrimSpace(text) == "" {
		return OutcomeEmpty, nil
	}
	p.metrics.SetBufferedRunes(ctx, st.id, 0)

	started := p.now()
	window := st.windows[LayerOrganize]
	p.emit(st, Event{Layer: LayerOrganize, Status: StatusStarted, Payload: text})

	res, err := p.callTransform(ctx, p.transforms.Organize, transform.Request{
		SessionID: st.id,
		Text:      text,
		Context:   window.Hint(),
	})
	if err == nil {
		_, err = p.tracker.Append(res.Text, blockSeparator)
	}
	if err != nil {
		st.buffer.Restore(text)
		slog.Warn("organize pass failed; transcript restored to buffer",
			"session_id", st.id,
			"restored_runes", len([]rune(text)),
			"error", err,
		)
		p.metrics.RecordPass(ctx, LayerOrganize.String(), string(OutcomeFailed), p.now().Sub(started))
		p.emit(st, Event{Layer: LayerOrganize, Status: StatusError, Err: err})
		return OutcomeFailed, err
	}

	window.Add(res.Text)
	p.metrics.RecordPass(ctx, LayerOrganize.String(), string(OutcomeApplied), p.now().Sub(started))
	p.metrics.SetDocumentRunes(ctx, st.id, p.tracker.Snapshot().LiveEnd)
	slog.Info("organize pass applied", "session_id", st.id, "input_runes", len([]rune(text)), "output_runes", len([]rune(res.Text)))
	p.emit(st, Event{Layer: LayerOrganize, Status: StatusCompleted, Payload: res.Text})
	return OutcomeApplied, nil
}

// runRefine is the format and polish pass: claim the stage's range,
// transform it outside the lock, then swap it in fragment by fragment.
func (p *Pipeline) runRefine(ctx context.Context, st *session, layer Layer) (Outcome, error) {
	boundary, tr := rangetrack.Format, p.transforms.Format
	if layer == LayerPolish {
		boundary, tr = rangetrack.Polish, p.transforms.Polish
	}

	busy := &st.busy[layer]
	if !busy.CompareAndSwap(false, true) {
		p.metrics.RecordPass(ctx, layer.String(), string(OutcomeBusy), 0)
		return OutcomeBusy, nil
	}
	defer busy.Store(false)

	claim, err := p.tracker.Claim(boundary)
	if errors.Is(err, rangetrack.ErrBusy) {
		p.metrics.RecordPass(ctx, layer.String(), string(OutcomeBusy), 0)
		return OutcomeBusy, nil
	}
	if err != nil {
		slog.Error("failed to claim range", "session_id", st.id, "layer", layer.String(), "error", err)
		p.emit(st, Event{Layer: layer, Status: StatusError, Err: err})
		return OutcomeFailed, err
	}
	if claim == nil {
		return OutcomeEmpty, nil
	}

	started := p.now()
	window := st.windows[layer]
	p.emit(st, Event{Layer: layer, Status: StatusStarted, Payload: claim.Text})

	res, err := p.callTransform(ctx, tr, transform.Request{
		SessionID: st.id,
		Text:      claim.Text,
		Context:   window.Hint(),
	})
	if err != nil {
		p.tracker.Release(claim)
		slog.Warn("pass failed; range released unchanged",
			"session_id", st.id,
			"layer", layer.String(),
			"claim_start", claim.Start,
			"claim_end", claim.End,
			"error", err,
		)
		p.metrics.RecordPass(ctx, layer.String(), string(OutcomeFailed), p.now().Sub(started))
		p.emit(st, Event{Layer: layer, Status: StatusError, Err: err})
		return OutcomeFailed, err
	}

	rep, err := p.tracker.Commit(claim, transform.SplitFragments(res.Text))
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, rangetrack.ErrClaimConflict) || errors.Is(err, rangetrack.ErrStaleClaim) {
			outcome = OutcomeConflict
		}
		slog.Warn("pass result discarded",
			"session_id", st.id,
			"layer", layer.String(),
			"outcome", string(outcome),
			"error", err,
		)
		p.metrics.RecordPass(ctx, layer.String(), string(outcome), p.now().Sub(started))
		p.emit(st, Event{Layer: layer, Status: StatusError, Err: err})
		return outcome, err
	}

	for i, fragment := range rep.Fragments {
		p.emit(st, Event{Layer: layer, Status: StatusProgress, Payload: fragment, Fragment: i, Fragments: len(rep.Fragments)})
	}
	window.Add(res.Text)
	p.metrics.RecordPass(ctx, layer.String(), string(OutcomeApplied), p.now().Sub(started))
	slog.Info("pass applied",
		"session_id", st.id,
		"layer", layer.String(),
		"claim_start", rep.Start,
		"deleted", rep.Deleted,
		"inserted", rep.Inserted,
		"fragments", len(rep.Fragments),
		"format_boundary", rep.Snapshot.Format,
		"polish_boundary", rep.Snapshot.Polish,
	)
	p.emit(st, Event{Layer: layer, Status: StatusCompleted, Payload: res.Text})
	return OutcomeApplied, nil
}

func (p *Pipeline) callTransform(ctx context.Context, tr transform.Transformer, req transform.Request) (transform.Result, error) {
	if tr == nil {
		tr = transform.Identity{}
	}
	if p.cfg.TransformTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TransformTimeout)
		defer cancel()
	}

	res, err := tr.Transform(ctx, req)
	if err != nil {
		return transform.Result{}, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return transform.Result{}, fmt.Errorf("transform output: %w", transform.ErrEmptyResult)
	}
	return res, nil
}
