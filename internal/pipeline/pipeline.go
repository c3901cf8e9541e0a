package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/mojinote/internal/audio"
	"github.com/foxseedlab/mojinote/internal/observe"
	"github.com/foxseedlab/mojinote/internal/rangetrack"
	"github.com/foxseedlab/mojinote/internal/transcriber"
	"github.com/foxseedlab/mojinote/internal/transform"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNotRunning = errors.New("pipeline is not running")
	ErrQueueFull  = errors.New("transcription queue is full")
)

// defaultMaxQueuedChunks is used when Config.MaxQueuedChunks is unset.
const defaultMaxQueuedChunks = 32

// blockSeparator is written between organized blocks appended to the document.
const blockSeparator = "\n"

type Ordering int

const (
	// OrderSequence applies transcripts in chunk order.
	OrderSequence Ordering = iota
	// OrderArrival applies transcripts as they complete.
	OrderArrival
)

// Config holds pipeline timing. A zero interval disables that stage's timer;
// its pass can still be run directly.
type Config struct {
	OrganizeInterval  time.Duration
	FormatInterval    time.Duration
	PolishInterval    time.Duration
	MaxInFlightChunks int
	// MaxQueuedChunks bounds chunks waiting for a transcription slot.
	MaxQueuedChunks   int
	TranscribeTimeout time.Duration
	TransformTimeout  time.Duration
	FinalizeGrace     time.Duration
	Ordering          Ordering
}

type Deps struct {
	Tracker     *rangetrack.Tracker
	Transcriber transcriber.Transcriber
	Transforms  transform.Set
	Sink        EventSink
	Metrics     *observe.Metrics
}

// Pipeline drives the four stages over one document. At most one session is
// active at a time.
type Pipeline struct {
	cfg         Config
	tracker     *rangetrack.Tracker
	transcriber transcriber.Transcriber
	transforms  transform.Set
	sink        EventSink
	metrics     *observe.Metrics
	sem         *semaphore.Weighted
	now         func() time.Time

	lifecycle sync.Mutex
	mu        sync.Mutex
	session   *session
}

// session is the per-session state. It is replaced wholesale on start.
type session struct {
	id        string
	startedAt time.Time

	// ctx is cancelled on stop; it bounds timers and passes.
	ctx    context.Context
	cancel context.CancelFunc
	// chunkCtx outlives stop so in-flight transcriptions get their grace.
	chunkCtx context.Context

	loops  sync.WaitGroup
	chunks sync.WaitGroup
	passes sync.WaitGroup

	// queue holds accepted chunks until a transcription slot frees up. It is
	// closed together with the gate.
	queue chan audio.Chunk

	gate    sync.Mutex
	closing bool

	buffer  *TranscriptBuffer
	seq     *sequencer
	busy    [layerCount]atomic.Bool
	windows map[Layer]*contextWindow
}

type Summary struct {
	SessionID string
	StartedAt time.Time
	StoppedAt time.Time
	Document  string
	Snapshot  rangetrack.Snapshot
}

func New(cfg Config, deps Deps) *Pipeline {
	if cfg.MaxInFlightChunks <= 0 {
		cfg.MaxInFlightChunks = 1
	}
	if cfg.MaxQueuedChunks <= 0 {
		cfg.MaxQueuedChunks = defaultMaxQueuedChunks
	}
	sink := deps.Sink
	if sink == nil {
		sink = discardSink{}
	}
	return &Pipeline{
		cfg:         cfg,
		tracker:     deps.Tracker,
		transcriber: deps.Transcriber,
		transforms:  deps.Transforms,
		sink:        sink,
		metrics:     deps.Metrics,
		sem:         semaphore.NewWeighted(int64(cfg.MaxInFlightChunks)),
		now:         time.Now,
	}
}

// Start begins a session. A session that is still running is finalized
// first, so its timers are gone before any state is reset.
func (p *Pipeline) Start(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if prev := p.detach(); prev != nil {
		slog.Warn("finalizing previous session before start", "session_id", prev.id, "next_session_id", sessionID)
		if _, err := p.finalize(ctx, prev); err != nil {
			slog.Error("failed to finalize previous session", "session_id", prev.id, "error", err)
		}
	}

	snap := p.tracker.Reset()
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st := &session{
		id:        sessionID,
		startedAt: p.now(),
		ctx:       sessCtx,
		cancel:    cancel,
		chunkCtx:  context.WithoutCancel(ctx),
		queue:     make(chan audio.Chunk, p.cfg.MaxQueuedChunks),
		buffer:    &TranscriptBuffer{},
		windows: map[Layer]*contextWindow{
			LayerOrganize: newOrganizeWindow(),
			LayerFormat:   newFormatWindow(),
			LayerPolish:   newPolishWindow(),
		},
	}
	st.seq = newSequencer(p.cfg.Ordering == OrderSequence, func(text string, late bool) {
		p.acceptTranscript(st, text, late)
	})

	p.mu.Lock()
	p.session = st
	p.mu.Unlock()

	go p.dispatchChunks(st)
	p.startLoop(st, LayerOrganize, p.cfg.OrganizeInterval, p.runOrganize)
	p.startLoop(st, LayerFormat, p.cfg.FormatInterval, func(ctx context.Context, st *session) (Outcome, error) {
		return p.runRefine(ctx, st, LayerFormat)
	})
	p.startLoop(st, LayerPolish, p.cfg.PolishInterval, func(ctx context.Context, st *session) (Outcome, error) {
		return p.runRefine(ctx, st, LayerPolish)
	})

	p.metrics.SessionStarted(ctx)
	slog.Info("pipeline session started",
		"session_id", sessionID,
		"generation", snap.Generation,
		"format_boundary", snap.Format,
		"polish_boundary", snap.Polish,
	)
	return nil
}

// Stop cancels the timers, flushes pending transcript text and runs the
// cleanup pass.
func (p *Pipeline) Stop(ctx context.Context) (Summary, error) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	st := p.detach()
	if st == nil {
		return Summary{}, ErrNotRunning
	}
	return p.finalize(ctx, st)
}

func (p *Pipeline) SessionID() string {
	if st := p.current(); st != nil {
		return st.id
	}
	return ""
}

func (p *Pipeline) Running() bool {
	return p.current() != nil
}

// BufferedRunes reports the transcript text waiting for the organize pass.
func (p *Pipeline) BufferedRunes() int {
	if st := p.current(); st != nil {
		return st.buffer.Len()
	}
	return 0
}

func (p *Pipeline) RunOrganizePass(ctx context.Context) (Outcome, error) {
	return p.runPass(ctx, p.runOrganize)
}

func (p *Pipeline) RunFormatPass(ctx context.Context) (Outcome, error) {
	return p.runPass(ctx, func(ctx context.Context, st *session) (Outcome, error) {
		return p.runRefine(ctx, st, LayerFormat)
	})
}

func (p *Pipeline) RunPolishPass(ctx context.Context) (Outcome, error) {
	return p.runPass(ctx, func(ctx context.Context, st *session) (Outcome, error) {
		return p.runRefine(ctx, st, LayerPolish)
	})
}

type passFunc func(ctx context.Context, st *session) (Outcome, error)

// runPass runs fn under the current session. The pass context is cancelled
// when either ctx or the session ends.
func (p *Pipeline) runPass(ctx context.Context, fn passFunc) (Outcome, error) {
	st := p.current()
	if st == nil || !st.enter(&st.passes) {
		return "", ErrNotRunning
	}
	defer st.passes.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(st.ctx, cancel)
	defer stop()

	return fn(ctx, st)
}

func (p *Pipeline) startLoop(st *session, layer Layer, interval time.Duration, fn passFunc) {
	if interval <= 0 {
		return
	}
	st.loops.Add(1)
	go func() {
		defer st.loops.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-st.ctx.Done():
				slog.Debug("pass timer stopped", "session_id", st.id, "layer", layer.String())
				return
			case <-ticker.C:
				if !st.enter(&st.passes) {
					return
				}
				_, _ = fn(st.ctx, st)
				st.passes.Done()
			}
		}
	}()
}

func (p *Pipeline) current() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Pipeline) detach() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.session
	p.session = nil
	return st
}

func (p *Pipeline) emit(st *session, e Event) {
	e.SessionID = st.id
	e.At = p.now()
	p.sink.Publish(e)
}

// enter registers work on wg unless the session is closing.
func (s *session) enter(wg *sync.WaitGroup) bool {
	s.gate.Lock()
	defer s.gate.Unlock()
	if s.closing {
		return false
	}
	wg.Add(1)
	return true
}

// enqueue accepts chunk for transcription without blocking. accepted is
// false when the queue is full; open is false once the session is closing.
func (s *session) enqueue(chunk audio.Chunk) (accepted, open bool) {
	s.gate.Lock()
	defer s.gate.Unlock()
	if s.closing {
		return false, false
	}
	s.chunks.Add(1)
	select {
	case s.queue <- chunk:
		return true, true
	default:
		s.chunks.Done()
		return false, true
	}
}

// close stops new work from starting and cancels the session context.
// Chunks already queued are still transcribed.
func (s *session) close() {
	s.gate.Lock()
	if !s.closing {
		s.closing = true
		close(s.queue)
	}
	s.gate.Unlock()
	s.cancel()
}
