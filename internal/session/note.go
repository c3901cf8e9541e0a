package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/mojinote/internal/config"
	"github.com/foxseedlab/mojinote/internal/document"
	"github.com/foxseedlab/mojinote/internal/pipeline"
	"github.com/foxseedlab/mojinote/internal/rangetrack"
	"github.com/foxseedlab/mojinote/internal/repository"
)

// channelNote is the living document of one voice channel. It outlives
// sessions: every session in the channel writes to the same note.
type channelNote struct {
	guildID   string
	channelID string

	doc      *document.Buffer
	tracker  *rangetrack.Tracker
	pipeline *pipeline.Pipeline
	autosave *autosaver

	// lifecycle keeps a session start from overlapping the previous
	// session's finalization.
	lifecycle sync.Mutex

	mu        sync.Mutex
	sessionID string
	// segments tracks raw transcript writes still in flight.
	segments sync.WaitGroup
}

func (m *Manager) noteFor(ctx context.Context, guildID, channelID string) (*channelNote, error) {
	key := m.sessionKey(guildID, channelID)
	m.notesMu.Lock()
	defer m.notesMu.Unlock()
	if n, ok := m.notes[key]; ok {
		return n, nil
	}

	saved, err := m.repo.GetNote(ctx, guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("load note: %w", err)
	}
	initial := ""
	if saved != nil {
		initial = saved.Content
		slog.Info("loaded saved note", "guild_id", guildID, "channel_id", channelID, "runes", document.RuneLen(initial), "updated_at", saved.UpdatedAt)
	}

	n := &channelNote{
		guildID:   guildID,
		channelID: channelID,
		doc:       document.NewBuffer(initial),
	}
	n.autosave = newAutosaver(m.cfg.AutosaveDebounce, func(ctx context.Context) error {
		return m.saveNote(ctx, n, false)
	})
	n.tracker = rangetrack.New(n.doc, rangetrack.WithChangeHook(func(rangetrack.Snapshot) {
		n.autosave.Schedule()
	}))
	n.pipeline = pipeline.New(m.pipelineConfig(), pipeline.Deps{
		Tracker:     n.tracker,
		Transcriber: m.transcriber,
		Transforms:  m.transforms,
		Sink:        pipeline.SinkFunc(func(e pipeline.Event) { m.handlePipelineEvent(n, e) }),
		Metrics:     m.metrics,
	})
	m.notes[key] = n
	return n, nil
}

func (m *Manager) pipelineConfig() pipeline.Config {
	ordering := pipeline.OrderSequence
	if m.cfg.TranscriptOrdering == config.OrderingArrival {
		ordering = pipeline.OrderArrival
	}
	return pipeline.Config{
		OrganizeInterval:  m.cfg.OrganizeInterval,
		FormatInterval:    m.cfg.FormatInterval,
		PolishInterval:    m.cfg.PolishInterval,
		MaxInFlightChunks: m.cfg.MaxInFlightChunks,
		MaxQueuedChunks:   m.cfg.MaxQueuedChunks,
		TranscribeTimeout: m.cfg.TranscribeTimeout,
		TransformTimeout:  m.cfg.TransformTimeout,
		FinalizeGrace:     m.cfg.FinalizeGrace,
		Ordering:          ordering,
	}
}

// handlePipelineEvent persists raw transcripts and logs failures. It must not
// block the pipeline.
func (m *Manager) handlePipelineEvent(n *channelNote, e pipeline.Event) {
	switch {
	case e.Layer == pipeline.LayerTranscribe && e.Status == pipeline.StatusCompleted:
		if e.Payload == "" {
			return
		}
		n.segments.Add(1)
		go func() {
			defer n.segments.Done()
			spokenAt := e.ChunkStartedAt
			if spokenAt.IsZero() {
				spokenAt = e.At
			}
			if err := m.repo.InsertSegment(context.Background(), repository.InsertSegmentInput{
				SessionID: e.SessionID,
				ChunkID:   e.ChunkID,
				Sequence:  e.Sequence,
				Content:   e.Payload,
				SpokenAt:  spokenAt,
			}); err != nil {
				slog.Error("failed to insert transcript segment", "error", err, "session_id", e.SessionID, "chunk_id", e.ChunkID)
			}
		}()
	case e.Status == pipeline.StatusError:
		slog.Debug("pipeline stage failed", "session_id", e.SessionID, "layer", e.Layer.String(), "chunk_id", e.ChunkID, "error", e.Err)
	}
}

func (m *Manager) saveNote(ctx context.Context, n *channelNote, final bool) error {
	text, err := n.tracker.Text()
	if err != nil {
		return err
	}
	snap := n.tracker.Snapshot()
	return m.repo.SaveNote(ctx, repository.SaveNoteInput{
		GuildID:        n.guildID,
		ChannelID:      n.channelID,
		SessionID:      n.currentSessionID(),
		Content:        text,
		FormatBoundary: snap.Format,
		PolishBoundary: snap.Polish,
		Final:          final,
		SavedAt:        time.Now(),
	})
}

func (n *channelNote) currentSessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionID
}

func (n *channelNote) setSessionID(id string) {
	n.mu.Lock()
	n.sessionID = id
	n.mu.Unlock()
}
