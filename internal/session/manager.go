package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/mojinote/internal/audio"
	"github.com/foxseedlab/mojinote/internal/config"
	"github.com/foxseedlab/mojinote/internal/discord"
	"github.com/foxseedlab/mojinote/internal/observe"
	"github.com/foxseedlab/mojinote/internal/pipeline"
	"github.com/foxseedlab/mojinote/internal/repository"
	"github.com/foxseedlab/mojinote/internal/transcriber"
	"github.com/foxseedlab/mojinote/internal/transform"
	"github.com/foxseedlab/mojinote/internal/webhook"
	"github.com/google/uuid"
)

const (
	stopReasonMaxDuration      = "max_duration"
	stopReasonManualSlash      = "manual_slash"
	stopReasonParticipantsLeft = "participants_left"
	stopReasonBotRemoved       = "bot_removed"
	stopReasonServerClosed     = "server_closed"
	stopReasonUnknownError     = "unknown_error"
)

const (
	// minChunkDuration is the shortest trailing audio still transcribed on stop.
	minChunkDuration = 500 * time.Millisecond
	finalizeTimeout  = 5 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("session is already running in this channel")
	ErrBotBusy        = errors.New("bot is already in another voice channel of this guild")
)

type Manager struct {
	cfg         *config.Config
	repo        repository.Repository
	discord     discord.Client
	transcriber transcriber.Transcriber
	transforms  transform.Set
	webhook     webhook.Sender
	newMixer    audio.MixerFactory
	metrics     *observe.Metrics
	loc         *time.Location

	mu        sync.Mutex
	botUserID string
	sessions  map[string]*runningSession

	notesMu sync.Mutex
	notes   map[string]*channelNote

	finalizing sync.WaitGroup
}

type participantState struct {
	isBot bool
}

type runningSession struct {
	repoSession *repository.Session
	note        *channelNote
	voice       discord.VoiceConnection
	mixer       audio.Mixer
	cancel      context.CancelFunc
	// capture finishes once the last chunk has been handed to the pipeline.
	capture  sync.WaitGroup
	maxTimer *time.Timer

	activeParticipants map[string]participantState
	allParticipants    map[string]participantState
}

type Deps struct {
	Config      *config.Config
	Repository  repository.Repository
	Discord     discord.Client
	Transcriber transcriber.Transcriber
	Transforms  transform.Set
	Webhook     webhook.Sender
	NewMixer    audio.MixerFactory
	Metrics     *observe.Metrics
}

func NewManager(deps Deps) *Manager {
	loc, err := time.LoadLocation(deps.Config.NoteTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &Manager{
		cfg:         deps.Config,
		repo:        deps.Repository,
		discord:     deps.Discord,
		transcriber: deps.Transcriber,
		transforms:  deps.Transforms,
		webhook:     deps.Webhook,
		newMixer:    deps.NewMixer,
		metrics:     deps.Metrics,
		loc:         loc,
		sessions:    make(map[string]*runningSession),
		notes:       make(map[string]*channelNote),
	}
}

func (m *Manager) SetBotUserID(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = userID
}

func (m *Manager) sessionKey(guildID, channelID string) string {
	return guildID + ":" + channelID
}

func (m *Manager) isSessionRunning(guildID, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[m.sessionKey(guildID, channelID)]
	return ok
}

// guildBusy reports whether the bot is recording another channel of the guild.
// Discord allows one voice connection per guild.
func (m *Manager) guildBusy(guildID, channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rs := range m.sessions {
		if rs.repoSession.GuildID == guildID && rs.repoSession.ChannelID != channelID {
			return true
		}
	}
	return false
}

func (m *Manager) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != m.cfg.DiscordGuildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID)
		return
	}
	slog.Info("voice state update received",
		"guild_id", event.GuildID,
		"user_id", event.UserID,
		"before_channel_id", event.BeforeChannelID,
		"after_channel_id", event.AfterChannelID,
	)

	if m.isBotUser(event.UserID) {
		m.handleBotVoiceState(event)
		return
	}

	if event.AfterChannelID != "" {
		m.addParticipant(event.GuildID, event.AfterChannelID, event.UserID, event.UserIsBot)
	}
	for _, channelID := range m.channelsLeftBy(event) {
		if err := m.removeParticipantAndMaybeStop(event.GuildID, channelID, event.UserID, event.UserIsBot); err != nil {
			slog.Error("failed to stop session after participant left", "error", err, "channel_id", channelID)
		}
	}
}

// channelsLeftBy lists running session channels the user is no longer in.
// The previous channel is not always known, so sessions that still count
// the user are checked too.
func (m *Manager) channelsLeftBy(event discord.VoiceStateEvent) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, rs := range m.sessions {
		if rs.repoSession.GuildID != event.GuildID {
			continue
		}
		channelID := rs.repoSession.ChannelID
		if channelID == event.AfterChannelID {
			continue
		}
		_, tracked := rs.activeParticipants[event.UserID]
		if tracked || channelID == event.BeforeChannelID {
			out = append(out, channelID)
		}
	}
	return out
}

func (m *Manager) handleBotVoiceState(event discord.VoiceStateEvent) {
	m.mu.Lock()
	var removed []string
	for _, rs := range m.sessions {
		if rs.repoSession.GuildID == event.GuildID && rs.repoSession.ChannelID != event.AfterChannelID {
			removed = append(removed, rs.repoSession.ChannelID)
		}
	}
	m.mu.Unlock()
	for _, channelID := range removed {
		slog.Warn("bot left a channel with a running session", "guild_id", event.GuildID, "channel_id", channelID)
		if _, err := m.stopSession(event.GuildID, channelID, stopReasonBotRemoved); err != nil {
			slog.Error("failed to stop session after bot removal", "error", err, "channel_id", channelID)
		}
	}
}

func (m *Manager) isBotUser(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID != "" && m.botUserID == userID
}

func (m *Manager) shouldCountLifecycleParticipant(userID string, isBot bool) bool {
	if m.isBotUser(userID) {
		return false
	}
	if isBot {
		return m.cfg.DiscordCountOtherBots
	}
	return true
}

func (m *Manager) addParticipant(guildID, channelID, userID string, isBot bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.sessions[m.sessionKey(guildID, channelID)]
	if !ok {
		return
	}
	rs.allParticipants[userID] = participantState{isBot: isBot}
	if m.botUserID != userID && (!isBot || m.cfg.DiscordCountOtherBots) {
		rs.activeParticipants[userID] = participantState{isBot: isBot}
	}
}

func (m *Manager) removeParticipantAndMaybeStop(guildID, channelID, userID string, isBot bool) error {
	key := m.sessionKey(guildID, channelID)
	m.mu.Lock()
	rs, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(rs.activeParticipants, userID)
	remaining := len(rs.activeParticipants)
	m.mu.Unlock()

	slog.Info("participant left session channel", "session_id", rs.repoSession.ID, "user_id", userID, "is_bot", isBot, "remaining", remaining)
	if remaining > 0 {
		return nil
	}
	_, err := m.stopSession(guildID, channelID, stopReasonParticipantsLeft)
	return err
}

func (m *Manager) startSession(ctx context.Context, guildID, channelID, userID string) error {
	key := m.sessionKey(guildID, channelID)
	if m.isSessionRunning(guildID, channelID) {
		return ErrAlreadyRunning
	}
	if m.guildBusy(guildID, channelID) {
		return ErrBotBusy
	}
	slog.Info("start session requested", "session_key", key, "user_id", userID)

	if orphan, err := m.repo.GetRunningSessionByChannel(ctx, guildID, channelID); err != nil {
		return fmt.Errorf("query running session: %w", err)
	} else if orphan != nil {
		slog.Warn("found orphan running session in repository; closing and continuing", "session_id", orphan.ID, "channel_id", channelID)
		if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
			SessionID:  orphan.ID,
			EndedAt:    time.Now(),
			StopReason: stopReasonUnknownError,
		}); err != nil {
			return fmt.Errorf("complete orphan session: %w", err)
		}
	}

	note, err := m.noteFor(ctx, guildID, channelID)
	if err != nil {
		return err
	}
	// Waits for the previous session of this channel to finish finalizing.
	note.lifecycle.Lock()
	defer note.lifecycle.Unlock()

	voice, err := m.discord.JoinVoiceChannel(guildID, channelID)
	if err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}

	startedAt := time.Now()
	created, err := m.repo.CreateSession(ctx, repository.CreateSessionInput{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		ChannelID: channelID,
		StartedAt: startedAt,
	})
	if err != nil {
		_ = voice.Disconnect()
		return fmt.Errorf("create session: %w", err)
	}

	note.setSessionID(created.ID)
	if err := note.pipeline.Start(ctx, created.ID); err != nil {
		_ = voice.Disconnect()
		_ = m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{SessionID: created.ID, EndedAt: time.Now(), StopReason: stopReasonUnknownError})
		return fmt.Errorf("start pipeline: %w", err)
	}

	captureCtx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{
		repoSession:        created,
		note:               note,
		voice:              voice,
		mixer:              m.newMixer(),
		cancel:             cancel,
		activeParticipants: make(map[string]participantState),
		allParticipants:    make(map[string]participantState),
	}
	m.seedParticipants(rs, guildID, channelID, userID)

	rs.maxTimer = time.AfterFunc(time.Duration(m.cfg.MaxSessionDurationMin)*time.Minute, func() {
		if _, err := m.stopSession(guildID, channelID, stopReasonMaxDuration); err != nil {
			slog.Error("failed to stop session at max duration", "error", err, "session_id", created.ID)
		}
	})

	m.mu.Lock()
	m.sessions[key] = rs
	m.mu.Unlock()

	m.startCapture(captureCtx, rs)

	slog.Info("session activated", "session_key", key, "session_id", created.ID, "participants", len(rs.activeParticipants))
	if err := m.discord.SendChannelMessage(channelID, m.startChannelMessage()); err != nil {
		slog.Warn("failed to post start message", "error", err, "session_id", created.ID)
	}
	return nil
}

func (m *Manager) seedParticipants(rs *runningSession, guildID, channelID, userID string) {
	rs.activeParticipants[userID] = participantState{}
	rs.allParticipants[userID] = participantState{}
	participants, err := m.discord.ListVoiceChannelParticipants(guildID, channelID)
	if err != nil {
		slog.Warn("failed to list voice channel participants", "error", err, "channel_id", channelID)
		return
	}
	for _, p := range participants {
		rs.allParticipants[p.UserID] = participantState{isBot: p.IsBot}
		if m.shouldCountLifecycleParticipant(p.UserID, p.IsBot) {
			rs.activeParticipants[p.UserID] = participantState{isBot: p.IsBot}
		}
	}
}

// startCapture feeds voice packets into the mixer and cuts the mixed audio
// into chunks for the pipeline until ctx is cancelled.
func (m *Manager) startCapture(ctx context.Context, rs *runningSession) {
	guildID, channelID, sessionID := rs.repoSession.GuildID, rs.repoSession.ChannelID, rs.repoSession.ID

	var packets atomic.Int64
	go m.runSessionWorker(guildID, channelID, sessionID, "voice_receive", func() {
		rs.voice.ReceiveAudio(func(userID string, packet []byte) {
			if n := packets.Add(1); n == 1 || n%500 == 0 {
				slog.Debug("received opus packet", "session_id", sessionID, "user_id", userID, "total_packets", n)
			}
			m.recordSpeaker(guildID, channelID, userID)
			rs.mixer.WriteOpusPacket(userID, packet)
		})
	})

	chunker := audio.NewChunker(rs.mixer, audio.ChunkerConfig{
		ChunkDuration: m.cfg.ChunkDuration,
		MinDuration:   minChunkDuration,
	})
	submitCtx := context.WithoutCancel(ctx)
	rs.capture.Add(1)
	go func() {
		defer rs.capture.Done()
		m.runSessionWorker(guildID, channelID, sessionID, "chunker", func() {
			chunker.Run(ctx, func(chunk audio.Chunk) {
				if err := rs.note.pipeline.SubmitChunk(submitCtx, chunk); err != nil {
					slog.Warn("failed to submit audio chunk", "error", err, "session_id", sessionID, "chunk_id", chunk.ID)
				}
			})
		})
	}()
}

// recordSpeaker keeps everyone heard in the participant list of the note.
func (m *Manager) recordSpeaker(guildID, channelID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.sessions[m.sessionKey(guildID, channelID)]
	if !ok {
		return
	}
	if _, seen := rs.allParticipants[userID]; !seen {
		rs.allParticipants[userID] = participantState{}
	}
}

// runSessionWorker runs fn and stops the session if it panics.
func (m *Manager) runSessionWorker(guildID, channelID, sessionID, worker string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session worker panicked", "session_id", sessionID, "worker", worker, "panic", r, "stack", string(debug.Stack()))
			if _, err := m.stopSession(guildID, channelID, stopReasonUnknownError); err != nil {
				slog.Error("failed to stop session after worker panic", "error", err, "session_id", sessionID)
			}
		}
	}()
	fn()
}

// stopSession detaches the session and finalizes it in the background. It
// reports false when no session was running.
func (m *Manager) stopSession(guildID, channelID, reason string) (bool, error) {
	key := m.sessionKey(guildID, channelID)
	m.mu.Lock()
	rs, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	slog.Info("stopping session", "session_id", rs.repoSession.ID, "channel_id", channelID, "reason", reason)
	if rs.maxTimer != nil {
		rs.maxTimer.Stop()
	}
	if rs.cancel != nil {
		rs.cancel()
	}
	if err := m.discord.SendChannelMessage(channelID, m.stopChannelMessage(reason)); err != nil {
		slog.Warn("failed to post stop message", "error", err, "session_id", rs.repoSession.ID)
	}

	m.finalizing.Add(1)
	go func() {
		defer m.finalizing.Done()
		m.finalizeSession(rs, reason)
	}()
	return true, nil
}

// StopAllSessions stops every running session and waits until each has been
// finalized. It returns how many were stopped.
func (m *Manager) StopAllSessions(reason string) int {
	m.mu.Lock()
	targets := make([]*repository.Session, 0, len(m.sessions))
	for _, rs := range m.sessions {
		targets = append(targets, rs.repoSession)
	}
	m.mu.Unlock()

	count := 0
	for _, s := range targets {
		stopped, err := m.stopSession(s.GuildID, s.ChannelID, reason)
		if err != nil {
			slog.Error("failed to stop session", "error", err, "session_id", s.ID)
			continue
		}
		if stopped {
			count++
		}
	}
	m.finalizing.Wait()
	return count
}

func (m *Manager) finalizeSession(rs *runningSession, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	s := rs.repoSession

	rs.capture.Wait()
	if rs.voice != nil {
		if err := rs.voice.Disconnect(); err != nil {
			slog.Warn("failed to disconnect voice", "error", err, "session_id", s.ID)
		}
	}
	if rs.mixer != nil {
		rs.mixer.Close()
	}

	content := ""
	if note := rs.note; note != nil {
		note.lifecycle.Lock()
		summary, err := note.pipeline.Stop(ctx)
		switch {
		case errors.Is(err, pipeline.ErrNotRunning):
			slog.Warn("pipeline was not running at stop", "session_id", s.ID)
		case err != nil:
			slog.Error("failed to stop pipeline", "error", err, "session_id", s.ID)
		default:
			slog.Info("pipeline stopped", "session_id", s.ID, "document_runes", summary.Snapshot.LiveEnd)
		}
		note.segments.Wait()
		note.autosave.Cancel()
		if err := m.saveNote(ctx, note, true); err != nil {
			slog.Error("failed to save final note", "error", err, "session_id", s.ID)
		}
		note.setSessionID("")
		content = note.doc.String()
		note.lifecycle.Unlock()
	}

	endedAt := time.Now()
	if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
		SessionID:  s.ID,
		EndedAt:    endedAt,
		StopReason: reason,
	}); err != nil {
		slog.Error("failed to complete session", "error", err, "session_id", s.ID)
	}

	segments, err := m.repo.ListSegmentsBySessionID(ctx, s.ID)
	if err != nil {
		slog.Error("failed to list transcript segments; continuing without them", "error", err, "session_id", s.ID)
		segments = nil
	}

	meta, err := m.discord.ResolveNoteMetadata(ctx, s.GuildID, s.ChannelID, noteParticipants(rs.allParticipants))
	if err != nil {
		slog.Warn("failed to resolve note metadata", "error", err, "session_id", s.ID)
	}
	record := noteRecord{
		sessionID:  s.ID,
		meta:       meta,
		startedAt:  s.StartedAt,
		endedAt:    endedAt,
		timezone:   m.cfg.NoteTimezone,
		loc:        m.loc,
		stopReason: reason,
		content:    content,
		segments:   segments,
	}

	if err := m.discord.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID:   s.ChannelID,
		Content:     m.noteAttachmentMessage(),
		Filename:    noteFilename(s.ID, s.StartedAt, m.loc),
		ContentType: "text/markdown",
		FileBody:    buildNoteFile(record),
	}); err != nil {
		slog.Error("failed to post note attachment", "error", err, "session_id", s.ID)
	}
	if m.webhook != nil {
		if err := m.webhook.SendNote(ctx, buildNotePayload(record)); err != nil {
			slog.Error("failed to send note webhook", "error", err, "session_id", s.ID)
		}
	}
	slog.Info("session finalized", "session_id", s.ID, "reason", reason, "segments", len(segments))
}

// Wait blocks until every background finalization has finished.
func (m *Manager) Wait() {
	m.finalizing.Wait()
}

// Shutdown finalizes every running session and then saves pending edits.
func (m *Manager) Shutdown(ctx context.Context) error {
	stopped := m.StopAllSessions(stopReasonServerClosed)
	slog.Info("running sessions finalized", "count", stopped)
	return m.Close(ctx)
}

// Close saves pending note edits and stops autosaving. Call it after
// StopAllSessions.
func (m *Manager) Close(ctx context.Context) error {
	m.notesMu.Lock()
	notes := make([]*channelNote, 0, len(m.notes))
	for _, n := range m.notes {
		notes = append(notes, n)
	}
	m.notesMu.Unlock()

	var errs []error
	for _, n := range notes {
		if err := n.autosave.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save note %s: %w", n.channelID, err))
		}
		n.autosave.Close()
	}
	return errors.Join(errs...)
}

func noteParticipants(participants map[string]participantState) []discord.NoteParticipant {
	out := make([]discord.NoteParticipant, 0, len(participants))
	for id, state := range participants {
		out = append(out, discord.NoteParticipant{UserID: id, IsBot: state.isBot})
	}
	return out
}

func (m *Manager) startChannelMessage() string {
	return messageStartChannelTitle + "\n" + messageStartChannelHint + "\n" + messagePoweredByLine
}

func (m *Manager) stopChannelMessage(reason string) string {
	restart := messageStopRestart
	if stopReasonNeedsRestartAgain(reason) {
		restart = messageStopRestartAgain
	}
	return messageStopChannelTitle + "\n" + stopReasonDetail(reason) + "\n-# " + restart
}

func (m *Manager) noteAttachmentMessage() string {
	return messageAttachmentTitle + "\n" + messagePoweredByLine
}

func (m *Manager) startEphemeralMessage(channelID string) string {
	return startEphemeralTitle(channelID) + "\n" + messageStartEphemeralSecondLine + "\n" + messageStartEphemeralHint
}

func (m *Manager) stopEphemeralMessage(channelID string) string {
	return stopEphemeralTitle(channelID) + "\n" + messageStopEphemeralHint
}
