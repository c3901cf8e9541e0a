package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	ID        string
	GuildID   string
	ChannelID string
	StartedAt time.Time
}

type CompleteSessionInput struct {
	SessionID  string
	EndedAt    time.Time
	StopReason string
}

type InsertSegmentInput struct {
	SessionID string
	ChunkID   string
	Sequence  int64
	Content   string
	SpokenAt  time.Time
}

type SaveNoteInput struct {
	GuildID        string
	ChannelID      string
	SessionID      string
	Content        string
	FormatBoundary int
	PolishBoundary int
	// Final also records the content as the session's finished note.
	Final   bool
	SavedAt time.Time
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	UpdateSessionCompleted(ctx context.Context, input CompleteSessionInput) error
	GetRunningSessionByChannel(ctx context.Context, guildID, channelID string) (*Session, error)
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
	ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]TranscriptSegment, error)
}

type NoteRepository interface {
	SaveNote(ctx context.Context, input SaveNoteInput) error
	// GetNote returns nil when the channel has no note yet.
	GetNote(ctx context.Context, guildID, channelID string) (*Note, error)
}

type Repository interface {
	SessionRepository
	TranscriptRepository
	NoteRepository
}
