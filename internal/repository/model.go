package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
)

type Session struct {
	ID         string
	GuildID    string
	ChannelID  string
	StartedAt  time.Time
	EndedAt    *time.Time
	Status     SessionStatus
	StopReason string
}

// TranscriptSegment is the raw Layer 1 text of one audio chunk.
type TranscriptSegment struct {
	ID        string
	SessionID string
	ChunkID   string
	Sequence  int64
	Content   string
	SpokenAt  time.Time
	CreatedAt time.Time
}

// Note is the latest saved document of a voice channel.
type Note struct {
	GuildID        string
	ChannelID      string
	SessionID      string
	Content        string
	FormatBoundary int
	PolishBoundary int
	UpdatedAt      time.Time
}
