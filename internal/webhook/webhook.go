package webhook

import "context"

const NotePayloadSchemaVersion = 1

type Sender interface {
	SendNote(ctx context.Context, payload NotePayload) error
}

type NotePayload struct {
	SchemaVersion   int                 `json:"schema_version"`
	SessionID       string              `json:"session_id"`
	GuildID         string              `json:"guild_id"`
	GuildName       string              `json:"guild_name"`
	ChannelID       string              `json:"channel_id"`
	ChannelName     string              `json:"channel_name"`
	StartedAt       string              `json:"started_at"`
	EndedAt         string              `json:"ended_at"`
	Timezone        string              `json:"timezone"`
	DurationSeconds int64               `json:"duration_seconds"`
	StopReason      string              `json:"stop_reason"`
	Participants    []ParticipantRecord `json:"participants"`
	Note            string              `json:"note"`
	Transcript      []SegmentRecord     `json:"transcript"`
}

type ParticipantRecord struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`
}

// SegmentRecord is the raw transcript of one audio chunk.
type SegmentRecord struct {
	ChunkID  string `json:"chunk_id"`
	Sequence int64  `json:"sequence"`
	SpokenAt string `json:"spoken_at"`
	Text     string `json:"text"`
}
