package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/foxseedlab/mojinote/internal/discord"
	"github.com/foxseedlab/mojinote/internal/repository"
	"github.com/foxseedlab/mojinote/internal/webhook"
)

const noteTimeLayout = "2006-01-02 15:04"

type noteRecord struct {
	sessionID  string
	meta       discord.NoteMetadata
	startedAt  time.Time
	endedAt    time.Time
	timezone   string
	loc        *time.Location
	stopReason string
	content    string
	segments   []repository.TranscriptSegment
}

// buildNoteFile renders the finished note as markdown with a short header.
func buildNoteFile(r noteRecord) []byte {
	loc := safeLocation(r.loc)
	participants := canonicalParticipants(r.meta.Participants)
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		names = append(names, p.DisplayName)
	}

	lines := []string{
		fmt.Sprintf("# %s", r.meta.ChannelName),
		"",
		fmt.Sprintf("- Server: %s", r.meta.GuildName),
		fmt.Sprintf("- Time: %s ~ %s (%s)", r.startedAt.In(loc).Format(noteTimeLayout), r.endedAt.In(loc).Format(noteTimeLayout), r.timezone),
		fmt.Sprintf("- Participants: %s", strings.Join(names, ", ")),
		"",
		strings.TrimSpace(r.content),
	}
	if len(r.segments) > 0 {
		lines = append(lines, "", "## Transcript", "")
		for _, seg := range r.segments {
			elapsed := seg.SpokenAt.Sub(r.startedAt)
			if elapsed < 0 {
				elapsed = 0
			}
			lines = append(lines, fmt.Sprintf("- %s %s", formatElapsedHMS(elapsed), strings.TrimSpace(seg.Content)))
		}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func buildNotePayload(r noteRecord) webhook.NotePayload {
	loc := safeLocation(r.loc)
	participants := canonicalParticipants(r.meta.Participants)
	records := make([]webhook.ParticipantRecord, 0, len(participants))
	for _, p := range participants {
		records = append(records, webhook.ParticipantRecord{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			IsBot:       p.IsBot,
		})
	}
	segments := make([]webhook.SegmentRecord, 0, len(r.segments))
	for _, seg := range r.segments {
		segments = append(segments, webhook.SegmentRecord{
			ChunkID:  seg.ChunkID,
			Sequence: seg.Sequence,
			SpokenAt: seg.SpokenAt.In(loc).Format(time.RFC3339),
			Text:     seg.Content,
		})
	}

	durationSeconds := int64(r.endedAt.Sub(r.startedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return webhook.NotePayload{
		SchemaVersion:   webhook.NotePayloadSchemaVersion,
		SessionID:       r.sessionID,
		GuildID:         r.meta.GuildID,
		GuildName:       r.meta.GuildName,
		ChannelID:       r.meta.ChannelID,
		ChannelName:     r.meta.ChannelName,
		StartedAt:       r.startedAt.In(loc).Format(time.RFC3339),
		EndedAt:         r.endedAt.In(loc).Format(time.RFC3339),
		Timezone:        r.timezone,
		DurationSeconds: durationSeconds,
		StopReason:      r.stopReason,
		Participants:    records,
		Note:            r.content,
		Transcript:      segments,
	}
}

func noteFilename(sessionID string, startedAt time.Time, loc *time.Location) string {
	return fmt.Sprintf("note-%s-%s.md", startedAt.In(safeLocation(loc)).Format("20060102-1504"), shortID(sessionID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func canonicalParticipants(participants []discord.NoteParticipant) []discord.NoteParticipant {
	byUserID := make(map[string]discord.NoteParticipant, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p.UserID) == "" {
			continue
		}
		byUserID[p.UserID] = mergeParticipant(byUserID[p.UserID], p)
	}
	list := make([]discord.NoteParticipant, 0, len(byUserID))
	for _, p := range byUserID {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		in := strings.ToLower(list[i].DisplayName)
		jn := strings.ToLower(list[j].DisplayName)
		if in != jn {
			return in < jn
		}
		return list[i].UserID < list[j].UserID
	})
	return list
}

func mergeParticipant(existing, incoming discord.NoteParticipant) discord.NoteParticipant {
	if incoming.DisplayName == "" {
		incoming.DisplayName = incoming.UserID
	}
	if existing.UserID == "" {
		return incoming
	}
	if existing.DisplayName == existing.UserID {
		existing.DisplayName = incoming.DisplayName
	}
	existing.IsBot = existing.IsBot || incoming.IsBot
	return existing
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
