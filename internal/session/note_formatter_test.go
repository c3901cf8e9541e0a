package session

import (
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/mojinote/internal/discord"
	"github.com/foxseedlab/mojinote/internal/repository"
)

func testNoteRecord(t *testing.T) noteRecord {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	started := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	return noteRecord{
		sessionID: "0123456789abcdef",
		meta: discord.NoteMetadata{
			GuildID:     "guild-1",
			GuildName:   "Fox Lab",
			ChannelID:   "vc-1",
			ChannelName: "standup",
			Participants: []discord.NoteParticipant{
				{UserID: "u2", DisplayName: "bob"},
				{UserID: "u1", DisplayName: "Alice"},
				{UserID: "u2", DisplayName: "u2", IsBot: true},
				{UserID: " "},
			},
		},
		startedAt:  started,
		endedAt:    started.Add(90 * time.Minute),
		timezone:   "Asia/Tokyo",
		loc:        loc,
		stopReason: stopReasonManualSlash,
		content:    "<h2>Standup</h2><p>Ship it.</p>\n",
		segments: []repository.TranscriptSegment{
			{ChunkID: "c-0", Sequence: 0, Content: "ship it", SpokenAt: started.Add(65 * time.Second)},
			{ChunkID: "c-1", Sequence: 1, Content: "early", SpokenAt: started.Add(-time.Second)},
		},
	}
}

func TestBuildNoteFile(t *testing.T) {
	got := string(buildNoteFile(testNoteRecord(t)))

	for _, want := range []string{
		"# standup\n",
		"- Server: Fox Lab\n",
		"- Time: 2026-03-01 10:00 ~ 2026-03-01 11:30 (Asia/Tokyo)\n",
		"- Participants: Alice, bob\n",
		"<h2>Standup</h2><p>Ship it.</p>\n",
		"- 00:01:05 ship it\n",
		"- 00:00:00 early\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("note file missing %q:\n%s", want, got)
		}
	}
}

func TestBuildNotePayload(t *testing.T) {
	got := buildNotePayload(testNoteRecord(t))

	if got.SchemaVersion != 1 || got.SessionID != "0123456789abcdef" {
		t.Fatalf("unexpected identity fields: %+v", got)
	}
	if got.StartedAt != "2026-03-01T10:00:00+09:00" || got.EndedAt != "2026-03-01T11:30:00+09:00" {
		t.Fatalf("unexpected times: %s %s", got.StartedAt, got.EndedAt)
	}
	if got.DurationSeconds != 5400 || got.StopReason != stopReasonManualSlash {
		t.Fatalf("unexpected duration or reason: %d %s", got.DurationSeconds, got.StopReason)
	}
	if len(got.Participants) != 2 || got.Participants[0].DisplayName != "Alice" || !got.Participants[1].IsBot {
		t.Fatalf("unexpected participants: %+v", got.Participants)
	}
	if len(got.Transcript) != 2 || got.Transcript[0].ChunkID != "c-0" || got.Transcript[0].SpokenAt != "2026-03-01T10:01:05+09:00" {
		t.Fatalf("unexpected transcript: %+v", got.Transcript)
	}
}

func TestNoteFilename(t *testing.T) {
	r := testNoteRecord(t)
	if got := noteFilename(r.sessionID, r.startedAt, r.loc); got != "note-20260301-1000-01234567.md" {
		t.Fatalf("unexpected filename: %s", got)
	}
	if got := noteFilename("abc", r.startedAt, nil); got != "note-20260301-0100-abc.md" {
		t.Fatalf("unexpected filename: %s", got)
	}
}

func TestFormatElapsedHMS(t *testing.T) {
	if got := formatElapsedHMS(3*time.Hour + 2*time.Minute + 1*time.Second); got != "03:02:01" {
		t.Fatalf("unexpected elapsed format: %s", got)
	}
}
