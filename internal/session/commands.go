package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxseedlab/mojinote/internal/discord"
	"github.com/foxseedlab/mojinote/internal/document"
)

const (
	commandNoteStart  = "note-start"
	commandNoteStop   = "note-stop"
	commandNoteAppend = "note-append"
	commandNoteInsert = "note-insert"
	commandNoteDelete = "note-delete"
	commandNoteShow   = "note-show"

	optionText   = "text"
	optionOffset = "offset"
	optionStart  = "start"
	optionEnd    = "end"

	// showPreviewRunes keeps /note-show under Discord's message limit.
	showPreviewRunes = 1700
)

var minOffset = 0.0

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	text := discord.SlashCommandOption{Name: optionText, Description: "Text to add", Type: discord.OptionString, Required: true}
	return []discord.SlashCommandDefinition{
		{Name: commandNoteStart, Description: slashCommandStartDescription},
		{Name: commandNoteStop, Description: slashCommandStopDescription},
		{Name: commandNoteAppend, Description: slashCommandAppendDescription, Options: []discord.SlashCommandOption{text}},
		{Name: commandNoteInsert, Description: slashCommandInsertDescription, Options: []discord.SlashCommandOption{
			{Name: optionOffset, Description: "Character offset to insert at", Type: discord.OptionInteger, Required: true, MinValue: &minOffset},
			text,
		}},
		{Name: commandNoteDelete, Description: slashCommandDeleteDescription, Options: []discord.SlashCommandOption{
			{Name: optionStart, Description: "First character to delete", Type: discord.OptionInteger, Required: true, MinValue: &minOffset},
			{Name: optionEnd, Description: "Character offset to stop before", Type: discord.OptionInteger, Required: true, MinValue: &minOffset},
		}},
		{Name: commandNoteShow, Description: slashCommandShowDescription},
	}
}

func (m *Manager) HandleSlashCommand(event discord.SlashCommandEvent) {
	respond := func(content string) {
		if event.RespondEphemeral == nil {
			return
		}
		if err := event.RespondEphemeral(content); err != nil {
			slog.Error("failed to respond to slash command", "error", err, "command", event.CommandName)
		}
	}
	if event.GuildID != m.cfg.DiscordGuildID {
		respond(messageEphemeralWrongGuild)
		return
	}

	ctx := context.Background()
	switch event.CommandName {
	case commandNoteStart:
		respond(m.handleStartCommand(ctx, event))
	case commandNoteStop:
		respond(m.handleStopCommand(event))
	case commandNoteAppend, commandNoteInsert, commandNoteDelete, commandNoteShow:
		respond(m.handleEditCommand(ctx, event))
	default:
		respond(messageEphemeralUnknownCommand)
	}
}

func (m *Manager) handleStartCommand(ctx context.Context, event discord.SlashCommandEvent) string {
	channelID, err := m.discord.GetUserVoiceChannelID(event.GuildID, event.UserID)
	if err != nil {
		slog.Error("failed to look up voice channel", "error", err, "user_id", event.UserID)
		return messageEphemeralVoiceLookupFailed
	}
	if channelID == "" {
		return messageEphemeralJoinVCFirst
	}

	err = m.startSession(ctx, event.GuildID, channelID, event.UserID)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return messageEphemeralAlreadyRunning
	case errors.Is(err, ErrBotBusy):
		return messageEphemeralBotBusy
	case err != nil:
		slog.Error("failed to start session", "error", err, "channel_id", channelID)
		return messageEphemeralStartFailed
	}
	return m.startEphemeralMessage(channelID)
}

func (m *Manager) handleStopCommand(event discord.SlashCommandEvent) string {
	channelID, err := m.discord.GetUserVoiceChannelID(event.GuildID, event.UserID)
	if err != nil {
		slog.Error("failed to look up voice channel", "error", err, "user_id", event.UserID)
		return messageEphemeralVoiceLookupFailed
	}
	if channelID == "" {
		return messageEphemeralJoinVCFirst
	}

	stopped, err := m.stopSession(event.GuildID, channelID, stopReasonManualSlash)
	if err != nil {
		slog.Error("failed to stop session", "error", err, "channel_id", channelID)
		return messageEphemeralStopFailed
	}
	if !stopped {
		return messageEphemeralNotRunning
	}
	return m.stopEphemeralMessage(channelID)
}

// handleEditCommand applies a human edit to the note of the caller's voice
// channel, or of the channel the command was used in.
func (m *Manager) handleEditCommand(ctx context.Context, event discord.SlashCommandEvent) string {
	channelID, err := m.discord.GetUserVoiceChannelID(event.GuildID, event.UserID)
	if err != nil {
		slog.Warn("failed to look up voice channel; using command channel", "error", err, "user_id", event.UserID)
	}
	if channelID == "" {
		channelID = event.ChannelID
	}
	note, err := m.noteFor(ctx, event.GuildID, channelID)
	if err != nil {
		slog.Error("failed to load note", "error", err, "channel_id", channelID)
		return messageEphemeralNoteUnavailable
	}

	switch event.CommandName {
	case commandNoteAppend:
		return m.appendText(note, event.StringOptions[optionText])
	case commandNoteInsert:
		return m.insertText(note, int(event.IntegerOptions[optionOffset]), event.StringOptions[optionText])
	case commandNoteDelete:
		return m.deleteRange(note, int(event.IntegerOptions[optionStart]), int(event.IntegerOptions[optionEnd]))
	default:
		return showNote(note)
	}
}

func (m *Manager) appendText(note *channelNote, text string) string {
	if strings.TrimSpace(text) == "" {
		return messageEphemeralEmptyText
	}
	return m.insertText(note, note.tracker.Snapshot().LiveEnd, text)
}

func (m *Manager) insertText(note *channelNote, offset int, text string) string {
	if strings.TrimSpace(text) == "" {
		return messageEphemeralEmptyText
	}
	snap, err := note.tracker.Insert(offset, text)
	if err != nil {
		return editFailure(note, err)
	}
	slog.Info("note edited", "channel_id", note.channelID, "op", "insert", "offset", offset, "runes", document.RuneLen(text))
	return fmt.Sprintf(messageInsertedFormat, document.RuneLen(text), offset, snap.LiveEnd)
}

func (m *Manager) deleteRange(note *channelNote, start, end int) string {
	if start > end {
		start, end = end, start
	}
	removed, snap, err := note.tracker.Delete(start, end)
	if err != nil {
		return editFailure(note, err)
	}
	slog.Info("note edited", "channel_id", note.channelID, "op", "delete", "start", start, "end", end)
	return fmt.Sprintf(messageDeletedFormat, removed, start, snap.LiveEnd)
}

func editFailure(note *channelNote, err error) string {
	if errors.Is(err, document.ErrOutOfRange) {
		return messageEphemeralOutOfRange
	}
	slog.Error("failed to edit note", "error", err, "channel_id", note.channelID)
	return messageEphemeralEditFailed
}

func showNote(note *channelNote) string {
	text, err := note.tracker.Text()
	if err != nil {
		slog.Error("failed to read note", "error", err, "channel_id", note.channelID)
		return messageEphemeralNoteUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return messageEphemeralNoteEmpty
	}
	snap := note.tracker.Snapshot()
	preview := []rune(text)
	if len(preview) > showPreviewRunes {
		preview = append([]rune("…"), preview[len(preview)-showPreviewRunes:]...)
	}
	body := strings.ReplaceAll(string(preview), "```", "'''")
	return fmt.Sprintf(messageShowFormat, note.channelID, snap.LiveEnd, snap.Polish, snap.Format, body)
}
