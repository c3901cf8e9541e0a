package session

import "fmt"

const (
	slashCommandStartDescription  = "Start taking notes in the voice channel you are in."
	slashCommandStopDescription   = "Stop taking notes in the voice channel you are in."
	slashCommandAppendDescription = "Append text to the end of the note."
	slashCommandInsertDescription = "Insert text into the note at a character offset."
	slashCommandDeleteDescription = "Delete a character range from the note."
	slashCommandShowDescription   = "Show the current note."

	messageEphemeralWrongGuild        = ":warning: **This command cannot be used in this server.**"
	messageEphemeralUnknownCommand    = ":warning: **Unknown command.**"
	messageEphemeralVoiceLookupFailed = ":warning: **Could not check your voice channel.**"
	messageEphemeralJoinVCFirst       = ":warning: **Join a voice channel first.**"
	messageEphemeralAlreadyRunning    = ":warning: **Notes are already being taken in this voice channel.**"
	messageEphemeralBotBusy           = ":warning: **Notes are being taken in another voice channel of this server.**"
	messageEphemeralStartFailed       = ":warning: **Failed to start taking notes.**"
	messageEphemeralStopFailed        = ":warning: **Failed to stop taking notes.**"
	messageEphemeralNotRunning        = ":warning: **Notes are not being taken in this voice channel.**"
	messageEphemeralNoteUnavailable   = ":warning: **The note could not be loaded.**"
	messageEphemeralEmptyText         = ":warning: **Text must not be empty.**"
	messageEphemeralOutOfRange        = ":warning: **That position is outside the note.**"
	messageEphemeralEditFailed        = ":warning: **The note could not be edited.**"
	messageEphemeralNoteEmpty         = ":notepad_spiral: **The note is empty.**"
	messagePoweredByLine              = "-# *Powered by [Mojinote](https://github.com/foxseedlab/mojinote)*"

	messageStartChannelTitle = ":microphone2: **Started taking notes.**"
	messageStartChannelHint  = "-# Use /note-stop to stop."

	messageStopChannelTitle = ":pause_button:  **Stopped taking notes.**"
	messageStopRestart      = "Use /note-start to start."
	messageStopRestartAgain = "Use /note-start to start again."

	messageAttachmentTitle = ":page_facing_up:  **Meeting note**"

	messageStartEphemeralTitleFormat = ":microphone2: **Started taking notes in** <#%s>**.**"
	messageStopEphemeralTitleFormat  = ":pause_button:  **Stopped taking notes in** <#%s>**.**"

	messageStartEphemeralSecondLine = "-# The note is written as people speak. Edit it with /note-append, /note-insert and /note-delete."
	messageStartEphemeralHint       = "-# Use /note-stop to stop."
	messageStopEphemeralHint        = "-# The finished note will be posted to the channel shortly."

	messageInsertedFormat = ":pencil2: Inserted %d characters at %d. The note is now %d characters long."
	messageDeletedFormat  = ":scissors: Deleted %d characters from %d. The note is now %d characters long."
	messageShowFormat     = ":notepad_spiral: **Note for** <#%s> (%d characters, polished up to %d, formatted up to %d)\n```\n%s\n```"
)

func startEphemeralTitle(channelID string) string {
	return fmt.Sprintf(messageStartEphemeralTitleFormat, channelID)
}

func stopEphemeralTitle(channelID string) string {
	return fmt.Sprintf(messageStopEphemeralTitleFormat, channelID)
}

func stopReasonDetail(reason string) string {
	switch reason {
	case stopReasonMaxDuration:
		return "The maximum note-taking time was reached."
	case stopReasonManualSlash:
		return "A participant ran the stop command."
	case stopReasonParticipantsLeft:
		return "Everyone left the voice channel."
	case stopReasonBotRemoved:
		return "The bot was removed from the voice channel."
	case stopReasonServerClosed:
		return "The note-taking server shut down."
	default:
		return "An unknown error occurred."
	}
}

func stopReasonNeedsRestartAgain(reason string) bool {
	switch reason {
	case stopReasonMaxDuration, stopReasonServerClosed, stopReasonUnknownError:
		return true
	default:
		return false
	}
}
