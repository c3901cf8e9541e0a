package discord

import "context"

type FileMessage struct {
	ChannelID   string
	Content     string
	Filename    string
	ContentType string
	FileBody    []byte
}

type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionInteger
)

type SlashCommandOption struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	MinValue    *float64
}

type SlashCommandDefinition struct {
	Name        string
	Description string
	Options     []SlashCommandOption
}

type SlashCommandEvent struct {
	GuildID     string
	ChannelID   string
	CommandName string
	UserID      string
	// StringOptions and IntegerOptions hold the options the user supplied,
	// keyed by option name.
	StringOptions    map[string]string
	IntegerOptions   map[string]int64
	RespondEphemeral func(content string) error
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type VoiceParticipant struct {
	UserID string
	IsBot  bool
}

type NoteParticipant struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

type NoteMetadata struct {
	GuildID      string
	GuildName    string
	ChannelID    string
	ChannelName  string
	Participants []NoteParticipant
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	JoinVoiceChannel(guildID, channelID string) (VoiceConnection, error)
	SendChannelMessage(channelID, content string) error
	SendChannelMessageWithFile(msg FileMessage) error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	GetUserVoiceChannelID(guildID, userID string) (string, error)
	ListVoiceChannelParticipants(guildID, channelID string) ([]VoiceParticipant, error)
	GetBotUserID() (string, error)
	// ResolveNoteMetadata fills in guild, channel and participant display names.
	ResolveNoteMetadata(ctx context.Context, guildID, channelID string, participants []NoteParticipant) (NoteMetadata, error)
}

type VoiceConnection interface {
	Disconnect() error
	// ReceiveAudio blocks, delivering opus packets until the connection closes.
	ReceiveAudio(callback func(userID string, opusPacket []byte))
}
