package handlers

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// ErrMemberNotFound is returned by Platform.GuildMember when the user is not
// (or no longer) a member of the guild.
var ErrMemberNotFound = errors.New("member not found")

// Platform is the slice of the Discord API the ticket handlers use. The live
// implementation wraps a *discordgo.Session; tests substitute a fake.
type Platform interface {
	GuildRoles(guildID string) ([]*discordgo.Role, error)
	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	GuildMember(guildID, userID string) (*discordgo.Member, error)
	Channel(channelID string) (*discordgo.Channel, error)

	CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	CreateCategory(guildID, name string) (*discordgo.Channel, error)
	ClearPermission(channelID, targetID string) error
	MoveChannel(channelID, parentID string) error

	SendMessage(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	RecentMessages(channelID string, limit int) ([]*discordgo.Message, error)
	Message(channelID, messageID string) (*discordgo.Message, error)

	Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	Followup(i *discordgo.Interaction, params *discordgo.WebhookParams) error

	BotUserID() string
}

type sessionPlatform struct {
	s *discordgo.Session
}

func NewSessionPlatform(s *discordgo.Session) Platform {
	return &sessionPlatform{s: s}
}

func (p *sessionPlatform) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	return p.s.GuildRoles(guildID)
}

func (p *sessionPlatform) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return p.s.GuildChannels(guildID)
}

func (p *sessionPlatform) GuildMember(guildID, userID string) (*discordgo.Member, error) {
	m, err := p.s.GuildMember(guildID, userID)
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
				return nil, ErrMemberNotFound
			}
		}
	}
	return m, err
}

func (p *sessionPlatform) Channel(channelID string) (*discordgo.Channel, error) {
	return p.s.Channel(channelID)
}

func (p *sessionPlatform) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return p.s.GuildChannelCreateComplex(guildID, data)
}

func (p *sessionPlatform) CreateCategory(guildID, name string) (*discordgo.Channel, error) {
	return p.s.GuildChannelCreate(guildID, name, discordgo.ChannelTypeGuildCategory)
}

func (p *sessionPlatform) ClearPermission(channelID, targetID string) error {
	return p.s.ChannelPermissionDelete(channelID, targetID)
}

func (p *sessionPlatform) MoveChannel(channelID, parentID string) error {
	_, err := p.s.ChannelEdit(channelID, &discordgo.ChannelEdit{ParentID: parentID})
	return err
}

func (p *sessionPlatform) SendMessage(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	return p.s.ChannelMessageSendComplex(channelID, msg)
}

func (p *sessionPlatform) RecentMessages(channelID string, limit int) ([]*discordgo.Message, error) {
	return p.s.ChannelMessages(channelID, limit, "", "", "")
}

func (p *sessionPlatform) Message(channelID, messageID string) (*discordgo.Message, error) {
	return p.s.ChannelMessage(channelID, messageID)
}

func (p *sessionPlatform) Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return p.s.InteractionRespond(i, resp)
}

func (p *sessionPlatform) Followup(i *discordgo.Interaction, params *discordgo.WebhookParams) error {
	_, err := p.s.FollowupMessageCreate(i, true, params)
	return err
}

func (p *sessionPlatform) BotUserID() string {
	if p.s.State == nil || p.s.State.User == nil {
		return ""
	}
	return p.s.State.User.ID
}
