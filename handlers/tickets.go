package handlers

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ticket-bot/config"
	"ticket-bot/lang"
	"ticket-bot/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	createButtonID = "ticket_create"
	closeButtonID  = "ticket_close"
	modalID        = "ticket_modal"
	reasonInputID  = "ticket_reason"

	ticketPrefix    = "ticket-"
	maxReasonLength = 500
	maxOpenControls = 10000
)

var ErrCategoryNotFound = errors.New("ticket category not found")

// Tickets serves the ticket workflow for one guild configuration.
type Tickets struct {
	cfg      config.TicketsConfig
	platform Platform
	panels   storage.PanelStore
	log      *zap.Logger

	routes *componentRoutes

	// closeControls holds the intro messages whose close button still accepts
	// clicks. Entries expire after cfg.CloseTimeout without a click.
	closeControls *expirable.LRU[string, struct{}]

	// creating serializes find-or-create per guild and user.
	creating    singleflight.Group
	reconciling atomic.Bool
}

func New(cfg config.TicketsConfig, platform Platform, panels storage.PanelStore, log *zap.Logger) *Tickets {
	t := &Tickets{
		cfg:           cfg,
		platform:      platform,
		panels:        panels,
		log:           log,
		routes:        newComponentRoutes(),
		closeControls: expirable.NewLRU[string, struct{}](maxOpenControls, nil, cfg.CloseTimeout),
	}
	t.routes.handle(closeButtonID, t.handleCloseButton)
	return t
}

type createResult struct {
	channel *discordgo.Channel
	existed bool
}

func (t *Tickets) handleCreateButton(i *discordgo.InteractionCreate) {
	err := t.platform.Respond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: modalID,
			Title:    lang.T("modal_title"),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    reasonInputID,
							Label:       lang.T("modal_reason_label"),
							Style:       discordgo.TextInputParagraph,
							Placeholder: lang.T("modal_reason_placeholder"),
							Required:    false,
							MaxLength:   maxReasonLength,
						},
					},
				},
			},
		},
	})
	if err != nil {
		t.log.Error("Failed to open ticket modal", interactionFields(i, zap.Error(err))...)
	}
}

func (t *Tickets) handleModalSubmit(i *discordgo.InteractionCreate) {
	reason := modalValue(i.ModalSubmitData(), reasonInputID)
	t.log.Info("Ticket modal submitted", interactionFields(i, zap.String("reason", reason))...)
	t.openTicket(i, reason)
}

// openTicket acknowledges i and then runs the creation flow, reporting the
// outcome through private followups.
func (t *Tickets) openTicket(i *discordgo.InteractionCreate, reason string) {
	if strings.TrimSpace(reason) == "" {
		reason = lang.T("no_reason")
	}

	err := t.platform.Respond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		t.log.Error("Failed to defer ticket interaction", interactionFields(i, zap.Error(err))...)
		return
	}

	res, err := t.createTicket(i.GuildID, invoker(i), reason)
	if err != nil {
		t.log.Error("Ticket creation failed", interactionFields(i, zap.Error(err))...)
		msg := err.Error()
		if errors.Is(err, ErrCategoryNotFound) {
			msg = lang.T("category_missing", "name", t.cfg.Category)
		}
		t.followup(i, lang.T("ticket_create_failed", "error", msg))
		return
	}

	if res.existed {
		t.followup(i, lang.T("ticket_exists", "channel", res.channel.Mention()))
		return
	}
	t.followup(i, lang.T("ticket_created", "channel", res.channel.Mention()))
}

// createTicket returns the user's ticket channel in the ticket category,
// creating it if needed. Concurrent calls for the same user share one run.
func (t *Tickets) createTicket(guildID string, user *discordgo.User, reason string) (createResult, error) {
	if user == nil {
		return createResult{}, errors.New("interaction has no user")
	}
	v, err, _ := t.creating.Do(guildID+":"+user.ID, func() (interface{}, error) {
		return t.findOrCreate(guildID, user, reason)
	})
	if err != nil {
		return createResult{}, err
	}
	return v.(createResult), nil
}

func (t *Tickets) findOrCreate(guildID string, user *discordgo.User, reason string) (createResult, error) {
	channels, err := t.platform.GuildChannels(guildID)
	if err != nil {
		return createResult{}, fmt.Errorf("list channels: %w", err)
	}
	category := findCategory(channels, t.cfg.Category)
	if category == nil {
		return createResult{}, fmt.Errorf("%w: %q", ErrCategoryNotFound, t.cfg.Category)
	}

	name := ticketChannelName(user.ID)
	for _, ch := range channels {
		if ch.Name == name && ch.ParentID == category.ID {
			return createResult{channel: ch, existed: true}, nil
		}
	}

	roles, err := t.platform.GuildRoles(guildID)
	if err != nil {
		return createResult{}, fmt.Errorf("list roles: %w", err)
	}
	admin := findRole(roles, t.cfg.AdminRole)
	support := findRole(roles, t.cfg.SupportRole)
	if support == nil {
		t.log.Debug("Support role not found, skipping", zap.String("role", t.cfg.SupportRole))
	}

	ch, err := t.platform.CreateChannel(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                lang.T("ticket_topic", "user", user.Mention(), "reason", reason),
		ParentID:             category.ID,
		PermissionOverwrites: ticketOverwrites(guildID, user.ID, t.platform.BotUserID(), admin, support),
	})
	if err != nil {
		return createResult{}, fmt.Errorf("create channel: %w", err)
	}

	msg, err := t.platform.SendMessage(ch.ID, t.introMessage(user, reason))
	if err != nil {
		return createResult{}, fmt.Errorf("send intro message: %w", err)
	}
	t.closeControls.Add(msg.ID, struct{}{})

	t.log.Info("Ticket channel created",
		zap.String("guild", guildID),
		zap.String("channel", ch.ID),
		zap.String("name", ch.Name),
		zap.String("user", user.ID),
	)
	return createResult{channel: ch}, nil
}

// ticketOverwrites hides the channel from @everyone and opens it to the
// ticket owner, the bot and the configured staff roles.
func ticketOverwrites(guildID, userID, botID string, admin, support *discordgo.Role) []*discordgo.PermissionOverwrite {
	const readWrite = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: userID, Type: discordgo.PermissionOverwriteTypeMember, Allow: readWrite},
	}
	if botID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: readWrite,
		})
	}
	if admin != nil {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: admin.ID, Type: discordgo.PermissionOverwriteTypeRole, Allow: readWrite | discordgo.PermissionManageMessages,
		})
	}
	if support != nil {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: support.ID, Type: discordgo.PermissionOverwriteTypeRole, Allow: readWrite,
		})
	}
	return overwrites
}

func (t *Tickets) introMessage(user *discordgo.User, reason string) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       lang.T("intro_title"),
		Description: lang.T("intro_description", "user", user.Mention(), "reason", reason),
		Color:       0x3498DB,
		Fields: []*discordgo.MessageEmbedField{
			{Name: lang.T("intro_field_name"), Value: lang.T("intro_field_value", "role", t.cfg.AdminRole)},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    lang.T("close_button_label"),
						Style:    discordgo.SuccessButton,
						CustomID: closeButtonID,
						Emoji:    &discordgo.ComponentEmoji{Name: "🟢"},
					},
				},
			},
		},
	}
}

func ticketChannelName(userID string) string {
	return ticketPrefix + userID
}

func findCategory(channels []*discordgo.Channel, name string) *discordgo.Channel {
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == name {
			return ch
		}
	}
	return nil
}

func findRole(roles []*discordgo.Role, name string) *discordgo.Role {
	if name == "" {
		return nil
	}
	for _, r := range roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		var comps []discordgo.MessageComponent
		switch r := row.(type) {
		case *discordgo.ActionsRow:
			comps = r.Components
		case discordgo.ActionsRow:
			comps = r.Components
		}
		for _, comp := range comps {
			if ti, ok := comp.(*discordgo.TextInput); ok && ti.CustomID == customID {
				return ti.Value
			}
		}
	}
	return ""
}
