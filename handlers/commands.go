package handlers

import (
	"sync"

	"ticket-bot/lang"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Commands returns the slash commands served by Tickets.
func (t *Tickets) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ticket",
			Description: lang.T("command_description"),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: lang.T("command_reason_description"),
					MaxLength:   maxReasonLength,
				},
			},
		},
	}
}

func (t *Tickets) Register(s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		t.HandleInteraction(i)
	})
}

func (t *Tickets) HandleInteraction(i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		t.handleSlashCommand(i)
	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		if !t.routes.dispatch(customID, i) {
			t.log.Debug("Unknown component", zap.String("custom_id", customID))
		}
	case discordgo.InteractionModalSubmit:
		if i.ModalSubmitData().CustomID == modalID {
			t.handleModalSubmit(i)
		}
	}
}

func (t *Tickets) handleSlashCommand(i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	switch name {
	case "ticket":
		opts := optionMap(i)
		t.openTicket(i, optStr(opts, "reason", lang.T("no_reason")))
	default:
		t.log.Debug("Unknown command", zap.String("command", name))
	}
}

// componentRoutes maps button custom ids to handlers. Routes added with
// persist survive across reconnects of the same process and are re-added on
// every Ready, which keeps buttons on messages from earlier runs working.
type componentRoutes struct {
	mu     sync.RWMutex
	routes map[string]func(*discordgo.InteractionCreate)
}

func newComponentRoutes() *componentRoutes {
	return &componentRoutes{routes: make(map[string]func(*discordgo.InteractionCreate))}
}

func (r *componentRoutes) handle(customID string, fn func(*discordgo.InteractionCreate)) {
	r.mu.Lock()
	r.routes[customID] = fn
	r.mu.Unlock()
}

func (r *componentRoutes) persist(customID string, fn func(*discordgo.InteractionCreate)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.routes[customID]
	r.routes[customID] = fn
	return !existed
}

func (r *componentRoutes) dispatch(customID string, i *discordgo.InteractionCreate) bool {
	r.mu.RLock()
	fn, ok := r.routes[customID]
	r.mu.RUnlock()
	if ok {
		fn(i)
	}
	return ok
}

func (t *Tickets) respond(i *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := t.platform.Respond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		t.log.Error("Failed to respond", interactionFields(i, zap.Error(err))...)
	}
}

func (t *Tickets) followup(i *discordgo.InteractionCreate, content string) {
	err := t.platform.Followup(i.Interaction, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		t.log.Error("Followup failed, user sees nothing", interactionFields(i, zap.Error(err))...)
	}
}

func invoker(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func interactionFields(i *discordgo.InteractionCreate, extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.String("guild", i.GuildID),
		zap.String("channel", i.ChannelID),
	}
	if u := invoker(i); u != nil {
		fields = append(fields, zap.String("user", u.ID))
	}
	return append(fields, extra...)
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	for _, opt := range i.ApplicationCommandData().Options {
		m[opt.Name] = opt
	}
	return m
}

func optStr(m map[string]*discordgo.ApplicationCommandInteractionDataOption, key, def string) string {
	if o, ok := m[key]; ok {
		return o.StringValue()
	}
	return def
}
