package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ticket-bot/lang"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	ErrNotTicketChannel    = errors.New("not a ticket channel")
	ErrMalformedTicketName = errors.New("ticket channel name does not carry a user id")
)

func (t *Tickets) handleCloseButton(i *discordgo.InteractionCreate) {
	if i.Message == nil {
		t.respond(i, lang.T("close_expired"), true)
		return
	}
	controlID := i.Message.ID
	if _, ok := t.closeControls.Get(controlID); !ok {
		t.respond(i, lang.T("close_expired"), true)
		return
	}
	t.closeControls.Add(controlID, struct{}{})

	roles, err := t.platform.GuildRoles(i.GuildID)
	if err != nil {
		t.log.Error("Failed to list roles", interactionFields(i, zap.Error(err))...)
		t.respond(i, lang.T("close_failed", "error", err.Error()), true)
		return
	}
	if !canClose(i.GuildID, i.Member, roles, t.cfg.AdminRole) {
		t.respond(i, lang.T("close_denied", "role", t.cfg.AdminRole), true)
		return
	}

	ch, err := t.platform.Channel(i.ChannelID)
	if err != nil {
		t.log.Error("Failed to fetch ticket channel", interactionFields(i, zap.Error(err))...)
		t.respond(i, lang.T("close_failed", "error", err.Error()), true)
		return
	}

	ownerID, err := ticketOwner(ch.Name)
	switch {
	case errors.Is(err, ErrNotTicketChannel):
		t.respond(i, lang.T("close_not_ticket"), true)
		return
	case err != nil:
		t.log.Error("Could not extract user id from channel name", interactionFields(i, zap.String("name", ch.Name), zap.Error(err))...)
		t.respond(i, lang.T("close_malformed", "channel", ch.Mention()), true)
		return
	}

	if err := t.revokeOwner(i.GuildID, ch, ownerID); err != nil {
		t.log.Error("Failed to revoke ticket owner access", interactionFields(i, zap.Error(err))...)
		t.respond(i, lang.T("close_failed", "error", err.Error()), true)
		return
	}

	archive, err := t.archiveCategory(i.GuildID)
	if err != nil {
		t.log.Error("Failed to find or create archive category", interactionFields(i, zap.Error(err))...)
		t.respond(i, lang.T("close_failed", "error", err.Error()), true)
		return
	}

	err = t.platform.Respond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       lang.T("closed_title"),
				Description: lang.T("closed_description"),
				Color:       0x2ECC71,
			}},
		},
	})
	if err != nil {
		t.log.Error("Failed to send close confirmation", interactionFields(i, zap.Error(err))...)
		return
	}

	if err := t.platform.MoveChannel(ch.ID, archive.ID); err != nil {
		t.log.Error("Failed to move ticket into archive", interactionFields(i, zap.Error(err))...)
		t.followup(i, lang.T("close_failed", "error", err.Error()))
		return
	}

	t.closeControls.Remove(controlID)
	t.log.Info("Ticket channel archived",
		zap.String("guild", i.GuildID),
		zap.String("channel", ch.Name),
		zap.String("closed_by", invoker(i).ID),
		zap.String("archive", archive.Name),
	)
}

// revokeOwner drops the owner's member overwrite so the channel falls back
// to the category defaults. An owner who left the guild is only logged.
func (t *Tickets) revokeOwner(guildID string, ch *discordgo.Channel, ownerID string) error {
	_, err := t.platform.GuildMember(guildID, ownerID)
	if errors.Is(err, ErrMemberNotFound) {
		t.log.Warn("Ticket owner not found in guild", zap.String("user", ownerID), zap.String("channel", ch.Name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get member %s: %w", ownerID, err)
	}

	if err := t.platform.ClearPermission(ch.ID, ownerID); err != nil {
		return fmt.Errorf("clear overwrite for %s: %w", ownerID, err)
	}
	t.log.Info("Ticket owner lost access", zap.String("user", ownerID), zap.String("channel", ch.Name))
	return nil
}

func (t *Tickets) archiveCategory(guildID string) (*discordgo.Channel, error) {
	channels, err := t.platform.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if cat := findCategory(channels, t.cfg.ArchiveCategory); cat != nil {
		return cat, nil
	}

	cat, err := t.platform.CreateCategory(guildID, t.cfg.ArchiveCategory)
	if err != nil {
		return nil, fmt.Errorf("create category %q: %w", t.cfg.ArchiveCategory, err)
	}
	t.log.Info("Archive category created", zap.String("guild", guildID), zap.String("name", cat.Name))
	return cat, nil
}

// canClose reports whether member holds a role ranked at or above the role
// named adminRole. Any higher role passes. If adminRole does not exist
// nobody passes.
func canClose(guildID string, member *discordgo.Member, roles []*discordgo.Role, adminRole string) bool {
	admin := findRole(roles, adminRole)
	if admin == nil || member == nil {
		return false
	}

	held := make(map[string]bool, len(member.Roles)+1)
	held[guildID] = true // @everyone
	for _, id := range member.Roles {
		held[id] = true
	}

	for _, r := range roles {
		if held[r.ID] && r.Position >= admin.Position {
			return true
		}
	}
	return false
}

// ticketOwner extracts the owner's user id from a ticket-<userId> name.
func ticketOwner(channelName string) (string, error) {
	if !strings.HasPrefix(channelName, ticketPrefix) {
		return "", ErrNotTicketChannel
	}
	parts := strings.Split(channelName, "-")
	if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedTicketName, channelName)
	}
	return parts[1], nil
}
