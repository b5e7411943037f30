package handlers

import (
	"context"
	"errors"

	"ticket-bot/lang"
	"ticket-bot/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Reconcile runs on every Ready. It re-registers the create button and makes
// sure the support channel carries exactly one ticket panel.
func (t *Tickets) Reconcile(ctx context.Context) {
	if !t.reconciling.CompareAndSwap(false, true) {
		t.log.Debug("Reconcile already running, skipping")
		return
	}
	defer t.reconciling.Store(false)

	if t.routes.persist(createButtonID, t.handleCreateButton) {
		t.log.Info("Persistent ticket button registered")
	}

	channelID := t.cfg.SupportChannel
	ch, err := t.platform.Channel(channelID)
	if err != nil {
		t.log.Error("Support channel not found, check the channel id", zap.String("channel", channelID), zap.Error(err))
		return
	}
	t.log.Info("Support channel found", zap.String("name", ch.Name), zap.String("channel", ch.ID))

	if t.recordedPanelExists(ctx, ch.ID) {
		t.log.Info("Support panel already posted, skipping")
		return
	}

	if existing := t.findPanel(ch.ID); existing != nil {
		t.rememberPanel(ctx, ch.ID, existing.ID)
		t.log.Info("Support panel already posted, skipping", zap.String("message", existing.ID))
		return
	}

	msg, err := t.platform.SendMessage(ch.ID, panelMessage())
	if err != nil {
		t.log.Error("Failed to post support panel (check Send Messages permission)", zap.String("channel", ch.ID), zap.Error(err))
		return
	}
	t.rememberPanel(ctx, ch.ID, msg.ID)
	t.log.Info("Support panel posted", zap.String("channel", ch.Name), zap.String("message", msg.ID))
}

func (t *Tickets) recordedPanelExists(ctx context.Context, channelID string) bool {
	id, err := t.panels.Get(ctx, channelID)
	if err != nil {
		if !errors.Is(err, storage.ErrNoPanel) {
			t.log.Warn("Panel store lookup failed, falling back to history", zap.Error(err))
		}
		return false
	}
	if _, err := t.platform.Message(channelID, id); err != nil {
		t.log.Info("Recorded panel message is gone", zap.String("message", id), zap.Error(err))
		return false
	}
	return true
}

// findPanel scans the recent history for a message carrying both an embed
// and a component. A failed scan counts as "not found".
func (t *Tickets) findPanel(channelID string) *discordgo.Message {
	msgs, err := t.platform.RecentMessages(channelID, t.cfg.HistoryLookback)
	if err != nil {
		t.log.Error("History check failed", zap.String("channel", channelID), zap.Error(err))
		return nil
	}
	for _, m := range msgs {
		if len(m.Embeds) > 0 && len(m.Components) > 0 {
			return m
		}
	}
	return nil
}

func (t *Tickets) rememberPanel(ctx context.Context, channelID, messageID string) {
	if err := t.panels.Set(ctx, channelID, messageID); err != nil {
		t.log.Warn("Failed to record panel message", zap.String("message", messageID), zap.Error(err))
	}
}

func panelMessage() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       lang.T("panel_title"),
			Description: lang.T("panel_description"),
			Color:       0x2ECC71,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    lang.T("create_button_label"),
						Style:    discordgo.PrimaryButton,
						CustomID: createButtonID,
						Emoji:    &discordgo.ComponentEmoji{Name: "📝"},
					},
				},
			},
		},
	}
}
