package bot

import (
	"sync"

	"ticket-bot/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	Session *discordgo.Session
	Config  *config.Config
	log     *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	onReady []func(*discordgo.Ready)
}

func New(cfg *config.Config, log *zap.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages
	return &Bot{
		Session: s,
		Config:  cfg,
		log:     log,
		ready:   make(chan struct{}),
	}, nil
}

// OnReady registers fn to run on every Ready event, i.e. after the initial
// connect and after every reconnect that could not resume the session.
func (b *Bot) OnReady(fn func(*discordgo.Ready)) {
	b.mu.Lock()
	b.onReady = append(b.onReady, fn)
	b.mu.Unlock()
}

func (b *Bot) Start() error {
	b.Session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.handleReady(r)
	})
	return b.Session.Open()
}

func (b *Bot) handleReady(r *discordgo.Ready) {
	if r.User != nil {
		b.log.Info("Bot is online", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	}
	b.readyOnce.Do(func() { close(b.ready) })

	b.mu.Lock()
	hooks := append([]func(*discordgo.Ready){}, b.onReady...)
	b.mu.Unlock()
	for _, fn := range hooks {
		fn(r)
	}
}

func (b *Bot) Stop() {
	_ = b.Session.Close()
}

func (b *Bot) RegisterCommands(cmds []*discordgo.ApplicationCommand) []*discordgo.ApplicationCommand {
	<-b.ready

	appID := b.Session.State.User.ID
	guildID := b.Config.Discord.GuildID

	b.log.Info("Registering commands",
		zap.Int("count", len(cmds)), zap.String("app", appID), zap.String("guild", guildID))

	registered, err := b.Session.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	if err != nil {
		b.log.Error("Failed to bulk-overwrite commands", zap.Error(err))
		return nil
	}

	b.log.Info("Commands synchronised", zap.Int("count", len(registered)))
	return registered
}

func (b *Bot) CleanupCommands() {
	<-b.ready
	appID := b.Session.State.User.ID
	guildID := b.Config.Discord.GuildID
	if _, err := b.Session.ApplicationCommandBulkOverwrite(appID, guildID, []*discordgo.ApplicationCommand{}); err != nil {
		b.log.Error("Failed to clean up commands", zap.Error(err))
		return
	}
	b.log.Info("Cleaned up all slash commands")
}
