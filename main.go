package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ticket-bot/bot"
	"ticket-bot/config"
	"ticket-bot/handlers"
	"ticket-bot/lang"
	"ticket-bot/logging"
	"ticket-bot/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	envPath := flag.String("env", ".env", "Path to .env file")
	cleanup := flag.Bool("cleanup", false, "Remove slash commands on shutdown")
	flag.Parse()

	envErr := godotenv.Load(*envPath)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.Configure(cfg.Log.JSON, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		log.Info("No .env file loaded, using process environment", zap.String("path", *envPath))
	}
	log.Info("Token", zap.String("prefix", cfg.MaskedToken()))

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	if err := lang.Load(cfg.Lang.Path, log.Named("lang")); err != nil {
		log.Fatal("Failed to load translations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	panels, err := storage.Open(ctx, &cfg.Database, log.Named("storage"))
	if err != nil {
		log.Warn("Panel store init failed, keeping marker in memory", zap.Error(err))
		panels = storage.NewMemoryStore()
	}
	defer panels.Close()

	b, err := bot.New(cfg, log.Named("bot"))
	if err != nil {
		log.Fatal("Failed to create bot", zap.Error(err))
	}

	tickets := handlers.New(cfg.Tickets, handlers.NewSessionPlatform(b.Session), panels, log.Named("tickets"))
	tickets.Register(b.Session)
	b.OnReady(func(*discordgo.Ready) {
		tickets.Reconcile(ctx)
	})

	if err := b.Start(); err != nil {
		log.Fatal("Failed to start bot", zap.Error(err))
	}
	defer b.Stop()

	b.RegisterCommands(tickets.Commands())

	log.Info("Bot is running. Press Ctrl+C to exit.")
	<-ctx.Done()

	log.Info("Shutting down...")
	if *cleanup {
		b.CleanupCommands()
	}
}
