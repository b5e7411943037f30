package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const tokenPlaceholder = "YOUR_DISCORD_BOT_TOKEN_HERE"

type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Tickets  TicketsConfig  `yaml:"tickets"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Lang     LangConfig     `yaml:"lang"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
	// GuildID scopes slash command registration. Empty registers globally.
	GuildID string `yaml:"guild_id"`
}

// TicketsConfig names the guild objects the ticket flow works with. Roles
// and categories are matched by name, the support channel by id.
type TicketsConfig struct {
	Category        string        `yaml:"category"`
	ArchiveCategory string        `yaml:"archive_category"`
	SupportChannel  string        `yaml:"support_channel"`
	AdminRole       string        `yaml:"admin_role"`
	SupportRole     string        `yaml:"support_role"`
	CloseTimeout    time.Duration `yaml:"close_timeout"`
	HistoryLookback int           `yaml:"history_lookback"`
}

type DatabaseConfig struct {
	Driver  string        `yaml:"driver"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type LangConfig struct {
	Path string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		Tickets: TicketsConfig{
			Category:        "Tickets",
			ArchiveCategory: "Ticket Archiv",
			AdminRole:       "HLL Admin",
			SupportRole:     "Support",
			CloseTimeout:    5 * time.Minute,
			HistoryLookback: 10,
		},
		Database: DatabaseConfig{
			Driver: "none",
			SQLite: SQLiteConfig{Path: "data/bot.db"},
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "ticketbot",
			},
		},
		Log:  LogConfig{Level: "info"},
		Lang: LangConfig{Path: "lang.yaml"},
	}
}

// LoadConfig reads path if it exists and applies environment overrides on
// top. A missing file is not an error; every setting has a default or an
// environment variable.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("DISCORD_TOKEN", &c.Discord.Token)
	str("DISCORD_GUILD_ID", &c.Discord.GuildID)
	str("TICKET_CATEGORY", &c.Tickets.Category)
	str("ARCHIVE_CATEGORY", &c.Tickets.ArchiveCategory)
	str("SUPPORT_CHANNEL_ID", &c.Tickets.SupportChannel)
	str("ADMIN_ROLE_NAME", &c.Tickets.AdminRole)
	str("SUPPORT_ROLE_NAME", &c.Tickets.SupportRole)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("LOG_JSON"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_JSON: %w", err)
		}
		c.Log.JSON = b
	}
	return nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Tickets.CloseTimeout <= 0 {
		c.Tickets.CloseTimeout = d.Tickets.CloseTimeout
	}
	if c.Tickets.HistoryLookback <= 0 {
		c.Tickets.HistoryLookback = d.Tickets.HistoryLookback
	}
	// The history endpoint caps a single page at 100 messages.
	if c.Tickets.HistoryLookback > 100 {
		c.Tickets.HistoryLookback = 100
	}
	if c.Tickets.Category == "" {
		c.Tickets.Category = d.Tickets.Category
	}
	if c.Tickets.ArchiveCategory == "" {
		c.Tickets.ArchiveCategory = d.Tickets.ArchiveCategory
	}
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = d.Database.SQLite.Path
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Lang.Path == "" {
		c.Lang.Path = d.Lang.Path
	}
}

func (c *Config) Validate() error {
	if c.Discord.Token == "" || c.Discord.Token == tokenPlaceholder {
		return errors.New("DISCORD_TOKEN not set (environment, .env or discord.token)")
	}
	if c.Tickets.SupportChannel == "" {
		return errors.New("support channel id not set (SUPPORT_CHANNEL_ID or tickets.support_channel)")
	}
	return nil
}

// MaskedToken returns enough of the token to tell which one was loaded.
func (c *Config) MaskedToken() string {
	if c.Discord.Token == "" {
		return "NOT FOUND"
	}
	r := []rune(c.Discord.Token)
	return string(r[:min(20, len(r)/2)]) + "..."
}
