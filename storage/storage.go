package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ticket-bot/config"

	"go.uber.org/zap"
)

// ErrNoPanel is returned by PanelStore.Get when no panel message is recorded
// for the channel.
var ErrNoPanel = errors.New("no panel message recorded")

// PanelStore remembers which message in a support channel carries the
// ticket panel, so startup does not have to find it in the history again.
type PanelStore interface {
	Get(ctx context.Context, channelID string) (string, error)
	Set(ctx context.Context, channelID, messageID string) error
	Close() error
}

func Open(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (PanelStore, error) {
	switch cfg.Driver {
	case "none", "memory":
		log.Info("Panel marker kept in memory only")
		return NewMemoryStore(), nil

	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		return s, nil

	case "mongodb":
		s, err := OpenMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, log)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (use \"none\", \"sqlite\" or \"mongodb\")", cfg.Driver)
	}
}

type MemoryStore struct {
	mu     sync.RWMutex
	panels map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{panels: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, channelID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.panels[channelID]
	if !ok {
		return "", ErrNoPanel
	}
	return id, nil
}

func (m *MemoryStore) Set(_ context.Context, channelID, messageID string) error {
	m.mu.Lock()
	m.panels[channelID] = messageID
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
