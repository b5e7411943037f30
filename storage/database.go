package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string
	db   *sql.DB
}

func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS panel_messages (
		channel_id  TEXT PRIMARY KEY,
		message_id  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("SQLite panel store initialised", zap.String("path", path))
	return &SQLiteStore{path: path, db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, channelID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT message_id FROM panel_messages WHERE channel_id = ?", channelID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoPanel
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get panel: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Set(ctx context.Context, channelID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO panel_messages (channel_id, message_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET message_id = excluded.message_id, updated_at = excluded.updated_at`,
		channelID, messageID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite set panel: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
