package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "salebot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadSettings(ctx context.Context) (Settings, error) {
	var (
		st     Settings
		chatID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT threshold, chat_id FROM settings WHERE id = 1`).Scan(&st.Threshold, &chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, err
	}
	if chatID.Valid {
		id := chatID.Int64
		st.ChatID = &id
	}
	return st, nil
}

func (s *sqliteStore) SaveSettings(ctx context.Context, st Settings) error {
	var chatID sql.NullInt64
	if st.ChatID != nil {
		chatID = sql.NullInt64{Int64: *st.ChatID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings (id, threshold, chat_id, updated_at) VALUES (1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	threshold = excluded.threshold,
	chat_id = excluded.chat_id,
	updated_at = excluded.updated_at`,
		st.Threshold, chatID, time.Now().UnixMilli())
	return err
}

func (s *sqliteStore) AppendAlert(ctx context.Context, r AlertRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alerts (id, at, chat_id, row_index, product, quantity, customer, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.At.UnixMilli(), r.ChatID, r.Row, r.Product, r.Quantity, r.Customer, r.Error)
	return err
}

func (s *sqliteStore) RecentAlerts(ctx context.Context, n int) ([]AlertRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at, chat_id, row_index, product, quantity, customer, error
FROM alerts ORDER BY at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var (
			r  AlertRecord
			at int64
		)
		if err := rows.Scan(&r.ID, &at, &r.ChatID, &r.Row, &r.Product, &r.Quantity, &r.Customer, &r.Error); err != nil {
			return nil, err
		}
		r.At = time.UnixMilli(at)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest last, like the file driver
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
