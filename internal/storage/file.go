package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "salebot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <path>                (settings JSON, replaced atomically on save)
//   - <prefix>.alerts.jsonl (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	settingsPath string
	alertsPath   string
	alertsFile   *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	prefix := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	alertsPath := prefix + ".alerts.jsonl"
	af, err := os.OpenFile(alertsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		settingsPath: path,
		alertsPath:   alertsPath,
		alertsFile:   af,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertsFile == nil {
		return nil
	}
	err := s.alertsFile.Close()
	s.alertsFile = nil
	return err
}

func (s *fileStore) LoadSettings(ctx context.Context) (Settings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, err
	}
	var st Settings
	if err := json.Unmarshal(b, &st); err != nil {
		return Settings{}, fmt.Errorf("decode %s: %w", s.settingsPath, err)
	}
	return st, nil
}

func (s *fileStore) SaveSettings(ctx context.Context, st Settings) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertsFile == nil {
		return ErrClosed
	}

	// Write to a temp file in the same dir, then rename: readers never see
	// a half-written record.
	tmp := s.settingsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(st); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.settingsPath)
}

func (s *fileStore) AppendAlert(ctx context.Context, r AlertRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertsFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.alertsFile).Encode(r)
}

func (s *fileStore) RecentAlerts(ctx context.Context, n int) ([]AlertRecord, error) {
	_ = ctx
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.alertsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Ring of the last n lines; the log is small enough to scan.
	ring := make([]AlertRecord, 0, n)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r AlertRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			s.log.Debug("skipping bad alert line", logx.Err(err))
			continue
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, r)
	}
	return ring, sc.Err()
}
