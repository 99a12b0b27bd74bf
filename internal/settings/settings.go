// Package settings holds the bot's runtime settings: the quantity threshold
// and the registered recipient chat.
//
// The store is the only state shared between the sheet monitor and the
// command handlers. All access goes through one mutex, and mutations are
// whole-record read-modify-write (Update), so concurrent commands cannot
// lose each other's writes.
package settings

import (
	"context"
	"errors"
	"sync"

	"salebot/internal/storage"
	logx "salebot/pkg/logx"
)

// Settings is the persisted record. ChatID nil means nobody registered yet.
type Settings = storage.Settings

// Defaults is the record created on first run.
func Defaults() Settings { return Settings{Threshold: 0} }

// Registered reports whether a recipient chat is set.
func Registered(s Settings) bool { return s.ChatID != nil }

type Store struct {
	mu sync.Mutex

	backend storage.Store
	log     logx.Logger

	cur    Settings
	loaded bool
}

func New(backend storage.Store, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{backend: backend, log: log}
}

// Load returns the current settings. It never fails: a missing or unreadable
// record yields defaults, which are then persisted. The first call reads the
// backend; later calls return the committed in-memory copy.
func (s *Store) Load(ctx context.Context) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) Settings {
	if s.loaded {
		return copySettings(s.cur)
	}

	st, err := s.backend.LoadSettings(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("settings unreadable; resetting to defaults", logx.Err(err))
		}
		st = Defaults()
		if err := s.backend.SaveSettings(ctx, st); err != nil {
			s.log.Error("persist default settings failed", logx.Err(err))
		}
	}
	s.cur = st
	s.loaded = true
	return copySettings(st)
}

// Save overwrites the whole record.
func (s *Store) Save(ctx context.Context, st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, st)
}

func (s *Store) saveLocked(ctx context.Context, st Settings) error {
	st = copySettings(st)
	if err := s.backend.SaveSettings(ctx, st); err != nil {
		return err
	}
	s.cur = st
	s.loaded = true
	return nil
}

// Update applies fn to a copy of the current settings and saves the result.
// The read, fn and the write happen under one lock. If the save fails the
// in-memory settings are left unchanged.
func (s *Store) Update(ctx context.Context, fn func(st *Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked(ctx)
	fn(&st)
	if err := s.saveLocked(ctx, st); err != nil {
		return copySettings(s.cur), err
	}
	return copySettings(st), nil
}

// SetChat registers chatID as the recipient (last writer wins).
func (s *Store) SetChat(ctx context.Context, chatID int64) (Settings, error) {
	return s.Update(ctx, func(st *Settings) { st.ChatID = &chatID })
}

// SetThreshold replaces the quantity threshold.
func (s *Store) SetThreshold(ctx context.Context, threshold int) (Settings, error) {
	return s.Update(ctx, func(st *Settings) { st.Threshold = threshold })
}

func copySettings(s Settings) Settings {
	if s.ChatID != nil {
		id := *s.ChatID
		s.ChatID = &id
	}
	return s
}
