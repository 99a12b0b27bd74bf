package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salebot/internal/storage"
	logx "salebot/pkg/logx"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	backend, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return New(backend, logx.Nop()), path
}

func TestLoadCreatesDefaults(t *testing.T) {
	s, path := newFileStore(t)

	got := s.Load(context.Background())
	assert.Equal(t, 0, got.Threshold)
	assert.False(t, Registered(got))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"threshold":0,"chat_id":null}`, string(b))
}

func TestLoadCorruptFallsBackToDefaults(t *testing.T) {
	s, path := newFileStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))

	got := s.Load(context.Background())
	assert.Equal(t, Defaults(), got)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"threshold":0,"chat_id":null}`, string(b))
}

func TestRegisterLastWriterWins(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	_, err := s.SetChat(ctx, 111)
	require.NoError(t, err)
	_, err = s.SetChat(ctx, 222)
	require.NoError(t, err)

	got := s.Load(ctx)
	require.NotNil(t, got.ChatID)
	assert.Equal(t, int64(222), *got.ChatID)
}

func TestUpdatesDoNotLoseFields(t *testing.T) {
	s, path := newFileStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = s.SetChat(ctx, 99) }()
		go func() { defer wg.Done(); _, _ = s.SetThreshold(ctx, 10) }()
	}
	wg.Wait()

	// Reopen from disk: both fields must have survived.
	backend, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer backend.Close()
	got := New(backend, logx.Nop()).Load(ctx)
	assert.Equal(t, 10, got.Threshold)
	require.NotNil(t, got.ChatID)
	assert.Equal(t, int64(99), *got.ChatID)
}

func TestLoadReturnsCopy(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()
	_, err := s.SetChat(ctx, 5)
	require.NoError(t, err)

	got := s.Load(ctx)
	*got.ChatID = 6
	again := s.Load(ctx)
	assert.Equal(t, int64(5), *again.ChatID)
}

type failingBackend struct {
	storage.Store
	saveErr error
}

func (f *failingBackend) LoadSettings(context.Context) (storage.Settings, error) {
	return storage.Settings{Threshold: 4}, nil
}

func (f *failingBackend) SaveSettings(context.Context, storage.Settings) error { return f.saveErr }

func TestUpdateSaveFailureKeepsPrevious(t *testing.T) {
	boom := errors.New("disk full")
	s := New(&failingBackend{saveErr: boom}, logx.Nop())
	ctx := context.Background()

	_, err := s.SetThreshold(ctx, 50)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, s.Load(ctx).Threshold)
}
