package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salebot/internal/config"
	"salebot/internal/rowsource"
	rtsup "salebot/internal/runtime/supervisor"
	kit "salebot/internal/transport"
	logx "salebot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	out  chan<- kit.Update
	sent []string
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) push(text string, chatID int64) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: chatID, Text: text}}
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func writeConfig(t *testing.T, dir string) *config.Manager {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := strings.Join([]string{
		"sheet:",
		"  driver: csv",
		"  csv_url: http://127.0.0.1:1/unused.csv",
		"  poll_schedule: 1s",
		"store:",
		"  driver: file",
		"  path: " + filepath.Join(dir, "settings.json"),
		"alerts:",
		"  rate_per_sec: 50",
		"  burst: 5",
		"logging:",
		"  level: error",
		"  console: true",
		"systemd:",
		"  notify: false",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	m := config.NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	return m
}

func TestAppEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgm := writeConfig(t, dir)
	ad := &fakeAdapter{}
	src := rowsource.NewStatic(rowsource.Row{"Product", "Quantity", "Customer"})

	a, err := New(context.Background(), cfgm, WithAdapter(ad), WithSource(src))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool { return a.Monitor().Snapshot().Primed }, 3*time.Second, 10*time.Millisecond)

	ad.push("/start", 4242)
	ad.push("/set_threshold 5", 4242)
	require.Eventually(t, func() bool { return len(ad.texts()) == 2 }, 2*time.Second, 10*time.Millisecond)

	src.Append(rowsource.Row{"Gadget", "3", "Eve"})
	src.Append(rowsource.Row{"Widget", "10", "Bob"})
	require.Eventually(t, func() bool {
		for _, s := range ad.texts() {
			if strings.HasPrefix(s, "New sale!") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	texts := ad.texts()
	assert.Contains(t, texts, "New sale!\nProduct: Widget\nQuantity: 10\nCustomer: Bob")
	assert.NotContains(t, strings.Join(texts, "|"), "Gadget")

	names := map[string]bool{}
	for _, ts := range a.Tasks() {
		names[ts.Name] = true
	}
	assert.True(t, names["monitor"])
	assert.True(t, names["commands.dispatch"])

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSIGTERM))

	b, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"threshold":5,"chat_id":4242}`, string(b))
}

func TestNewRejectsBadSchedule(t *testing.T) {
	dir := t.TempDir()
	cfgm := writeConfig(t, dir)
	cfg := *cfgm.Get()
	cfg.Sheet.PollSchedule = "whenever"
	cfgm.Commit(&cfg)

	_, err := New(context.Background(), cfgm, WithAdapter(&fakeAdapter{}), WithSource(rowsource.NewStatic()))
	require.ErrorContains(t, err, "poll_schedule")
}

func TestNewSourceCSVFromSheetURL(t *testing.T) {
	cfg := config.Default()
	cfg.Sheet.Driver = "csv"
	cfg.Sheet.URL = "https://docs.google.com/spreadsheets/d/1AbCdEfGhIjKlMnOpQrStUvWxYz0123456789/edit"
	src, err := NewSource(context.Background(), cfg, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &rowsource.CSV{}, src)

	cfg.Sheet.Driver = "carrier-pigeon"
	_, err = NewSource(context.Background(), cfg, logx.Nop())
	require.Error(t, err)
}

type supAdapter struct {
	fakeAdapter
	sup *rtsup.Supervisor
}

func (s *supAdapter) Supervisor() *rtsup.Supervisor { return s.sup }

func TestTasksIncludeTransportRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := rtsup.New(ctx)
	sup.GoRestart("telebot.poll", func(context.Context) error {
		return errors.New("409 conflict")
	}, rtsup.WithRestartBackoff(time.Millisecond, time.Millisecond))

	a := &App{adapter: &supAdapter{sup: sup}}
	require.Eventually(t, func() bool {
		for _, ts := range a.Tasks() {
			if ts.Name == "telebot.poll" && ts.Restarts > 0 {
				return ts.LastErr == "409 conflict"
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Stop(context.Background()))
}
