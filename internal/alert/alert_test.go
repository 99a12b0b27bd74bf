package alert

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salebot/internal/storage"
	kit "salebot/internal/transport"
	logx "salebot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	err  error
	sent []string
	to   []int64
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	f.to = append(f.to, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "config.json")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFormat(t *testing.T) {
	got := Format(Sale{Product: "Widget", Quantity: 10, Customer: "Bob"})
	assert.Equal(t, "New sale!\nProduct: Widget\nQuantity: 10\nCustomer: Bob", got)
}

func TestSendRecordsAlert(t *testing.T) {
	ad := &fakeAdapter{}
	store := openStore(t)
	s := NewSender(Config{RatePerSec: 100, Burst: 10}, ad, store, logx.Nop())

	require.NoError(t, s.Send(context.Background(), 42, 3, Sale{Product: "Widget", Quantity: 10, Customer: "Bob"}))
	assert.Equal(t, []int64{42}, ad.to)
	assert.Equal(t, "New sale!\nProduct: Widget\nQuantity: 10\nCustomer: Bob", ad.sent[0])

	recs, err := store.RecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)
	assert.Equal(t, 3, recs[0].Row)
	assert.Equal(t, int64(42), recs[0].ChatID)
	assert.Empty(t, recs[0].Error)
}

func TestSendFailureIsReturnedAndRecorded(t *testing.T) {
	boom := errors.New("chat not found")
	ad := &fakeAdapter{err: boom}
	store := openStore(t)
	s := NewSender(Config{RatePerSec: 100, Burst: 10}, ad, store, logx.Nop())

	err := s.Send(context.Background(), 1, 9, Sale{Product: "X", Quantity: 1})
	require.ErrorIs(t, err, boom)

	recs, err := store.RecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "chat not found", recs[0].Error)
}

func TestSendWithoutStore(t *testing.T) {
	ad := &fakeAdapter{}
	s := NewSender(Config{}, ad, nil, logx.Nop())
	require.NoError(t, s.Send(context.Background(), 1, 2, Sale{Product: "X", Quantity: 1}))
	assert.Len(t, ad.sent, 1)
}

func TestSendRateLimited(t *testing.T) {
	ad := &fakeAdapter{}
	s := NewSender(Config{RatePerSec: 20, Burst: 1}, ad, nil, logx.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Send(ctx, 1, i+1, Sale{Product: "X", Quantity: 1}))
	}
	// burst 1 at 20/s: the 2nd and 3rd sends wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSendCancelledWhileWaiting(t *testing.T) {
	ad := &fakeAdapter{}
	s := NewSender(Config{RatePerSec: 0.001, Burst: 1}, ad, nil, logx.Nop())
	require.NoError(t, s.Send(context.Background(), 1, 1, Sale{Product: "X", Quantity: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Send(ctx, 1, 2, Sale{Product: "X", Quantity: 1})
	require.Error(t, err)
	assert.Len(t, ad.sent, 1)
}
