package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salebot/internal/alert"
	"salebot/internal/rowsource"
	"salebot/internal/settings"
)

type fixedSettings struct {
	mu sync.Mutex
	st settings.Settings
}

func (f *fixedSettings) Load(context.Context) settings.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fixedSettings) set(st settings.Settings) {
	f.mu.Lock()
	f.st = st
	f.mu.Unlock()
}

type sent struct {
	chatID int64
	row    int
	sale   alert.Sale
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	// failRows makes Send fail for these sheet rows.
	failRows map[int]bool
}

func (r *recordingNotifier) Send(_ context.Context, chatID int64, row int, sale alert.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRows[row] {
		return errors.New("telegram: bad gateway")
	}
	r.sent = append(r.sent, sent{chatID: chatID, row: row, sale: sale})
	return nil
}

func (r *recordingNotifier) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func chat(id int64) *int64 { return &id }

func newMonitor(t *testing.T, src rowsource.Source, st *fixedSettings, n Notifier) *Monitor {
	t.Helper()
	m, err := New(Options{Source: src, Settings: st, Notifier: n, Schedule: MustSchedule("1s")})
	require.NoError(t, err)
	return m
}

func TestClassify(t *testing.T) {
	reg := settings.Settings{Threshold: 5, ChatID: chat(42)}
	cases := []struct {
		name string
		row  rowsource.Row
		st   settings.Settings
		want Outcome
	}{
		{"two cells", rowsource.Row{"Widget", "10"}, reg, Malformed},
		{"empty product", rowsource.Row{"  ", "10", "Bob"}, reg, Malformed},
		{"bad quantity", rowsource.Row{"Widget", "ten", "Bob"}, reg, Malformed},
		{"decimal quantity", rowsource.Row{"Widget", "1.5", "Bob"}, reg, Malformed},
		{"equal to threshold", rowsource.Row{"Widget", "5", "Bob"}, reg, BelowThreshold},
		{"negative", rowsource.Row{"Widget", "-3", "Bob"}, settings.Settings{ChatID: chat(1)}, BelowThreshold},
		{"no chat", rowsource.Row{"Widget", "6", "Bob"}, settings.Settings{Threshold: 5}, NoRecipient},
		{"notify", rowsource.Row{" Widget ", " 6 ", " Bob ", "extra"}, reg, Notify},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.row, tc.st)
			assert.Equal(t, tc.want, got.Outcome)
		})
	}

	got := Classify(rowsource.Row{" Widget ", " 6 ", " Bob "}, reg)
	assert.Equal(t, alert.Sale{Product: "Widget", Quantity: 6, Customer: "Bob"}, got.Sale)
	assert.Equal(t, int64(42), got.ChatID)
}

func TestCycleEndToEnd(t *testing.T) {
	src := rowsource.NewStatic(
		rowsource.Row{"Product", "Quantity", "Customer"},
		rowsource.Row{"Gizmo", "1", "Ann"},
	)
	st := &fixedSettings{st: settings.Settings{Threshold: 5, ChatID: chat(1001)}}
	n := &recordingNotifier{}
	m := newMonitor(t, src, st, n)
	ctx := context.Background()

	require.NoError(t, m.Prime(ctx))
	assert.Equal(t, 2, m.Snapshot().Watermark)

	src.Append(rowsource.Row{"Widget", "10", "Bob"})
	src.Append(rowsource.Row{"Gadget", "3", "Eve"})

	rep, err := m.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.New)
	assert.Equal(t, 1, rep.Notified)
	assert.Equal(t, 1, rep.BelowThreshold)

	got := n.all()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1001), got[0].chatID)
	assert.Equal(t, 3, got[0].row)
	assert.Equal(t, "New sale!\nProduct: Widget\nQuantity: 10\nCustomer: Bob", alert.Format(got[0].sale))
	assert.Equal(t, 4, m.Snapshot().Watermark)

	// Nothing new: no sends, watermark unchanged.
	rep, err = m.Cycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.New)
	assert.Len(t, n.all(), 1)
	assert.Equal(t, 4, m.Snapshot().Watermark)
}

func TestPrimeSkipsExistingRows(t *testing.T) {
	src := rowsource.NewStatic(rowsource.Row{"Widget", "100", "Bob"})
	n := &recordingNotifier{}
	m := newMonitor(t, src, &fixedSettings{st: settings.Settings{ChatID: chat(1)}}, n)

	require.NoError(t, m.Prime(context.Background()))
	_, err := m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, n.all())
}

func TestMalformedRowsAdvanceWatermark(t *testing.T) {
	src := rowsource.NewStatic()
	n := &recordingNotifier{}
	m := newMonitor(t, src, &fixedSettings{st: settings.Settings{ChatID: chat(1)}}, n)
	require.NoError(t, m.Prime(context.Background()))

	src.Append(rowsource.Row{"", "5", "x"})
	src.Append(rowsource.Row{"Widget", "many", "x"})
	src.Append(rowsource.Row{"only"})

	rep, err := m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Malformed)
	assert.Equal(t, 3, m.Snapshot().Watermark)
	assert.Empty(t, n.all())
}

func TestFetchFailureKeepsWatermark(t *testing.T) {
	src := rowsource.NewStatic(rowsource.Row{"h", "h", "h"})
	n := &recordingNotifier{}
	m := newMonitor(t, src, &fixedSettings{st: settings.Settings{ChatID: chat(7)}}, n)
	ctx := context.Background()
	require.NoError(t, m.Prime(ctx))

	src.Append(rowsource.Row{"Widget", "2", "Bob"})
	src.FailWith(errors.New("quota exceeded"))
	_, err := m.Cycle(ctx)
	require.Error(t, err)
	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Watermark)
	assert.Equal(t, uint64(1), snap.FetchErrors)
	assert.Contains(t, snap.LastError, "quota exceeded")

	// Next cycle picks up the row that arrived during the outage.
	src.FailWith(nil)
	rep, err := m.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)
	assert.Equal(t, 2, m.Snapshot().Watermark)
	assert.Empty(t, m.Snapshot().LastError)
}

func TestSendFailureContinuesCycle(t *testing.T) {
	src := rowsource.NewStatic()
	n := &recordingNotifier{failRows: map[int]bool{1: true}}
	m := newMonitor(t, src, &fixedSettings{st: settings.Settings{ChatID: chat(7)}}, n)
	ctx := context.Background()
	require.NoError(t, m.Prime(ctx))

	src.Append(rowsource.Row{"A", "1", "x"})
	src.Append(rowsource.Row{"B", "2", "y"})

	rep, err := m.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SendErrors)
	assert.Equal(t, 1, rep.Notified)
	require.Len(t, n.all(), 1)
	assert.Equal(t, "B", n.all()[0].sale.Product)
	assert.Equal(t, 2, m.Snapshot().Watermark)
}

func TestShrinkFollowsSmallerCount(t *testing.T) {
	src := rowsource.NewStatic(
		rowsource.Row{"A", "1", "x"},
		rowsource.Row{"B", "1", "x"},
		rowsource.Row{"C", "1", "x"},
	)
	n := &recordingNotifier{}
	m := newMonitor(t, src, &fixedSettings{st: settings.Settings{ChatID: chat(7)}}, n)
	ctx := context.Background()
	require.NoError(t, m.Prime(ctx))

	src.Set(rowsource.Row{"A", "1", "x"})
	rep, err := m.Cycle(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Shrunk)
	assert.Zero(t, rep.New)
	assert.Equal(t, 1, m.Snapshot().Watermark)

	src.Append(rowsource.Row{"D", "4", "z"})
	_, err = m.Cycle(ctx)
	require.NoError(t, err)
	require.Len(t, n.all(), 1)
	assert.Equal(t, 2, n.all()[0].row)
}

func TestSettingsReadPerRow(t *testing.T) {
	src := rowsource.NewStatic()
	st := &fixedSettings{st: settings.Settings{Threshold: 0, ChatID: chat(7)}}
	n := &recordingNotifier{}
	m := newMonitor(t, src, st, n)
	ctx := context.Background()
	require.NoError(t, m.Prime(ctx))

	src.Append(rowsource.Row{"A", "3", "x"})
	_, err := m.Cycle(ctx)
	require.NoError(t, err)
	require.Len(t, n.all(), 1)

	st.set(settings.Settings{Threshold: 10, ChatID: chat(7)})
	src.Append(rowsource.Row{"B", "3", "x"})
	_, err = m.Cycle(ctx)
	require.NoError(t, err)
	assert.Len(t, n.all(), 1)
}

func TestHeartbeatAfterSuccessfulCycle(t *testing.T) {
	var beats atomic.Int32
	src := rowsource.NewStatic()
	m, err := New(Options{
		Source:    src,
		Settings:  &fixedSettings{},
		Notifier:  &recordingNotifier{},
		Schedule:  MustSchedule("1s"),
		Heartbeat: func() { beats.Add(1) },
	})
	require.NoError(t, err)
	require.NoError(t, m.Prime(context.Background()))

	_, err = m.Cycle(context.Background())
	require.NoError(t, err)
	src.FailWith(errors.New("down"))
	_, _ = m.Cycle(context.Background())
	assert.Equal(t, int32(1), beats.Load())
}

func TestRunPollsUntilCancelled(t *testing.T) {
	src := rowsource.NewStatic()
	n := &recordingNotifier{}
	m := newMonitor(t, src, &fixedSettings{st: settings.Settings{ChatID: chat(3)}}, n)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Snapshot().Primed }, 2*time.Second, 10*time.Millisecond)
	src.Append(rowsource.Row{"Widget", "9", "Bob"})
	require.Eventually(t, func() bool { return len(n.all()) == 1 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
