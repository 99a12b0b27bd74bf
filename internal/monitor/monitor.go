// Package monitor polls the sales sheet and turns appended rows into alerts.
//
// Change detection is by row count only: the watermark is the number of rows
// seen at the end of the last successful cycle, and every row past it is
// treated as a new sale in append order. Deleting, reordering or editing rows
// in place is not detected. When the table shrinks the watermark follows the
// smaller count, so rows appended afterwards are reported again from there.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"salebot/internal/alert"
	"salebot/internal/rowsource"
	"salebot/internal/settings"
	logx "salebot/pkg/logx"
)

// SettingsSource yields the settings in force for one row.
type SettingsSource interface {
	Load(ctx context.Context) settings.Settings
}

// Notifier delivers one alert. row is the 1-based sheet row index.
type Notifier interface {
	Send(ctx context.Context, chatID int64, row int, sale alert.Sale) error
}

type Options struct {
	Source   rowsource.Source
	Settings SettingsSource
	Notifier Notifier
	Schedule ParsedSchedule
	// FetchTimeout bounds one FetchAll call. Zero means no extra bound.
	FetchTimeout time.Duration
	// Heartbeat is called after every successful cycle.
	Heartbeat func()
	Log       logx.Logger
}

// Report describes one finished cycle.
type Report struct {
	Rows           int
	New            int
	Notified       int
	Malformed      int
	BelowThreshold int
	NoRecipient    int
	SendErrors     int
	Shrunk         bool
	Took           time.Duration
}

type Snapshot struct {
	Primed      bool
	Watermark   int
	Schedule    string
	LastPollAt  time.Time
	LastError   string
	Cycles      uint64
	Notified    uint64
	Skipped     uint64
	SendErrors  uint64
	FetchErrors uint64
}

type Monitor struct {
	src       rowsource.Source
	settings  SettingsSource
	notifier  Notifier
	fetchTO   time.Duration
	heartbeat func()
	log       logx.Logger

	// cycleMu serialises Prime and Cycle.
	cycleMu sync.Mutex

	mu       sync.Mutex
	sched    ParsedSchedule
	snap     Snapshot
	schedCh  chan struct{}
	now      func() time.Time
	primeMin time.Duration
	primeMax time.Duration
}

func New(opts Options) (*Monitor, error) {
	if opts.Source == nil {
		return nil, errors.New("monitor: row source is required")
	}
	if opts.Settings == nil {
		return nil, errors.New("monitor: settings source is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("monitor: notifier is required")
	}
	if opts.Schedule.Schedule == nil {
		opts.Schedule = MustSchedule("10s")
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{
		src:       opts.Source,
		settings:  opts.Settings,
		notifier:  opts.Notifier,
		fetchTO:   opts.FetchTimeout,
		heartbeat: opts.Heartbeat,
		log:       log,
		sched:     opts.Schedule,
		schedCh:   make(chan struct{}, 1),
		now:       time.Now,
		primeMin:  2 * time.Second,
		primeMax:  time.Minute,
	}
	m.snap.Schedule = opts.Schedule.String()
	return m, nil
}

// SetSchedule replaces the poll schedule. A waiting Run picks it up
// immediately.
func (m *Monitor) SetSchedule(p ParsedSchedule) {
	if p.Schedule == nil {
		return
	}
	m.mu.Lock()
	m.sched = p
	m.snap.Schedule = p.String()
	m.mu.Unlock()
	select {
	case m.schedCh <- struct{}{}:
	default:
	}
	m.log.Info("poll schedule updated", logx.String("schedule", p.String()))
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *Monitor) fetch(ctx context.Context) ([]rowsource.Row, error) {
	if m.fetchTO > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.fetchTO)
		defer cancel()
	}
	return m.src.FetchAll(ctx)
}

// Prime records the current row count as the watermark. Rows that exist at
// startup are never alerted.
func (m *Monitor) Prime(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	rows, err := m.fetch(ctx)
	if err != nil {
		m.recordFetchError(err)
		return fmt.Errorf("prime: %w", err)
	}
	m.mu.Lock()
	m.snap.Primed = true
	m.snap.Watermark = len(rows)
	m.snap.LastPollAt = m.now()
	m.snap.LastError = ""
	m.mu.Unlock()
	m.log.Info("monitoring started", logx.Int("initial_rows", len(rows)))
	return nil
}

// Cycle runs one poll. On fetch failure the watermark is left as is and the
// error is returned. Send failures are logged and counted; the remaining rows
// are still processed.
func (m *Monitor) Cycle(ctx context.Context) (Report, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := m.now()
	rows, err := m.fetch(ctx)
	if err != nil {
		m.recordFetchError(err)
		return Report{}, fmt.Errorf("fetch rows: %w", err)
	}

	m.mu.Lock()
	watermark := m.snap.Watermark
	m.mu.Unlock()

	rep := Report{Rows: len(rows)}
	m.log.Debug("checking rows", logx.Int("last", watermark), logx.Int("current", len(rows)))

	if len(rows) < watermark {
		rep.Shrunk = true
		m.log.Warn("sheet shrank; following the smaller row count",
			logx.Int("last", watermark), logx.Int("current", len(rows)))
	}

	for i := watermark; i < len(rows); i++ {
		if ctx.Err() != nil {
			// Leave the watermark where it was so the rest is retried.
			return rep, ctx.Err()
		}
		rep.New++
		rowIndex := i + 1
		res := Classify(rows[i], m.settings.Load(ctx))
		switch res.Outcome {
		case Malformed:
			rep.Malformed++
			if m.log.Enabled(logx.LevelDebug) {
				m.log.Debug("row skipped: not a sale", logx.Int("row", rowIndex), logx.Strs("cells", rows[i]))
			}
		case BelowThreshold:
			rep.BelowThreshold++
			m.log.Debug("row skipped: at or below threshold", logx.Int("row", rowIndex), logx.Int("quantity", res.Sale.Quantity))
		case NoRecipient:
			rep.NoRecipient++
			m.log.Debug("row skipped: no chat registered", logx.Int("row", rowIndex))
		case Notify:
			if err := m.notifier.Send(ctx, res.ChatID, rowIndex, res.Sale); err != nil {
				rep.SendErrors++
				m.log.Error("alert delivery failed", logx.Int("row", rowIndex), logx.Int64("chat_id", res.ChatID), logx.Err(err))
				continue
			}
			rep.Notified++
		}
	}
	rep.Took = m.now().Sub(start)

	m.mu.Lock()
	m.snap.Primed = true
	m.snap.Watermark = len(rows)
	m.snap.LastPollAt = m.now()
	m.snap.LastError = ""
	m.snap.Cycles++
	m.snap.Notified += uint64(rep.Notified)
	m.snap.Skipped += uint64(rep.Malformed + rep.BelowThreshold + rep.NoRecipient)
	m.snap.SendErrors += uint64(rep.SendErrors)
	m.mu.Unlock()

	if m.heartbeat != nil {
		m.heartbeat()
	}
	return rep, nil
}

func (m *Monitor) recordFetchError(err error) {
	m.mu.Lock()
	m.snap.FetchErrors++
	m.snap.LastError = err.Error()
	m.mu.Unlock()
}

// Run primes the watermark, retrying with backoff until the sheet is
// reachable, then polls on the schedule until ctx is cancelled. A failed
// cycle is logged and the next activation tries again.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.primeWithRetry(ctx); err != nil {
		return err
	}
	for {
		if err := m.waitNext(ctx); err != nil {
			return nil
		}
		rep, err := m.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.log.Warn("poll cycle failed; retrying next cycle", logx.Err(err))
			continue
		}
		if rep.New > 0 || rep.Shrunk {
			m.log.Info("poll cycle done",
				logx.Int("rows", rep.Rows),
				logx.Int("new", rep.New),
				logx.Int("notified", rep.Notified),
				logx.Int("send_errors", rep.SendErrors),
				logx.Duration("took", rep.Took),
			)
		}
	}
}

func (m *Monitor) primeWithRetry(ctx context.Context) error {
	backoff := m.primeMin
	for {
		err := m.Prime(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		m.log.Warn("initial fetch failed; retrying", logx.Duration("in", sleep), logx.Err(err))
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff *= 2
		if backoff > m.primeMax {
			backoff = m.primeMax
		}
	}
}

// waitNext blocks until the next activation of the current schedule. A
// schedule change restarts the wait from now.
func (m *Monitor) waitNext(ctx context.Context) error {
	for {
		m.mu.Lock()
		sched := m.sched.Schedule
		m.mu.Unlock()

		now := m.now()
		next := sched.Next(now)
		if next.IsZero() {
			// cron expression that never fires (e.g. Feb 30)
			next = now.Add(time.Hour)
		}
		d := next.Sub(now)
		if d < 0 {
			d = 0
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-m.schedCh:
			t.Stop()
			continue
		case <-t.C:
			return nil
		}
	}
}
