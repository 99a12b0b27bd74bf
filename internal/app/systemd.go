package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "salebot/pkg/logx"
)

// notifier talks sd_notify. Every call is a no-op outside systemd
// (NOTIFY_SOCKET unset) or when disabled in config.
type notifier struct {
	enabled bool
	log     logx.Logger

	// lastBeat is the unix nano time of the last monitor heartbeat.
	lastBeat atomic.Int64
}

func newNotifier(enabled bool, log logx.Logger) *notifier {
	n := &notifier{enabled: enabled, log: log}
	n.lastBeat.Store(time.Now().UnixNano())
	return n
}

func (n *notifier) notify(state string) {
	if !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *notifier) Ready()    { n.notify(daemon.SdNotifyReady) }
func (n *notifier) Stopping() { n.notify(daemon.SdNotifyStopping) }

// Heartbeat is installed as the monitor's post-cycle hook.
func (n *notifier) Heartbeat() {
	n.lastBeat.Store(time.Now().UnixNano())
	n.notify(daemon.SdNotifyWatchdog)
}

// watchdog pings WATCHDOG=1 at half the configured WatchdogSec while the
// monitor keeps completing cycles. If no cycle finished within stale, pings
// stop and systemd restarts the unit. It returns at once when the unit has
// no watchdog.
func (n *notifier) watchdog(ctx context.Context, stale time.Duration) {
	if !n.enabled {
		return
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			last := time.Unix(0, n.lastBeat.Load())
			if stale > 0 && time.Since(last) > stale {
				n.log.Warn("monitor heartbeat stale; withholding watchdog ping", logx.Duration("since", time.Since(last)))
				continue
			}
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
