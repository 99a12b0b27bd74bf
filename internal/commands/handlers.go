package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"salebot/internal/monitor"
	"salebot/internal/runtime/supervisor"
	"salebot/internal/settings"
)

const (
	msgRegistered   = "You're now registered for alerts! Use /set_threshold <number> to set your quantity threshold (default is 0 = all sales)."
	msgThresholdSet = "Threshold set to %d. Alerts only for quantity > %d."
	msgUsage        = "Usage: /set_threshold <number>   (example: /set_threshold 10)"
	msgSaveFailed   = "Could not save settings. Please try again later."
)

// SettingsStore is the part of the settings store the handlers need.
type SettingsStore interface {
	Load(ctx context.Context) settings.Settings
	SetChat(ctx context.Context, chatID int64) (settings.Settings, error)
	SetThreshold(ctx context.Context, threshold int) (settings.Settings, error)
}

// StatusSource reports monitor progress for /status. May be nil.
type StatusSource interface {
	Snapshot() monitor.Snapshot
}

// TaskSource is optionally implemented by a StatusSource to list the
// supervised background tasks. Only tasks that restarted, panicked or failed
// are shown.
type TaskSource interface {
	Tasks() []supervisor.TaskStats
}

// Builtins returns the bot's commands.
func Builtins(store SettingsStore, status StatusSource, r *Router) []Command {
	return []Command{
		{
			Name:        "start",
			Aliases:     []string{"register"},
			Description: "register this chat for sale alerts",
			Usage:       "/start",
			Handle:      registerHandler(store),
		},
		{
			Name:        "set_threshold",
			Description: "only alert for quantity above N",
			Usage:       "/set_threshold <number>",
			Handle:      setThresholdHandler(store),
		},
		{
			Name:        "status",
			Description: "show threshold and monitor state",
			Usage:       "/status",
			Handle:      statusHandler(store, status),
		},
		{
			Name:        "help",
			Description: "list commands",
			Usage:       "/help",
			Handle:      helpHandler(r),
		},
	}
}

func registerHandler(store SettingsStore) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if _, err := store.SetChat(ctx, req.Message.ChatID); err != nil {
			_ = req.Reply(ctx, msgSaveFailed)
			return fmt.Errorf("register chat: %w", err)
		}
		req.Logger.Info("chat registered for alerts")
		return req.Reply(ctx, msgRegistered)
	}
}

func setThresholdHandler(store SettingsStore) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) == 0 {
			return req.Reply(ctx, msgUsage)
		}
		n, err := strconv.Atoi(req.Args[0])
		if err != nil {
			return req.Reply(ctx, msgUsage)
		}
		if _, err := store.SetThreshold(ctx, n); err != nil {
			_ = req.Reply(ctx, msgSaveFailed)
			return fmt.Errorf("set threshold: %w", err)
		}
		return req.Reply(ctx, fmt.Sprintf(msgThresholdSet, n, n))
	}
}

func statusHandler(store SettingsStore, status StatusSource) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		st := store.Load(ctx)
		var b strings.Builder
		fmt.Fprintf(&b, "Threshold: %d\n", st.Threshold)
		switch {
		case st.ChatID == nil:
			b.WriteString("Alerts: nobody registered (send /start)\n")
		case *st.ChatID == req.Message.ChatID:
			b.WriteString("Alerts: this chat\n")
		default:
			b.WriteString("Alerts: another chat\n")
		}
		if status != nil {
			snap := status.Snapshot()
			if !snap.Primed {
				b.WriteString("Monitor: starting\n")
			} else {
				fmt.Fprintf(&b, "Rows seen: %d\n", snap.Watermark)
				fmt.Fprintf(&b, "Last poll: %s ago\n", time.Since(snap.LastPollAt).Round(time.Second))
			}
			fmt.Fprintf(&b, "Schedule: %s\n", snap.Schedule)
			fmt.Fprintf(&b, "Alerts sent: %d, failed: %d\n", snap.Notified, snap.SendErrors)
			if snap.LastError != "" {
				fmt.Fprintf(&b, "Last error: %s\n", snap.LastError)
			}
			if ts, ok := status.(TaskSource); ok {
				writeTasks(&b, ts.Tasks())
			}
		}
		return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	}
}

func writeTasks(b *strings.Builder, tasks []supervisor.TaskStats) {
	for _, t := range tasks {
		if t.Restarts == 0 && t.Panics == 0 && t.LastErr == "" {
			continue
		}
		state := "stopped"
		if t.Active {
			state = "running"
		}
		fmt.Fprintf(b, "Task %s: %s, restarts %d", t.Name, state, t.Restarts)
		if t.Panics > 0 {
			fmt.Fprintf(b, ", panics %d", t.Panics)
		}
		if t.LastErr != "" {
			fmt.Fprintf(b, ", last error: %s", t.LastErr)
		}
		b.WriteString("\n")
	}
}

func helpHandler(r *Router) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		var b strings.Builder
		b.WriteString("Commands:\n")
		for _, c := range r.Commands() {
			usage := c.Usage
			if usage == "" {
				usage = "/" + c.Name
			}
			fmt.Fprintf(&b, "%s - %s\n", usage, c.Description)
		}
		return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	}
}
