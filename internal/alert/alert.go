// Package alert formats sale notifications and delivers them to the
// registered chat.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"salebot/internal/storage"
	kit "salebot/internal/transport"
	logx "salebot/pkg/logx"
)

// Sale is a sheet row that passed shape and quantity checks.
type Sale struct {
	Product  string
	Quantity int
	Customer string
}

// Format renders the notification text.
func Format(s Sale) string {
	return fmt.Sprintf("New sale!\nProduct: %s\nQuantity: %d\nCustomer: %s", s.Product, s.Quantity, s.Customer)
}

type Config struct {
	// RatePerSec and Burst shape outgoing alerts. Telegram throttles bots
	// that post more than about one message per second to the same chat.
	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
}

// Sender posts alerts through the transport and records every attempt in
// the alert log. A nil log store disables recording.
type Sender struct {
	adapter kit.Adapter
	store   storage.Store
	log     logx.Logger
	limiter *rate.Limiter
	timeout time.Duration

	now func() time.Time
}

func NewSender(cfg Config, adapter kit.Adapter, store storage.Store, log logx.Logger) *Sender {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		adapter: adapter,
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		timeout: cfg.SendTimeout,
		now:     time.Now,
	}
}

// Send delivers one alert for the sale found at sheet row index row (1-based).
// Delivery errors are returned; recording errors are only logged.
func (s *Sender) Send(ctx context.Context, chatID int64, row int, sale Sale) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alert rate limit: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	_, sendErr := s.adapter.SendText(sctx, kit.ChatTarget{ChatID: chatID}, Format(sale), &kit.SendOptions{DisablePreview: true})
	cancel()

	rec := storage.AlertRecord{
		ID:       uuid.NewString(),
		At:       s.now(),
		ChatID:   chatID,
		Row:      row,
		Product:  sale.Product,
		Quantity: sale.Quantity,
		Customer: sale.Customer,
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if s.store != nil {
		// Record even if ctx is done: the send already happened (or failed).
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.store.AppendAlert(rctx, rec); err != nil && !errors.Is(err, storage.ErrClosed) {
			s.log.Warn("alert log append failed", logx.String("alert_id", rec.ID), logx.Err(err))
		}
		rcancel()
	}
	if sendErr != nil {
		return fmt.Errorf("send alert for row %d: %w", row, sendErr)
	}
	s.log.Info("alert sent",
		logx.String("alert_id", rec.ID),
		logx.Int("row", row),
		logx.String("product", sale.Product),
		logx.Int("quantity", sale.Quantity),
	)
	return nil
}
