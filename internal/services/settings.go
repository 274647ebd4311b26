package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// Settings carries the knobs services need. Zero values fall back to
// defaults.
type Settings struct {
	SessionTTL      time.Duration
	Currency        string
	AmountScale     int32
	OperatorID      string
	GatewayAttempts int
	GatewayBackoff  time.Duration
	SweepBatch      int
	// PayoutLease is how long a payout hand-off claim blocks other approvals.
	PayoutLease time.Duration
	Now         func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.SessionTTL <= 0 {
		s.SessionTTL = 15 * time.Minute
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if s.AmountScale <= 0 {
		s.AmountScale = 2
	}
	if s.OperatorID == "" {
		s.OperatorID = "operator"
	}
	if s.GatewayAttempts <= 0 {
		s.GatewayAttempts = 3
	}
	if s.GatewayBackoff <= 0 {
		s.GatewayBackoff = 200 * time.Millisecond
	}
	if s.SweepBatch <= 0 {
		s.SweepBatch = 100
	}
	if s.PayoutLease <= 0 {
		s.PayoutLease = 5 * time.Minute
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// round applies the money rounding rule: half away from zero at AmountScale.
func (s Settings) round(d decimal.Decimal) decimal.Decimal { return d.Round(s.AmountScale) }

// Dispatcher runs fire-and-forget jobs; *worker.Pool satisfies it.
type Dispatcher interface {
	Submit(name string, fn func()) bool
}

// Inline runs jobs on the caller's goroutine.
type Inline struct{}

func (Inline) Submit(_ string, fn func()) bool { fn(); return true }

// env is what every service shares.
type env struct {
	store    repository.Store
	cfg      Settings
	log      *slog.Logger
	notifier notify.Notifier
	jobs     Dispatcher
}

func (e env) notify(userID string, kind notify.Kind, msg string) {
	if e.notifier == nil {
		return
	}
	e.jobs.Submit("notify:"+string(kind), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.notifier.Notify(ctx, userID, kind, msg); err != nil {
			e.log.Warn("notification failed", "user", userID, "kind", kind, "err", err)
		}
	})
}

func audit(ctx context.Context, r repository.Store, entity, id, action string, details map[string]any) error {
	return r.CreateAuditLog(ctx, models.AuditLog{
		EntityType: entity,
		EntityID:   &id,
		Action:     action,
		Details:    details,
	})
}
