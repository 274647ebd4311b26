// Package notify delivers user-facing notices. Delivery is best effort:
// callers never roll back state because a notice could not be sent.
package notify

import (
	"context"
	"log/slog"
)

type Kind string

const (
	KindPaymentCompleted   Kind = "payment_completed"
	KindPaymentFailed      Kind = "payment_failed"
	KindChargingStarted    Kind = "charging_started"
	KindActivationFailed   Kind = "activation_failed"
	KindLatePayment        Kind = "late_payment"
	KindWithdrawalResolved Kind = "withdrawal_resolved"
)

type Notifier interface {
	Notify(ctx context.Context, userID string, kind Kind, message string) error
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct{ Log *slog.Logger }

func (n LogNotifier) Notify(_ context.Context, userID string, kind Kind, message string) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "user", userID, "kind", kind, "message", message)
	return nil
}
