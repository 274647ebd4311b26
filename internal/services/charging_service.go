package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// ChargingService starts and stops charging for paid sessions.
type ChargingService struct {
	env
}

// Activate reserves connector capacity for a paid session and starts
// charging. When capacity cannot be reserved the session stays
// payment_completed with the reason recorded and the operator is told.
func (s *ChargingService) Activate(ctx context.Context, token string) (models.ChargingRecord, error) {
	var (
		rec  models.ChargingRecord
		sess models.QRPaymentSession
	)
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		found, err := r.GetSessionByToken(ctx, token)
		if err != nil {
			return fmt.Errorf("session %q: %w", token, err)
		}
		sess, err = r.LockSession(ctx, found.ID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case models.SessionChargingStarted:
			rec, err = r.GetChargingRecordBySession(ctx, sess.ID)
			if err != nil {
				return err
			}
			return ErrDuplicateIgnored
		case models.SessionPaymentCompleted:
		default:
			return fmt.Errorf("%w: session %s is %s", ErrInvalidState, sess.Token, sess.Status)
		}

		ok, err := r.ReserveConnector(ctx, sess.ConnectorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConnectorUnavailable
		}
		rec, err = r.CreateChargingRecord(ctx, models.ChargingRecord{
			SessionID:   sess.ID,
			ConnectorID: sess.ConnectorID,
			UserID:      sess.UserID,
			Status:      models.ChargingActive,
			StartedAt:   s.cfg.Now(),
		})
		if err != nil {
			return fmt.Errorf("create charging record: %w", err)
		}
		sess.Status = models.SessionChargingStarted
		sess.FailureReason = ""
		if err := r.UpdateSession(ctx, sess); err != nil {
			return err
		}
		return audit(ctx, r, "qr_session", sess.ID, "charging_started", map[string]any{"connector": sess.ConnectorID})
	})

	switch {
	case err == nil:
		metrics.Activations.WithLabelValues("started").Inc()
		s.log.Info("charging started", "token", token, "connector", rec.ConnectorID)
		s.notify(sess.UserID, notify.KindChargingStarted, "charging started")
		return rec, nil
	case errors.Is(err, ErrDuplicateIgnored):
		return rec, nil
	case errors.Is(err, ErrInvalidState), errors.Is(err, repository.ErrNotFound):
		return models.ChargingRecord{}, err
	}

	result := "error"
	if errors.Is(err, ErrConnectorUnavailable) {
		result = "connector_unavailable"
	}
	metrics.Activations.WithLabelValues(result).Inc()
	s.log.Warn("charging activation failed", "token", token, "err", err)
	s.recordFailure(ctx, sess.ID, err)
	s.notify(s.cfg.OperatorID, notify.KindActivationFailed,
		fmt.Sprintf("session %s paid but charging did not start: %v", token, err))
	return models.ChargingRecord{}, err
}

func (s *ChargingService) recordFailure(ctx context.Context, sessionID string, cause error) {
	if sessionID == "" {
		return
	}
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		sess, err := r.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != models.SessionPaymentCompleted {
			return nil
		}
		sess.FailureReason = "activation failed: " + cause.Error()
		if err := r.UpdateSession(ctx, sess); err != nil {
			return err
		}
		return audit(ctx, r, "qr_session", sess.ID, "activation_failed", map[string]any{"reason": cause.Error()})
	})
	if err != nil {
		s.log.Error("record activation failure", "session", sessionID, "err", err)
	}
}

// ActivateAsync queues activation on the dispatcher.
func (s *ChargingService) ActivateAsync(token string) {
	s.jobs.Submit("activate", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, _ = s.Activate(ctx, token)
	})
}

// Complete closes the charging record and frees the connector.
func (s *ChargingService) Complete(ctx context.Context, token string, energy decimal.Decimal) (models.ChargingRecord, error) {
	if energy.IsNegative() {
		return models.ChargingRecord{}, ErrInvalidAmount
	}
	var rec models.ChargingRecord
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		found, err := r.GetSessionByToken(ctx, token)
		if err != nil {
			return fmt.Errorf("session %q: %w", token, err)
		}
		sess, err := r.LockSession(ctx, found.ID)
		if err != nil {
			return err
		}
		rec, err = r.GetChargingRecordBySession(ctx, sess.ID)
		if sess.Status == models.SessionChargingCompleted {
			return err
		}
		if sess.Status != models.SessionChargingStarted {
			return fmt.Errorf("%w: session %s is %s", ErrInvalidState, sess.Token, sess.Status)
		}
		if err != nil {
			return err
		}

		now := s.cfg.Now()
		rec.Status = models.ChargingCompleted
		rec.EnergyDelivered = energy
		rec.EndedAt = &now
		if err := r.UpdateChargingRecord(ctx, rec); err != nil {
			return err
		}
		if err := r.ReleaseConnector(ctx, sess.ConnectorID); err != nil {
			return err
		}
		sess.Status = models.SessionChargingCompleted
		if err := r.UpdateSession(ctx, sess); err != nil {
			return err
		}
		return audit(ctx, r, "qr_session", sess.ID, "charging_completed", map[string]any{"energy": energy.String()})
	})
	return rec, err
}
