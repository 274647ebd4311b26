package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// SessionService owns the QR payment session state machine.
type SessionService struct {
	env
}

type NewSession struct {
	UserID         string
	ConnectorToken string
	Charge         models.Charge
	Contact        string
}

func newSessionToken() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

func (s *SessionService) CreateSession(ctx context.Context, in NewSession) (models.QRPaymentSession, error) {
	var out models.QRPaymentSession
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		sess, err := s.create(ctx, r, in)
		out = sess
		return err
	})
	return out, err
}

func (s *SessionService) create(ctx context.Context, r repository.Store, in NewSession) (models.QRPaymentSession, error) {
	if in.Charge == nil || !in.Charge.Quantity().IsPositive() {
		return models.QRPaymentSession{}, ErrInvalidAmount
	}
	conn, err := r.GetConnectorByToken(ctx, in.ConnectorToken)
	if errors.Is(err, repository.ErrNotFound) {
		return models.QRPaymentSession{}, fmt.Errorf("connector %q: %w", in.ConnectorToken, ErrNotFound)
	}
	if err != nil {
		return models.QRPaymentSession{}, err
	}
	// Capacity can still run out before activation; that case is handled there.
	if !conn.Active || conn.AvailableCapacity <= 0 {
		return models.QRPaymentSession{}, ErrConnectorUnavailable
	}

	amount := s.cfg.round(in.Charge.Price(conn.PricePerUnit))
	if !amount.IsPositive() {
		return models.QRPaymentSession{}, ErrInvalidAmount
	}

	now := s.cfg.Now()
	sess, err := r.CreateSession(ctx, models.QRPaymentSession{
		Token:             newSessionToken(),
		UserID:            in.UserID,
		ConnectorID:       conn.ID,
		Mode:              in.Charge.Mode(),
		RequestedQuantity: in.Charge.Quantity(),
		CalculatedAmount:  amount,
		Currency:          s.cfg.Currency,
		Contact:           in.Contact,
		Status:            models.SessionCreated,
		ExpiresAt:         now.Add(s.cfg.SessionTTL),
	})
	if err != nil {
		return models.QRPaymentSession{}, fmt.Errorf("create session: %w", err)
	}
	if err := audit(ctx, r, "qr_session", sess.ID, "created", map[string]any{
		"connector": conn.ID,
		"mode":      sess.Mode,
		"amount":    amount.String(),
	}); err != nil {
		return models.QRPaymentSession{}, err
	}
	return sess, nil
}

// AttachTransaction binds a payment transaction to a freshly created session.
func (s *SessionService) AttachTransaction(ctx context.Context, sessionID, transactionID string) (models.QRPaymentSession, error) {
	var out models.QRPaymentSession
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		sess, err := s.attach(ctx, r, sessionID, transactionID)
		out = sess
		return err
	})
	return out, err
}

func (s *SessionService) attach(ctx context.Context, r repository.Store, sessionID, transactionID string) (models.QRPaymentSession, error) {
	sess, err := r.LockSession(ctx, sessionID)
	if err != nil {
		return models.QRPaymentSession{}, err
	}
	if sess.Status == models.SessionPaymentInitiated && sess.TransactionID != nil && *sess.TransactionID == transactionID {
		return sess, nil
	}
	if sess.Status != models.SessionCreated {
		return sess, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sess.Token, sess.Status)
	}
	sess.TransactionID = &transactionID
	return s.move(ctx, r, sess, models.SessionPaymentInitiated, "")
}

// OnPaymentConfirmed marks the session paid. Paid sessions are left alone;
// failed or expired ones are refused.
func (s *SessionService) OnPaymentConfirmed(ctx context.Context, sessionID string) (models.QRPaymentSession, error) {
	var out models.QRPaymentSession
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		sess, err := r.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		out, err = s.confirm(ctx, r, sess)
		return err
	})
	return out, err
}

func (s *SessionService) confirm(ctx context.Context, r repository.Store, sess models.QRPaymentSession) (models.QRPaymentSession, error) {
	if sess.Status.Paid() {
		return sess, nil
	}
	if sess.Status.Terminal() {
		return sess, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sess.Token, sess.Status)
	}
	return s.move(ctx, r, sess, models.SessionPaymentCompleted, "")
}

func (s *SessionService) MarkFailed(ctx context.Context, sessionID, reason string) (models.QRPaymentSession, error) {
	var out models.QRPaymentSession
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		sess, err := r.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		out, err = s.fail(ctx, r, sess, reason)
		return err
	})
	return out, err
}

func (s *SessionService) fail(ctx context.Context, r repository.Store, sess models.QRPaymentSession, reason string) (models.QRPaymentSession, error) {
	if sess.Status == models.SessionFailed {
		return sess, nil
	}
	if sess.Status.Terminal() {
		return sess, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sess.Token, sess.Status)
	}
	return s.move(ctx, r, sess, models.SessionFailed, reason)
}

func (s *SessionService) move(ctx context.Context, r repository.Store, sess models.QRPaymentSession, to models.SessionStatus, reason string) (models.QRPaymentSession, error) {
	from := sess.Status
	sess.Status = to
	sess.FailureReason = reason
	if err := r.UpdateSession(ctx, sess); err != nil {
		return models.QRPaymentSession{}, fmt.Errorf("update session: %w", err)
	}
	details := map[string]any{"from": from, "to": to}
	if reason != "" {
		details["reason"] = reason
	}
	if err := audit(ctx, r, "qr_session", sess.ID, "status_change", details); err != nil {
		return models.QRPaymentSession{}, err
	}
	return sess, nil
}

// ExpireStaleSessions moves unpaid sessions past their expiry to expired,
// one row per statement.
func (s *SessionService) ExpireStaleSessions(ctx context.Context) (int, error) {
	now := s.cfg.Now()
	expired := 0
	for {
		batch, err := s.store.ListExpiredSessions(ctx, now, s.cfg.SweepBatch)
		if err != nil {
			return expired, err
		}
		changed := 0
		for _, sess := range batch {
			ok, err := s.store.ExpireSession(ctx, sess.ID, now)
			if err != nil {
				return expired, fmt.Errorf("expire session %s: %w", sess.Token, err)
			}
			if ok {
				changed++
				s.log.Debug("session expired", "token", sess.Token)
			}
		}
		expired += changed
		if len(batch) < s.cfg.SweepBatch || changed == 0 {
			break
		}
	}
	if expired > 0 {
		metrics.SessionsExpired.Add(float64(expired))
		s.log.Info("expired stale sessions", "count", expired)
	}
	return expired, nil
}

// RunSweeper expires sessions every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 30 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.ExpireStaleSessions(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("session sweep failed", "err", err)
			}
		}
	}
}

func (s *SessionService) Get(ctx context.Context, token string) (models.QRPaymentSession, error) {
	sess, err := s.store.GetSessionByToken(ctx, token)
	if err != nil {
		return models.QRPaymentSession{}, fmt.Errorf("session %q: %w", token, err)
	}
	return sess, nil
}
