package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// ReconciliationService turns gateway outcomes into completed or failed
// transactions. It is the only place a payment gets credited, and it is safe
// to feed the same outcome any number of times.
type ReconciliationService struct {
	env
	gw       gateway.Gateway
	txns     *TransactionService
	sessions *SessionService
	ledger   *LedgerService
	charging *ChargingService
}

// Callback is a gateway outcome, pushed or polled.
type Callback struct {
	Reference         string          `json:"reference"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Success           bool            `json:"success"`
	Reason            string          `json:"reason,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotFound  Outcome = "not_found"
)

type Result struct {
	Outcome     Outcome                  `json:"outcome"`
	Transaction *models.Transaction      `json:"transaction,omitempty"`
	Session     *models.QRPaymentSession `json:"session,omitempty"`
	LatePayment bool                     `json:"late_payment,omitempty"`
}

// HandleCallback applies a gateway callback. An unknown reference is
// acknowledged with OutcomeNotFound and no error.
func (s *ReconciliationService) HandleCallback(ctx context.Context, cb Callback) (Result, error) {
	return s.reconcile(ctx, "callback", cb)
}

func (s *ReconciliationService) reconcile(ctx context.Context, source string, cb Callback) (Result, error) {
	txn, err := s.resolve(ctx, cb)
	if errors.Is(err, ErrTransactionNotFound) {
		metrics.Callbacks.WithLabelValues(source, string(OutcomeNotFound)).Inc()
		s.log.Warn("gateway outcome for unknown transaction", "source", source, "ref", cb.Reference, "ext", cb.ExternalReference)
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		metrics.Callbacks.WithLabelValues(source, "error").Inc()
		return Result{}, err
	}
	if txn.Status.Terminal() {
		return s.duplicate(source, txn), nil
	}

	// Committed on its own so a crash below leaves a retryable marker.
	if cb.Success {
		txn, err = s.txns.transitionTx(ctx, txn.ID, models.TxnProcessing, func(t *models.Transaction) {
			if len(cb.Raw) > 0 {
				t.RawResponse = cb.Raw
			}
		})
		if errors.Is(err, ErrDuplicateIgnored) {
			return s.duplicate(source, txn), nil
		}
		if err != nil {
			metrics.Callbacks.WithLabelValues(source, "error").Inc()
			return Result{}, err
		}
	}

	var res Result
	err = s.store.WithTx(ctx, func(r repository.Store) error {
		t, err := r.LockTransaction(ctx, txn.ID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			res = Result{Outcome: OutcomeDuplicate, Transaction: &t}
			return nil
		}
		if cb.Success {
			res, err = s.complete(ctx, r, t, cb)
		} else {
			res, err = s.fail(ctx, r, t, cb)
		}
		return err
	})
	if err != nil {
		metrics.Callbacks.WithLabelValues(source, "error").Inc()
		s.log.Error("reconciliation failed, transaction left for retry", "ref", txn.Reference, "err", err)
		return Result{}, err
	}
	if res.Outcome == OutcomeDuplicate {
		return s.duplicate(source, *res.Transaction), nil
	}

	metrics.Callbacks.WithLabelValues(source, string(res.Outcome)).Inc()
	s.log.Info("payment reconciled", "source", source, "ref", txn.Reference, "outcome", res.Outcome, "late", res.LatePayment)
	s.afterCommit(res)
	return res, nil
}

func (s *ReconciliationService) duplicate(source string, t models.Transaction) Result {
	metrics.Callbacks.WithLabelValues(source, string(OutcomeDuplicate)).Inc()
	s.log.Info("duplicate gateway outcome ignored", "source", source, "ref", t.Reference, "status", t.Status)
	return Result{Outcome: OutcomeDuplicate, Transaction: &t}
}

// complete runs with the transaction row locked; the session and then the
// wallet are locked after it.
func (s *ReconciliationService) complete(ctx context.Context, r repository.Store, t models.Transaction, cb Callback) (Result, error) {
	t, err := s.txns.apply(ctx, r, t, models.TxnCompleted, s.txns.completion(cb.ExternalReference, cb.Raw))
	if err != nil {
		return Result{}, err
	}
	res := Result{Outcome: OutcomeCompleted, Transaction: &t}

	beneficiary := t.OwnerID
	sess, err := r.GetSessionByTransaction(ctx, t.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Direct top-up: the payer is credited.
	case err != nil:
		return Result{}, err
	default:
		sess, err = r.LockSession(ctx, sess.ID)
		if err != nil {
			return Result{}, err
		}
		if sess.Status.Terminal() && !sess.Status.Paid() {
			sess.LatePayment = true
			if err := r.UpdateSession(ctx, sess); err != nil {
				return Result{}, err
			}
			if err := audit(ctx, r, "qr_session", sess.ID, "late_payment", map[string]any{"status": sess.Status, "reference": t.Reference}); err != nil {
				return Result{}, err
			}
			res.LatePayment = true
		} else if sess, err = s.sessions.confirm(ctx, r, sess); err != nil {
			return Result{}, err
		}
		conn, err := r.GetConnector(ctx, sess.ConnectorID)
		if err != nil {
			return Result{}, fmt.Errorf("connector %s: %w", sess.ConnectorID, err)
		}
		beneficiary = conn.MerchantID
		res.Session = &sess
	}

	if _, err := s.ledger.credit(ctx, r, beneficiary, t.Amount, t, "payment "+t.Reference); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *ReconciliationService) fail(ctx context.Context, r repository.Store, t models.Transaction, cb Callback) (Result, error) {
	reason := cb.Reason
	if reason == "" {
		reason = "payment declined by gateway"
	}
	t, err := s.txns.apply(ctx, r, t, models.TxnFailed, failure(reason, cb.Raw))
	if err != nil {
		return Result{}, err
	}
	res := Result{Outcome: OutcomeFailed, Transaction: &t}

	sess, err := r.GetSessionByTransaction(ctx, t.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return res, nil
	case err != nil:
		return Result{}, err
	}
	sess, err = r.LockSession(ctx, sess.ID)
	if err != nil {
		return Result{}, err
	}
	if !sess.Status.Terminal() && !sess.Status.Paid() {
		if sess, err = s.sessions.fail(ctx, r, sess, reason); err != nil {
			return Result{}, err
		}
	}
	res.Session = &sess
	return res, nil
}

func (s *ReconciliationService) afterCommit(res Result) {
	t := res.Transaction
	switch {
	case res.Outcome == OutcomeFailed:
		s.notify(t.OwnerID, notify.KindPaymentFailed, "payment "+t.Reference+" failed: "+t.FailureReason)
	case res.LatePayment:
		s.notify(s.cfg.OperatorID, notify.KindLatePayment,
			fmt.Sprintf("payment %s captured after session %s became %s", t.Reference, res.Session.Token, res.Session.Status))
	case res.Session != nil:
		s.notify(t.OwnerID, notify.KindPaymentCompleted, "payment "+t.Reference+" received")
		if res.Session.Status == models.SessionPaymentCompleted {
			s.charging.ActivateAsync(res.Session.Token)
		}
	default:
		s.notify(t.OwnerID, notify.KindPaymentCompleted, "top-up "+t.Reference+" received")
	}
}

// resolve finds the transaction by external reference, then internal
// reference, then by the session token carried in a QR reference. A gateway
// that sends only its own id in reference is matched on the external
// reference too.
func (s *ReconciliationService) resolve(ctx context.Context, cb Callback) (models.Transaction, error) {
	ext := cb.ExternalReference
	if ext == "" {
		ext = cb.Reference
	}
	if ext != "" {
		t, err := s.store.FindTransactionByExternalReference(ctx, ext)
		if !errors.Is(err, repository.ErrNotFound) {
			return t, err
		}
	}
	if cb.Reference != "" {
		t, err := s.store.FindTransactionByReference(ctx, cb.Reference)
		if !errors.Is(err, repository.ErrNotFound) {
			return t, err
		}
	}
	if token, ok := sessionTokenFromReference(cb.Reference); ok {
		sess, err := s.store.GetSessionByToken(ctx, token)
		if err == nil && sess.TransactionID != nil {
			return s.store.GetTransaction(ctx, *sess.TransactionID)
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return models.Transaction{}, err
		}
	}
	return models.Transaction{}, ErrTransactionNotFound
}

func paymentReference(token, suffix string) string { return "QR-" + token + "-" + suffix }

func sessionTokenFromReference(ref string) (string, bool) {
	rest, ok := strings.CutPrefix(ref, "QR-")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}

// Poll returns the session for token. With refresh set and the payment still
// open, the gateway is asked for the outcome and the answer goes through the
// same path as a callback.
func (s *ReconciliationService) Poll(ctx context.Context, token string, refresh bool) (models.QRPaymentSession, error) {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil || !refresh || s.gw == nil || sess.TransactionID == nil {
		return sess, err
	}
	txn, err := s.store.GetTransaction(ctx, *sess.TransactionID)
	if err != nil {
		return sess, err
	}
	if txn.Status.Terminal() {
		return sess, nil
	}

	st, err := s.gw.PaymentStatus(ctx, txn.Reference)
	if err != nil {
		s.log.Warn("gateway status poll failed", "ref", txn.Reference, "err", err)
		return sess, nil
	}
	switch st.State {
	case gateway.StateSuccess, gateway.StateFailed:
		cb := Callback{
			Reference:         txn.Reference,
			ExternalReference: st.ExternalReference,
			Success:           st.State == gateway.StateSuccess,
			Raw:               st.Raw,
		}
		if _, err := s.reconcile(ctx, "poll", cb); err != nil {
			return sess, err
		}
		return s.sessions.Get(ctx, token)
	}
	return sess, nil
}
