package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// PaymentService opens QR payments and hands them to the gateway.
type PaymentService struct {
	env
	gw       gateway.Gateway
	txns     *TransactionService
	sessions *SessionService
}

type Initiation struct {
	Session     models.QRPaymentSession `json:"session"`
	Transaction models.Transaction      `json:"transaction"`
	CheckoutURL string                  `json:"checkout_url"`
}

// Initiate creates the session and its payment transaction, then asks the
// gateway for a checkout. Transient gateway errors are retried with backoff;
// if the gateway never answers both records are marked failed.
func (s *PaymentService) Initiate(ctx context.Context, in NewSession) (Initiation, error) {
	var out Initiation
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		sess, err := s.sessions.create(ctx, r, in)
		if err != nil {
			return err
		}
		txn, err := s.txns.create(ctx, r, models.Transaction{
			OwnerID:     in.UserID,
			Type:        models.TxnPayment,
			Amount:      sess.CalculatedAmount,
			Currency:    sess.Currency,
			Reference:   paymentReference(sess.Token, uuid.NewString()[:8]),
			Description: fmt.Sprintf("charging session %s", sess.Token),
		})
		if err != nil {
			return err
		}
		sess, err = s.sessions.attach(ctx, r, sess.ID, txn.ID)
		if err != nil {
			return err
		}
		out.Session, out.Transaction = sess, txn
		return nil
	})
	if err != nil {
		return Initiation{}, err
	}

	mode := string(out.Session.Mode)
	co, err := s.checkout(ctx, out.Transaction, in.Contact)
	if err != nil {
		metrics.PaymentsInitiated.WithLabelValues(mode, "gateway_unavailable").Inc()
		s.abandon(ctx, out.Transaction, out.Session, err)
		return Initiation{}, err
	}
	if co.ExternalReference != "" {
		if t, err := s.setExternalReference(ctx, out.Transaction.ID, co.ExternalReference); err != nil {
			s.log.Warn("could not store gateway reference", "ref", out.Transaction.Reference, "err", err)
		} else {
			out.Transaction = t
		}
	}
	metrics.PaymentsInitiated.WithLabelValues(mode, "ok").Inc()
	s.log.Info("payment initiated", "token", out.Session.Token, "ref", out.Transaction.Reference, "amount", out.Transaction.Amount.String())
	out.CheckoutURL = co.CheckoutURL
	return out, nil
}

// TopUp asks the gateway to collect amount straight into the payer's wallet.
// The deposit has no session, so reconciliation credits the payer.
func (s *PaymentService) TopUp(ctx context.Context, userID string, amount decimal.Decimal, contact string) (models.Transaction, string, error) {
	if !amount.IsPositive() || !amount.Equal(s.cfg.round(amount)) {
		return models.Transaction{}, "", ErrInvalidAmount
	}
	var txn models.Transaction
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		var err error
		txn, err = s.txns.create(ctx, r, models.Transaction{
			OwnerID:     userID,
			Type:        models.TxnDeposit,
			Amount:      amount,
			Description: "wallet top-up",
		})
		return err
	})
	if err != nil {
		return models.Transaction{}, "", err
	}
	co, err := s.checkout(ctx, txn, contact)
	if err != nil {
		metrics.PaymentsInitiated.WithLabelValues("top_up", "gateway_unavailable").Inc()
		s.abandon(ctx, txn, models.QRPaymentSession{}, err)
		return models.Transaction{}, "", err
	}
	metrics.PaymentsInitiated.WithLabelValues("top_up", "ok").Inc()
	return txn, co.CheckoutURL, nil
}

func (s *PaymentService) checkout(ctx context.Context, txn models.Transaction, contact string) (gateway.Checkout, error) {
	req := gateway.PaymentRequest{
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		Contact:     contact,
		Reference:   txn.Reference,
		Description: txn.Description,
	}
	var err error
	for attempt := 0; attempt < s.cfg.GatewayAttempts; attempt++ {
		if attempt > 0 {
			wait := s.cfg.GatewayBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return gateway.Checkout{}, ctx.Err()
			case <-time.After(wait):
			}
		}
		var co gateway.Checkout
		co, err = s.gw.InitiatePayment(ctx, req)
		if err == nil {
			return co, nil
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			return gateway.Checkout{}, err
		}
		s.log.Warn("gateway unavailable, retrying", "ref", txn.Reference, "attempt", attempt+1, "err", err)
	}
	return gateway.Checkout{}, err
}

func (s *PaymentService) abandon(ctx context.Context, txn models.Transaction, sess models.QRPaymentSession, cause error) {
	reason := "gateway: " + cause.Error()
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		if _, err := s.txns.transition(ctx, r, txn.ID, models.TxnFailed, failure(reason, nil)); err != nil && !errors.Is(err, ErrDuplicateIgnored) {
			return err
		}
		if sess.ID == "" {
			return nil
		}
		locked, err := r.LockSession(ctx, sess.ID)
		if err != nil {
			return err
		}
		_, err = s.sessions.fail(ctx, r, locked, reason)
		if errors.Is(err, ErrInvalidState) {
			return nil
		}
		return err
	})
	if err != nil {
		s.log.Error("could not mark abandoned payment failed", "ref", txn.Reference, "err", err)
	}
}

func (s *PaymentService) setExternalReference(ctx context.Context, id, ext string) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		t, err := r.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.ExternalReference != nil {
			out = t
			return nil
		}
		t.ExternalReference = &ext
		if err := r.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}
