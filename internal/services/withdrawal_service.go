package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// WithdrawalService debits merchant balances for payouts and settles or
// refunds them once an admin has decided.
type WithdrawalService struct {
	env
	rail   gateway.Gateway
	txns   *TransactionService
	ledger *LedgerService
}

// Request debits amount from the owner's wallet and opens a pending request.
// Nothing is persisted when the balance does not cover it.
func (s *WithdrawalService) Request(ctx context.Context, ownerID string, amount decimal.Decimal, payoutMethodID string) (models.WithdrawalRequest, error) {
	if !amount.IsPositive() || !amount.Equal(s.cfg.round(amount)) {
		return models.WithdrawalRequest{}, ErrInvalidAmount
	}
	var out models.WithdrawalRequest
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		pm, err := r.GetPayoutMethod(ctx, payoutMethodID)
		if err != nil {
			return fmt.Errorf("payout method %q: %w", payoutMethodID, err)
		}
		if pm.OwnerID != ownerID {
			return fmt.Errorf("%w: payout method belongs to another owner", ErrForbidden)
		}

		txn, err := s.txns.create(ctx, r, models.Transaction{
			OwnerID:     ownerID,
			Type:        models.TxnWithdrawal,
			Status:      models.TxnProcessing,
			Amount:      amount,
			Description: "payout to " + pm.Label,
		})
		if err != nil {
			return err
		}
		entry, err := s.ledger.debit(ctx, r, ownerID, amount, txn, "withdrawal "+txn.Reference)
		if err != nil {
			return err
		}
		out, err = r.CreateWithdrawal(ctx, models.WithdrawalRequest{
			WalletID:      entry.WalletID,
			OwnerID:       ownerID,
			Amount:        amount,
			Payout:        pm.Snapshot(),
			Status:        models.WithdrawalPending,
			TransactionID: txn.ID,
		})
		if err != nil {
			return fmt.Errorf("create withdrawal: %w", err)
		}
		return audit(ctx, r, "withdrawal", out.ID, "requested", map[string]any{
			"amount":      amount.String(),
			"transaction": txn.Reference,
		})
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	metrics.Withdrawals.WithLabelValues(string(models.WithdrawalPending)).Inc()
	s.log.Info("withdrawal requested", "id", out.ID, "owner", ownerID, "amount", amount.String())
	return out, nil
}

// Resolve applies an admin decision. Approval hands the payout to the rail;
// if the rail fails the request stays approved and resolving it as approved
// again retries the hand-off.
func (s *WithdrawalService) Resolve(ctx context.Context, id string, outcome models.WithdrawalOutcome, note string) (models.WithdrawalRequest, error) {
	switch outcome {
	case models.OutcomeRejected:
		return s.reject(ctx, id, note)
	case models.OutcomeApproved:
		return s.approve(ctx, id, note)
	}
	return models.WithdrawalRequest{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidState, outcome)
}

func (s *WithdrawalService) reject(ctx context.Context, id, note string) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		var err error
		w, err = r.LockWithdrawal(ctx, id)
		if err != nil {
			return fmt.Errorf("withdrawal %q: %w", id, err)
		}
		switch w.Status {
		case models.WithdrawalRejected:
			return ErrDuplicateIgnored
		case models.WithdrawalPending:
		default:
			return fmt.Errorf("%w: withdrawal %s is %s", ErrInvalidState, w.ID, w.Status)
		}

		orig, err := r.LockTransaction(ctx, w.TransactionID)
		if err != nil {
			return err
		}
		now := s.cfg.Now()
		refund, err := s.txns.create(ctx, r, models.Transaction{
			OwnerID:     w.OwnerID,
			Type:        models.TxnRefund,
			Status:      models.TxnCompleted,
			Amount:      w.Amount,
			Currency:    orig.Currency,
			Description: "refund of " + orig.Reference,
			CompletedAt: &now,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledger.credit(ctx, r, w.OwnerID, w.Amount, refund, "withdrawal rejected"); err != nil {
			return err
		}
		reason := "withdrawal rejected"
		if note != "" {
			reason += ": " + note
		}
		if _, err := s.txns.apply(ctx, r, orig, models.TxnCancelled, failure(reason, nil)); err != nil {
			return err
		}

		w.Status = models.WithdrawalRejected
		w.AdminNote = note
		w.RefundTransactionID = &refund.ID
		if err := r.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		return audit(ctx, r, "withdrawal", w.ID, "rejected", map[string]any{"refund": refund.Reference, "note": note})
	})
	if errors.Is(err, ErrDuplicateIgnored) {
		s.log.Info("withdrawal already rejected", "id", id)
		return w, nil
	}
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	metrics.Withdrawals.WithLabelValues(string(w.Status)).Inc()
	s.notify(w.OwnerID, notify.KindWithdrawalResolved, fmt.Sprintf("withdrawal of %s rejected", w.Amount.StringFixed(s.cfg.AmountScale)))
	return w, nil
}

func (s *WithdrawalService) approve(ctx context.Context, id, note string) (models.WithdrawalRequest, error) {
	var (
		w   models.WithdrawalRequest
		ref string
	)
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		var err error
		w, err = r.LockWithdrawal(ctx, id)
		if err != nil {
			return fmt.Errorf("withdrawal %q: %w", id, err)
		}
		now := s.cfg.Now()
		switch w.Status {
		case models.WithdrawalCompleted:
			return ErrDuplicateIgnored
		case models.WithdrawalRejected:
			return fmt.Errorf("%w: withdrawal %s is rejected", ErrInvalidState, w.ID)
		case models.WithdrawalPayingOut:
			if w.PayoutClaimedAt != nil && now.Sub(*w.PayoutClaimedAt) < s.cfg.PayoutLease {
				return fmt.Errorf("%w: withdrawal %s", ErrPayoutInProgress, w.ID)
			}
			s.log.Warn("payout claim lapsed, retrying hand-off", "id", w.ID)
		case models.WithdrawalPending:
			if note != "" {
				w.AdminNote = note
			}
			if err := audit(ctx, r, "withdrawal", w.ID, "approved", map[string]any{"note": note}); err != nil {
				return err
			}
		}

		// Claim the hand-off before the rail is called.
		w.Status = models.WithdrawalPayingOut
		w.PayoutClaimedAt = &now
		if err := r.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		t, err := r.GetTransaction(ctx, w.TransactionID)
		ref = t.Reference
		return err
	})
	if errors.Is(err, ErrDuplicateIgnored) {
		return w, nil
	}
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	claim := *w.PayoutClaimedAt

	// The transaction reference doubles as the rail's idempotency key.
	ext, err := s.rail.SendPayout(ctx, gateway.PayoutInstruction{
		Reference: ref,
		Amount:    w.Amount,
		Currency:  s.cfg.Currency,
		Method:    w.Payout,
	})
	if err != nil {
		metrics.Withdrawals.WithLabelValues("payout_failed").Inc()
		s.log.Warn("payout hand-off failed, request stays approved", "id", w.ID, "err", err)
		released, rerr := s.releaseClaim(ctx, id, claim)
		if rerr != nil {
			s.log.Error("release payout claim", "id", id, "err", rerr)
		} else {
			w = released
		}
		if errors.Is(err, ErrGatewayUnavailable) {
			return w, err
		}
		return w, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	err = s.store.WithTx(ctx, func(r repository.Store) error {
		var err error
		w, err = r.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != models.WithdrawalPayingOut {
			return nil
		}
		w.Status = models.WithdrawalCompleted
		w.PayoutReference = &ext
		w.PayoutClaimedAt = nil
		if err := r.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		if _, err := s.txns.transition(ctx, r, w.TransactionID, models.TxnCompleted, s.txns.completion(ext, nil)); err != nil {
			return err
		}
		return audit(ctx, r, "withdrawal", w.ID, "completed", map[string]any{"payout_reference": ext})
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	metrics.Withdrawals.WithLabelValues(string(w.Status)).Inc()
	s.notify(w.OwnerID, notify.KindWithdrawalResolved, fmt.Sprintf("withdrawal of %s paid out", w.Amount.StringFixed(s.cfg.AmountScale)))
	return w, nil
}

// releaseClaim puts a request whose hand-off failed back to approved, unless
// another caller has taken the claim over since.
func (s *WithdrawalService) releaseClaim(ctx context.Context, id string, claim time.Time) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		var err error
		w, err = r.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != models.WithdrawalPayingOut || w.PayoutClaimedAt == nil || !w.PayoutClaimedAt.Equal(claim) {
			return nil
		}
		w.Status = models.WithdrawalApproved
		w.PayoutClaimedAt = nil
		return r.UpdateWithdrawal(ctx, w)
	})
	return w, err
}

func (s *WithdrawalService) List(ctx context.Context, ownerID string, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListWithdrawals(ctx, ownerID, limit, offset)
}

// Get returns the request if ownerID owns it; an empty ownerID skips the
// check.
func (s *WithdrawalService) Get(ctx context.Context, id, ownerID string) (models.WithdrawalRequest, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	if ownerID != "" && w.OwnerID != ownerID {
		return models.WithdrawalRequest{}, ErrForbidden
	}
	return w, nil
}

// AddPayoutMethod registers where an owner's payouts go.
func (s *WithdrawalService) AddPayoutMethod(ctx context.Context, m models.PayoutMethod) (models.PayoutMethod, error) {
	switch m.Kind {
	case models.PayoutMobileMoney, models.PayoutBank:
	default:
		return models.PayoutMethod{}, fmt.Errorf("%w: unknown payout kind %q", ErrInvalidState, m.Kind)
	}
	return s.store.CreatePayoutMethod(ctx, m)
}
