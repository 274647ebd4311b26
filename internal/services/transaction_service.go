package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// TransactionService is the registry of payment, withdrawal, refund and
// deposit attempts. Status only moves forward.
type TransactionService struct {
	env
}

var refPrefix = map[models.TransactionType]string{
	models.TxnPayment:    "PAY",
	models.TxnWithdrawal: "WDR",
	models.TxnRefund:     "RFD",
	models.TxnDeposit:    "DEP",
}

func newReference(t models.TransactionType) string {
	p, ok := refPrefix[t]
	if !ok {
		p = "TXN"
	}
	return p + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Create registers a pending transaction under a fresh reference.
func (s *TransactionService) Create(ctx context.Context, ownerID string, typ models.TransactionType, amount decimal.Decimal, description string) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		t, err := s.create(ctx, r, models.Transaction{
			OwnerID:     ownerID,
			Type:        typ,
			Amount:      amount,
			Description: description,
		})
		out = t
		return err
	})
	return out, err
}

func (s *TransactionService) create(ctx context.Context, r repository.Store, t models.Transaction) (models.Transaction, error) {
	if !t.Amount.IsPositive() {
		return models.Transaction{}, ErrInvalidAmount
	}
	if t.Reference == "" {
		t.Reference = newReference(t.Type)
	}
	if t.Status == "" {
		t.Status = models.TxnPending
	}
	if t.Currency == "" {
		t.Currency = s.cfg.Currency
	}
	created, err := r.CreateTransaction(ctx, t)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if err := audit(ctx, r, "transaction", created.ID, "created", map[string]any{
		"reference": created.Reference,
		"type":      created.Type,
		"status":    created.Status,
		"amount":    created.Amount.String(),
	}); err != nil {
		return models.Transaction{}, err
	}
	return created, nil
}

func (s *TransactionService) MarkProcessing(ctx context.Context, ref string, raw json.RawMessage) (models.Transaction, error) {
	return s.byReference(ctx, ref, models.TxnProcessing, func(t *models.Transaction) {
		if len(raw) > 0 {
			t.RawResponse = raw
		}
	})
}

func (s *TransactionService) MarkCompleted(ctx context.Context, ref, externalRef string, raw json.RawMessage) (models.Transaction, error) {
	return s.byReference(ctx, ref, models.TxnCompleted, s.completion(externalRef, raw))
}

func (s *TransactionService) MarkFailed(ctx context.Context, ref, reason string, raw json.RawMessage) (models.Transaction, error) {
	return s.byReference(ctx, ref, models.TxnFailed, failure(reason, raw))
}

func (s *TransactionService) MarkCancelled(ctx context.Context, ref, reason string) (models.Transaction, error) {
	return s.byReference(ctx, ref, models.TxnCancelled, failure(reason, nil))
}

func (s *TransactionService) completion(externalRef string, raw json.RawMessage) func(*models.Transaction) {
	return func(t *models.Transaction) {
		if externalRef != "" && t.ExternalReference == nil {
			t.ExternalReference = &externalRef
		}
		if len(raw) > 0 {
			t.RawResponse = raw
		}
		now := s.cfg.Now()
		t.CompletedAt = &now
	}
}

func failure(reason string, raw json.RawMessage) func(*models.Transaction) {
	return func(t *models.Transaction) {
		t.FailureReason = reason
		if len(raw) > 0 {
			t.RawResponse = raw
		}
	}
}

// byReference moves the transaction named by ref. A transaction that is
// already terminal is returned unchanged with a nil error.
func (s *TransactionService) byReference(ctx context.Context, ref string, to models.TransactionStatus, mutate func(*models.Transaction)) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		t, err := r.FindTransactionByReference(ctx, ref)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrTransactionNotFound, ref)
		}
		if err != nil {
			return err
		}
		out, err = s.transition(ctx, r, t.ID, to, mutate)
		return err
	})
	if errors.Is(err, ErrDuplicateIgnored) {
		s.log.Info("transaction transition ignored", "ref", ref, "to", to, "status", out.Status)
		return out, nil
	}
	return out, err
}

// transition locks the transaction and moves it to the target status.
func (s *TransactionService) transition(ctx context.Context, r repository.Store, id string, to models.TransactionStatus, mutate func(*models.Transaction)) (models.Transaction, error) {
	t, err := r.LockTransaction(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if err != nil {
		return models.Transaction{}, err
	}
	return s.apply(ctx, r, t, to, mutate)
}

// apply moves an already locked transaction. A terminal transaction yields
// ErrDuplicateIgnored together with its current state.
func (s *TransactionService) apply(ctx context.Context, r repository.Store, t models.Transaction, to models.TransactionStatus, mutate func(*models.Transaction)) (models.Transaction, error) {
	switch {
	case t.Status.CanTransition(to):
	case t.Status == to && !t.Status.Terminal():
		return t, nil
	case t.Status.Terminal():
		return t, ErrDuplicateIgnored
	default:
		return t, fmt.Errorf("%w: transaction %s is %s, cannot become %s", ErrInvalidState, t.Reference, t.Status, to)
	}
	from := t.Status
	if mutate != nil {
		mutate(&t)
	}
	t.Status = to
	if err := r.UpdateTransaction(ctx, t); err != nil {
		return models.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	details := map[string]any{"from": from, "to": to, "reference": t.Reference}
	if t.FailureReason != "" {
		details["reason"] = t.FailureReason
	}
	if err := audit(ctx, r, "transaction", t.ID, "status_change", details); err != nil {
		return models.Transaction{}, err
	}
	return t, nil
}

func (s *TransactionService) Get(ctx context.Context, id string) (models.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) FindByReference(ctx context.Context, ref string) (models.Transaction, error) {
	return s.store.FindTransactionByReference(ctx, ref)
}

func (s *TransactionService) FindByExternalReference(ctx context.Context, ext string) (models.Transaction, error) {
	return s.store.FindTransactionByExternalReference(ctx, ext)
}

// transitionTx is transition in a unit of work of its own.
func (s *TransactionService) transitionTx(ctx context.Context, id string, to models.TransactionStatus, mutate func(*models.Transaction)) (models.Transaction, error) {
	var out models.Transaction
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		var err error
		out, err = s.transition(ctx, r, id, to, mutate)
		return err
	})
	return out, err
}
