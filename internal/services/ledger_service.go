package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// LedgerService is the only writer of wallet balances.
type LedgerService struct {
	env
}

// Credit raises the owner's balance by amount on behalf of txn. A second
// credit for the same wallet and transaction returns the first entry.
func (s *LedgerService) Credit(ctx context.Context, ownerID string, amount decimal.Decimal, txn models.Transaction, memo string) (models.LedgerEntry, error) {
	var out models.LedgerEntry
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		e, err := s.post(ctx, r, ownerID, amount, txn, memo, models.EntryCredit)
		out = e
		return err
	})
	return out, err
}

// Debit lowers the owner's balance. It never leaves a negative balance and
// never applies part of the amount.
func (s *LedgerService) Debit(ctx context.Context, ownerID string, amount decimal.Decimal, txn models.Transaction, memo string) (models.LedgerEntry, error) {
	var out models.LedgerEntry
	err := s.store.WithTx(ctx, func(r repository.Store) error {
		e, err := s.post(ctx, r, ownerID, amount, txn, memo, models.EntryDebit)
		out = e
		return err
	})
	return out, err
}

func (s *LedgerService) credit(ctx context.Context, r repository.Store, ownerID string, amount decimal.Decimal, txn models.Transaction, memo string) (models.LedgerEntry, error) {
	return s.post(ctx, r, ownerID, amount, txn, memo, models.EntryCredit)
}

func (s *LedgerService) debit(ctx context.Context, r repository.Store, ownerID string, amount decimal.Decimal, txn models.Transaction, memo string) (models.LedgerEntry, error) {
	return s.post(ctx, r, ownerID, amount, txn, memo, models.EntryDebit)
}

func (s *LedgerService) post(ctx context.Context, r repository.Store, ownerID string, amount decimal.Decimal, txn models.Transaction, memo string, dir models.EntryDirection) (models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return models.LedgerEntry{}, ErrInvalidAmount
	}
	currency := txn.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	w, err := r.LockWallet(ctx, ownerID, currency)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("lock wallet: %w", err)
	}
	if w.Currency != currency {
		return models.LedgerEntry{}, fmt.Errorf("%w: wallet %s, transaction %s", ErrCurrencyMismatch, w.Currency, currency)
	}

	existing, err := r.FindEntry(ctx, w.ID, txn.ID, dir)
	switch {
	case err == nil:
		metrics.LedgerDuplicates.Inc()
		s.log.Info("ledger posting already applied", "wallet", w.ID, "txn", txn.ID, "direction", dir)
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return models.LedgerEntry{}, err
	}

	if !w.Active {
		return models.LedgerEntry{}, fmt.Errorf("%w: wallet %s is inactive", ErrInvalidState, w.ID)
	}

	after := w.Balance.Add(amount)
	if dir == models.EntryDebit {
		if w.Balance.LessThan(amount) {
			return models.LedgerEntry{}, ErrInsufficientBalance
		}
		after = w.Balance.Sub(amount)
	}

	e, err := r.InsertEntry(ctx, models.LedgerEntry{
		WalletID:      w.ID,
		TransactionID: txn.ID,
		Direction:     dir,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  after,
		Memo:          memo,
	})
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := r.UpdateWalletBalance(ctx, w.ID, after); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("update balance: %w", err)
	}
	metrics.LedgerEntries.WithLabelValues(string(dir)).Inc()
	return e, nil
}

// Balance is zero for owners that never received a posting.
func (s *LedgerService) Balance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	w, err := s.store.GetWallet(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (s *LedgerService) Wallet(ctx context.Context, ownerID string) (models.Wallet, error) {
	return s.store.GetWallet(ctx, ownerID)
}

// Entries returns the owner's history in creation order.
func (s *LedgerService) Entries(ctx context.Context, ownerID string) ([]models.LedgerEntry, error) {
	w, err := s.store.GetWallet(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return []models.LedgerEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, w.ID)
}

// Verify replays the owner's entries from zero and checks each step against
// the stored balances.
func (s *LedgerService) Verify(ctx context.Context, ownerID string) error {
	return s.store.WithTx(ctx, func(r repository.Store) error {
		w, err := r.GetWallet(ctx, ownerID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		entries, err := r.ListEntries(ctx, w.ID)
		if err != nil {
			return err
		}
		running := decimal.Zero
		for _, e := range entries {
			if !e.BalanceBefore.Equal(running) {
				return fmt.Errorf("%w: entry %s starts at %s, expected %s", ErrLedgerMismatch, e.ID, e.BalanceBefore, running)
			}
			running = running.Add(e.Signed())
			if !e.BalanceAfter.Equal(running) {
				return fmt.Errorf("%w: entry %s ends at %s, expected %s", ErrLedgerMismatch, e.ID, e.BalanceAfter, running)
			}
		}
		if !w.Balance.Equal(running) {
			return fmt.Errorf("%w: wallet holds %s, entries sum to %s", ErrLedgerMismatch, w.Balance, running)
		}
		return nil
	})
}
