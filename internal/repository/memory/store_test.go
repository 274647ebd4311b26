package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

func TestWithTxDiscardsStateOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(r repository.Store) error {
		w, err := r.LockWallet(ctx, "merchant-1", "USD")
		require.NoError(t, err)
		require.NoError(t, r.UpdateWalletBalance(ctx, w.ID, decimal.NewFromInt(10)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetWallet(ctx, "merchant-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithTxCommitsAndNests(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithTx(ctx, func(r repository.Store) error {
		return r.WithTx(ctx, func(inner repository.Store) error {
			w, err := inner.LockWallet(ctx, "merchant-1", "USD")
			if err != nil {
				return err
			}
			return inner.UpdateWalletBalance(ctx, w.ID, decimal.RequireFromString("12.50"))
		})
	})
	require.NoError(t, err)

	w, err := s.GetWallet(ctx, "merchant-1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("12.50")))
}

func TestInsertEntryRejectsDuplicateDirection(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := models.LedgerEntry{WalletID: "w1", TransactionID: "t1", Direction: models.EntryCredit, Amount: decimal.NewFromInt(1)}

	first, err := s.InsertEntry(ctx, e)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Seq)

	_, err = s.InsertEntry(ctx, e)
	assert.ErrorIs(t, err, repository.ErrConflict)

	e.Direction = models.EntryDebit
	_, err = s.InsertEntry(ctx, e)
	assert.NoError(t, err)
}

func TestNegativeBalanceIsRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	w, err := s.LockWallet(ctx, "owner", "USD")
	require.NoError(t, err)
	assert.Error(t, s.UpdateWalletBalance(ctx, w.ID, decimal.NewFromInt(-1)))
}

func TestExpireSessionOnlyTouchesExpirable(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewWithClock(func() time.Time { return now })

	stale, err := s.CreateSession(ctx, models.QRPaymentSession{Token: "a", Status: models.SessionCreated, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	paid, err := s.CreateSession(ctx, models.QRPaymentSession{Token: "b", Status: models.SessionPaymentCompleted, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	fresh, err := s.CreateSession(ctx, models.QRPaymentSession{Token: "c", Status: models.SessionPaymentInitiated, ExpiresAt: now.Add(time.Minute)})
	require.NoError(t, err)

	list, err := s.ListExpiredSessions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stale.ID, list[0].ID)

	for _, tc := range []struct {
		id   string
		want bool
	}{{stale.ID, true}, {paid.ID, false}, {fresh.ID, false}, {stale.ID, false}} {
		changed, err := s.ExpireSession(ctx, tc.id, now)
		require.NoError(t, err)
		assert.Equal(t, tc.want, changed)
	}
}
