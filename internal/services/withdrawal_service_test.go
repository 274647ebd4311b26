package services

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

func (f *fixture) payoutMethod(t *testing.T, owner string) models.PayoutMethod {
	t.Helper()
	m, err := f.svc.Withdrawals.AddPayoutMethod(f.ctx, models.PayoutMethod{
		OwnerID: owner,
		Kind:    models.PayoutMobileMoney,
		Label:   "MTN MoMo",
		Details: map[string]string{"msisdn": "+233200000001"},
	})
	require.NoError(t, err)
	return m
}

func TestWithdrawalOverBalanceLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.fund(t, merchant, "100.00")
	pm := f.payoutMethod(t, merchant)

	_, err := f.svc.Withdrawals.Request(f.ctx, merchant, dec("150.00"), pm.ID)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	assert.True(t, f.balance(t, merchant).Equal(dec("100.00")))
	list, err := f.svc.Withdrawals.List(f.ctx, merchant, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	entries, err := f.svc.Ledger.Entries(f.ctx, merchant)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRejectedWithdrawalIsRefunded(t *testing.T) {
	f := newFixture(t)
	f.fund(t, merchant, "100.00")
	pm := f.payoutMethod(t, merchant)

	w, err := f.svc.Withdrawals.Request(f.ctx, merchant, dec("40.00"), pm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, w.Status)
	assert.Equal(t, "MTN MoMo", w.Payout.Label)
	assert.True(t, f.balance(t, merchant).Equal(dec("60.00")))

	w, err = f.svc.Withdrawals.Resolve(f.ctx, w.ID, models.OutcomeRejected, "kyc pending")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, w.Status)
	assert.Equal(t, "kyc pending", w.AdminNote)
	require.NotNil(t, w.RefundTransactionID)
	assert.True(t, f.balance(t, merchant).Equal(dec("100.00")))

	entries, err := f.svc.Ledger.Entries(f.ctx, merchant)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.EntryDebit, entries[1].Direction)
	assert.Equal(t, models.EntryCredit, entries[2].Direction)
	assert.Equal(t, *w.RefundTransactionID, entries[2].TransactionID)
	assert.NoError(t, f.svc.Ledger.Verify(f.ctx, merchant))

	orig, err := f.svc.Transactions.Get(f.ctx, w.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxnCancelled, orig.Status)
	refund, err := f.svc.Transactions.Get(f.ctx, *w.RefundTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxnRefund, refund.Type)
	assert.Equal(t, models.TxnCompleted, refund.Status)

	again, err := f.svc.Withdrawals.Resolve(f.ctx, w.ID, models.OutcomeRejected, "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, again.Status)
	assert.True(t, f.balance(t, merchant).Equal(dec("100.00")))

	_, err = f.svc.Withdrawals.Resolve(f.ctx, w.ID, models.OutcomeApproved, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApprovedWithdrawalPaysOut(t *testing.T) {
	f := newFixture(t)
	f.fund(t, merchant, "100.00")
	pm := f.payoutMethod(t, merchant)

	w, err := f.svc.Withdrawals.Request(f.ctx, merchant, dec("40.00"), pm.ID)
	require.NoError(t, err)

	w, err = f.svc.Withdrawals.Resolve(f.ctx, w.ID, models.OutcomeApproved, "ok")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, w.Status)
	require.NotNil(t, w.PayoutReference)
	assert.True(t, f.balance(t, merchant).Equal(dec("60.00")))

	txn, err := f.svc.Transactions.Get(f.ctx, w.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxnCompleted, txn.Status)

	payouts := f.gw.Payouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, txn.Reference, payouts[0].Reference)
	assert.Equal(t, "+233200000001", payouts[0].Method.Details["msisdn"])

	_, err = f.svc.Withdrawals.Resolve(f.ctx, w.ID, models.OutcomeRejected, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPayoutFailureLeavesRequestApproved(t *testing.T) {
	f := newFixture(t)
	f.fund(t, merchant, "100.00")
	pm := f.payoutMethod(t, merchant)
	w, err := f.svc.Withdrawals.Request(f.ctx, merchant, dec("25.00"), pm.ID)
	require.NoError(t, err)

	f.gw.FailNext(1)
	got, err := f.svc.Withdrawals.Resolve(f.ctx, w.ID, models.OutcomeApproved, "")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, models.WithdrawalApproved, got.Status)

	stored, err := f.svc.Withdrawals.Get(f.ctx, w.ID, merchant)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalApproved, stored.Status)

	got, err = f.svc.Withdrawals.Resolve(f.ctx, w.ID, models.OutcomeApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, got.Status)
	assert.True(t, f.balance(t, merchant).Equal(dec("75.00")))
}

func TestWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, merchant, "100.00")
	pm := f.payoutMethod(t, "someone-else")

	_, err := f.svc.Withdrawals.Request(f.ctx, merchant, dec("10.00"), pm.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Withdrawals.Request(f.ctx, merchant, dec("0"), pm.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Withdrawals.Request(f.ctx, merchant, dec("1.001"), pm.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Withdrawals.Request(f.ctx, merchant, dec("1.00"), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// gatedRail holds every payout until release is closed.
type gatedRail struct {
	*gateway.Sandbox
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedRail) SendPayout(ctx context.Context, in gateway.PayoutInstruction) (string, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release
	return g.Sandbox.SendPayout(ctx, in)
}

func (f *fixture) gatedWithdrawals() (*WithdrawalService, *gatedRail) {
	rail := &gatedRail{Sandbox: f.gw, entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := New(f.store, rail, f.notes, Inline{}, Settings{
		Currency:    "USD",
		Now:         f.clock.Now,
		PayoutLease: time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc.Withdrawals, rail
}

type resolved struct {
	w   models.WithdrawalRequest
	err error
}

func TestConcurrentApprovalPaysOutOnce(t *testing.T) {
	f := newFixture(t)
	f.fund(t, merchant, "100.00")
	pm := f.payoutMethod(t, merchant)
	w, err := f.svc.Withdrawals.Request(f.ctx, merchant, dec("40.00"), pm.ID)
	require.NoError(t, err)

	wd, rail := f.gatedWithdrawals()
	done := make(chan resolved, 1)
	go func() {
		got, err := wd.Resolve(f.ctx, w.ID, models.OutcomeApproved, "")
		done <- resolved{got, err}
	}()
	<-rail.entered

	stored, err := wd.Get(f.ctx, w.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPayingOut, stored.Status)

	_, err = wd.Resolve(f.ctx, w.ID, models.OutcomeApproved, "")
	assert.ErrorIs(t, err, ErrPayoutInProgress)
	_, err = wd.Resolve(f.ctx, w.ID, models.OutcomeRejected, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	close(rail.release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, models.WithdrawalCompleted, first.w.Status)

	assert.EqualValues(t, 1, rail.calls.Load())
	assert.Len(t, f.gw.Payouts(), 1)
	assert.True(t, f.balance(t, merchant).Equal(dec("60.00")))
}

func TestLapsedPayoutClaimRetriesWithSameReference(t *testing.T) {
	f := newFixture(t)
	f.fund(t, merchant, "100.00")
	pm := f.payoutMethod(t, merchant)
	w, err := f.svc.Withdrawals.Request(f.ctx, merchant, dec("40.00"), pm.ID)
	require.NoError(t, err)

	wd, rail := f.gatedWithdrawals()
	done := make(chan resolved, 2)
	resolve := func() {
		got, err := wd.Resolve(f.ctx, w.ID, models.OutcomeApproved, "")
		done <- resolved{got, err}
	}
	go resolve()
	<-rail.entered

	f.clock.Advance(2 * time.Minute)
	go resolve()
	<-rail.entered
	close(rail.release)

	for i := 0; i < 2; i++ {
		r := <-done
		require.NoError(t, r.err)
		assert.Equal(t, models.WithdrawalCompleted, r.w.Status)
	}
	assert.EqualValues(t, 2, rail.calls.Load())
	payouts := f.gw.Payouts()
	require.Len(t, payouts, 1)
	assert.True(t, f.balance(t, merchant).Equal(dec("60.00")))
	assert.NoError(t, f.svc.Ledger.Verify(f.ctx, merchant))
}
