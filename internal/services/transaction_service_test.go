package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

func TestCreateAssignsUniquePrefixedReferences(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Transactions.Create(f.ctx, "u1", models.TxnWithdrawal, dec("1"), "")
	require.NoError(t, err)
	b, err := f.svc.Transactions.Create(f.ctx, "u1", models.TxnWithdrawal, dec("1"), "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.Reference, "WDR-"))
	assert.NotEqual(t, a.Reference, b.Reference)
	assert.Equal(t, models.TxnPending, a.Status)
	assert.Equal(t, "USD", a.Currency)

	_, err = f.svc.Transactions.Create(f.ctx, "u1", models.TxnPayment, dec("0"), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransactionStatusMovesOneWay(t *testing.T) {
	f := newFixture(t)
	txn, err := f.svc.Transactions.Create(f.ctx, "u1", models.TxnPayment, dec("3"), "")
	require.NoError(t, err)

	p, err := f.svc.Transactions.MarkProcessing(f.ctx, txn.Reference, json.RawMessage(`{"step":1}`))
	require.NoError(t, err)
	assert.Equal(t, models.TxnProcessing, p.Status)

	_, err = f.svc.Transactions.MarkProcessing(f.ctx, txn.Reference, nil)
	require.NoError(t, err, "re-entering processing is a no-op")

	done, err := f.svc.Transactions.MarkCompleted(f.ctx, txn.Reference, "gw-77", json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, models.TxnCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.ExternalReference)
	assert.Equal(t, "gw-77", *done.ExternalReference)

	again, err := f.svc.Transactions.MarkFailed(f.ctx, txn.Reference, "late decline", nil)
	require.NoError(t, err, "a terminal transaction ignores later transitions")
	assert.Equal(t, models.TxnCompleted, again.Status)
	assert.Empty(t, again.FailureReason)

	redo, err := f.svc.Transactions.MarkCompleted(f.ctx, txn.Reference, "gw-other", nil)
	require.NoError(t, err)
	assert.Equal(t, "gw-77", *redo.ExternalReference)
	assert.Equal(t, done.CompletedAt, redo.CompletedAt)

	byExt, err := f.svc.Transactions.FindByExternalReference(f.ctx, "gw-77")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, byExt.ID)
	assert.Equal(t, models.TxnCompleted, byExt.Status)
}

func TestCancelRecordsReason(t *testing.T) {
	f := newFixture(t)
	txn, err := f.svc.Transactions.Create(f.ctx, "u1", models.TxnWithdrawal, dec("3"), "")
	require.NoError(t, err)

	c, err := f.svc.Transactions.MarkCancelled(f.ctx, txn.Reference, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, models.TxnCancelled, c.Status)
	assert.Equal(t, "changed mind", c.FailureReason)
}

func TestMarkUnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transactions.MarkProcessing(f.ctx, "PAY-missing", nil)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
