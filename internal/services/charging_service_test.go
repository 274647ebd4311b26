package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
)

func TestActivationFailureKeepsPaymentAndRetries(t *testing.T) {
	f := newFixture(t)
	in := f.initiate(t)
	f.store.SetAvailableCapacity(f.conn.ID, 0)

	_, err := f.svc.Reconciliation.HandleCallback(f.ctx, Callback{Reference: in.Transaction.Reference, Success: true})
	require.NoError(t, err)
	assert.True(t, f.balance(t, merchant).Equal(dec("55.00")))

	sess, err := f.svc.Sessions.Get(f.ctx, in.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPaymentCompleted, sess.Status)
	assert.Contains(t, sess.FailureReason, "activation failed")
	assert.Contains(t, f.notes.kinds("operator"), notify.KindActivationFailed)

	f.store.SetAvailableCapacity(f.conn.ID, 1)
	rec, err := f.svc.Charging.Activate(f.ctx, in.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.ChargingActive, rec.Status)

	again, err := f.svc.Charging.Activate(f.ctx, in.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	sess, err = f.svc.Sessions.Get(f.ctx, in.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionChargingStarted, sess.Status)
	assert.Empty(t, sess.FailureReason)
}

func TestCompleteChargingReleasesConnector(t *testing.T) {
	f := newFixture(t)
	in := f.initiate(t)
	_, err := f.svc.Reconciliation.HandleCallback(f.ctx, Callback{Reference: in.Transaction.Reference, Success: true})
	require.NoError(t, err)

	_, err = f.svc.Charging.Complete(f.ctx, in.Session.Token, dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	rec, err := f.svc.Charging.Complete(f.ctx, in.Session.Token, dec("9.75"))
	require.NoError(t, err)
	assert.Equal(t, models.ChargingCompleted, rec.Status)
	assert.True(t, rec.EnergyDelivered.Equal(dec("9.75")))
	require.NotNil(t, rec.EndedAt)

	conn, err := f.store.GetConnector(f.ctx, f.conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conn.AvailableCapacity)

	sess, err := f.svc.Sessions.Get(f.ctx, in.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.SessionChargingCompleted, sess.Status)

	_, err = f.svc.Charging.Complete(f.ctx, in.Session.Token, dec("9.75"))
	assert.NoError(t, err)
}

func TestActivateRequiresPaidSession(t *testing.T) {
	f := newFixture(t)
	in := f.initiate(t)

	_, err := f.svc.Charging.Activate(f.ctx, in.Session.Token)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Charging.Activate(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Charging.Complete(f.ctx, in.Session.Token, dec("1"))
	assert.ErrorIs(t, err, ErrInvalidState)
}
