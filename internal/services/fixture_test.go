package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type note struct {
	user string
	kind notify.Kind
	msg  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, kind notify.Kind, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{userID, kind, msg})
	return nil
}

func (n *recordingNotifier) kinds(user string) []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Kind
	for _, x := range n.notes {
		if x.user == user {
			out = append(out, x.kind)
		}
	}
	return out
}

type fixture struct {
	ctx   context.Context
	clock *clock
	store *memory.Store
	gw    *gateway.Sandbox
	notes *recordingNotifier
	svc   *Services
	conn  models.Connector
}

const merchant = "merchant-1"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewWithClock(clk.Now)
	gw := gateway.NewSandbox("http://sandbox")
	notes := &recordingNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store, gw, notes, Inline{}, Settings{
		Currency:       "USD",
		Now:            clk.Now,
		GatewayBackoff: time.Millisecond,
	}, log)
	conn := store.AddConnector(models.Connector{
		ID:           "conn-1",
		Token:        "qr-conn-1",
		StationID:    "station-1",
		MerchantID:   merchant,
		PricePerUnit: dec("5.50"),
		Capacity:     1,
	})
	return &fixture{ctx: context.Background(), clock: clk, store: store, gw: gw, notes: notes, svc: svc, conn: conn}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fund credits owner through a completed deposit.
func (f *fixture) fund(t *testing.T, owner, amount string) {
	t.Helper()
	txn, err := f.svc.Transactions.Create(f.ctx, owner, models.TxnDeposit, dec(amount), "seed")
	require.NoError(t, err)
	_, err = f.svc.Ledger.Credit(f.ctx, owner, dec(amount), txn, "seed")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, owner string) decimal.Decimal {
	t.Helper()
	b, err := f.svc.Ledger.Balance(f.ctx, owner)
	require.NoError(t, err)
	return b
}

// initiate opens a 10 unit energy session on the fixture connector.
func (f *fixture) initiate(t *testing.T) Initiation {
	t.Helper()
	in, err := f.svc.Payments.Initiate(f.ctx, NewSession{
		UserID:         "driver-1",
		ConnectorToken: f.conn.Token,
		Charge:         models.EnergyQuantity{Units: dec("10")},
		Contact:        "+233200000000",
	})
	require.NoError(t, err)
	return in
}
