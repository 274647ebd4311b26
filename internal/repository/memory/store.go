// Package memory is a single-writer implementation of repository.Store.
// Every unit of work runs on a private copy of the state under one writer
// lock and replaces the state only when it succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

type data struct {
	wallets      map[string]models.Wallet // by id
	walletOwners map[string]string        // owner -> wallet id
	entries      []models.LedgerEntry
	seq          int64

	txns   map[string]models.Transaction
	txnRef map[string]string
	txnExt map[string]string

	sessions     map[string]models.QRPaymentSession
	sessionToken map[string]string
	sessionTxn   map[string]string

	connectors     map[string]models.Connector
	connectorToken map[string]string
	charging       map[string]models.ChargingRecord
	chargingByS    map[string]string

	withdrawals map[string]models.WithdrawalRequest
	payouts     map[string]models.PayoutMethod
	audits      []models.AuditLog
}

func newData() *data {
	return &data{
		wallets:        map[string]models.Wallet{},
		walletOwners:   map[string]string{},
		txns:           map[string]models.Transaction{},
		txnRef:         map[string]string{},
		txnExt:         map[string]string{},
		sessions:       map[string]models.QRPaymentSession{},
		sessionToken:   map[string]string{},
		sessionTxn:     map[string]string{},
		connectors:     map[string]models.Connector{},
		connectorToken: map[string]string{},
		charging:       map[string]models.ChargingRecord{},
		chargingByS:    map[string]string{},
		withdrawals:    map[string]models.WithdrawalRequest{},
		payouts:        map[string]models.PayoutMethod{},
	}
}

func (d *data) clone() *data {
	return &data{
		wallets:        maps.Clone(d.wallets),
		walletOwners:   maps.Clone(d.walletOwners),
		entries:        slices.Clone(d.entries),
		seq:            d.seq,
		txns:           maps.Clone(d.txns),
		txnRef:         maps.Clone(d.txnRef),
		txnExt:         maps.Clone(d.txnExt),
		sessions:       maps.Clone(d.sessions),
		sessionToken:   maps.Clone(d.sessionToken),
		sessionTxn:     maps.Clone(d.sessionTxn),
		connectors:     maps.Clone(d.connectors),
		connectorToken: maps.Clone(d.connectorToken),
		charging:       maps.Clone(d.charging),
		chargingByS:    maps.Clone(d.chargingByS),
		withdrawals:    maps.Clone(d.withdrawals),
		payouts:        maps.Clone(d.payouts),
		audits:         slices.Clone(d.audits),
	}
}

type Store struct {
	mu   sync.Mutex
	data *data
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store { return NewWithClock(time.Now) }

func NewWithClock(now func() time.Time) *Store {
	return &Store{data: newData(), now: now}
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(&tx{d: work, now: s.now}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) view() *tx { return &tx{d: s.data, now: s.now} }

func locked[T any](s *Store, fn func(*tx) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.view())
}

func lockedErr(s *Store, fn func(*tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.view())
}

// AddConnector seeds a connector. Zero AvailableCapacity means fully free.
func (s *Store) AddConnector(c models.Connector) models.Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Capacity == 0 {
		c.Capacity = 1
	}
	if c.AvailableCapacity == 0 {
		c.AvailableCapacity = c.Capacity
	}
	c.Active = true
	c.UpdatedAt = s.now()
	s.data.connectors[c.ID] = c
	s.data.connectorToken[c.Token] = c.ID
	return c
}

// SetAvailableCapacity overrides a connector's free capacity.
func (s *Store) SetAvailableCapacity(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.data.connectors[id]
	c.AvailableCapacity = n
	s.data.connectors[id] = c
}

// AuditLogs returns a copy of every audit row written so far.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.audits)
}

func (s *Store) GetWallet(ctx context.Context, ownerID string) (models.Wallet, error) {
	return locked(s, func(t *tx) (models.Wallet, error) { return t.GetWallet(ctx, ownerID) })
}

func (s *Store) LockWallet(ctx context.Context, ownerID, currency string) (models.Wallet, error) {
	return locked(s, func(t *tx) (models.Wallet, error) { return t.LockWallet(ctx, ownerID, currency) })
}

func (s *Store) UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error {
	return lockedErr(s, func(t *tx) error { return t.UpdateWalletBalance(ctx, walletID, balance) })
}

func (s *Store) FindEntry(ctx context.Context, walletID, transactionID string, dir models.EntryDirection) (models.LedgerEntry, error) {
	return locked(s, func(t *tx) (models.LedgerEntry, error) { return t.FindEntry(ctx, walletID, transactionID, dir) })
}

func (s *Store) InsertEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	return locked(s, func(t *tx) (models.LedgerEntry, error) { return t.InsertEntry(ctx, e) })
}

func (s *Store) ListEntries(ctx context.Context, walletID string) ([]models.LedgerEntry, error) {
	return locked(s, func(t *tx) ([]models.LedgerEntry, error) { return t.ListEntries(ctx, walletID) })
}

func (s *Store) CreateTransaction(ctx context.Context, m models.Transaction) (models.Transaction, error) {
	return locked(s, func(t *tx) (models.Transaction, error) { return t.CreateTransaction(ctx, m) })
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return locked(s, func(t *tx) (models.Transaction, error) { return t.GetTransaction(ctx, id) })
}

func (s *Store) FindTransactionByReference(ctx context.Context, ref string) (models.Transaction, error) {
	return locked(s, func(t *tx) (models.Transaction, error) { return t.FindTransactionByReference(ctx, ref) })
}

func (s *Store) FindTransactionByExternalReference(ctx context.Context, ext string) (models.Transaction, error) {
	return locked(s, func(t *tx) (models.Transaction, error) { return t.FindTransactionByExternalReference(ctx, ext) })
}

func (s *Store) LockTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return locked(s, func(t *tx) (models.Transaction, error) { return t.LockTransaction(ctx, id) })
}

func (s *Store) UpdateTransaction(ctx context.Context, m models.Transaction) error {
	return lockedErr(s, func(t *tx) error { return t.UpdateTransaction(ctx, m) })
}

func (s *Store) CreateSession(ctx context.Context, qs models.QRPaymentSession) (models.QRPaymentSession, error) {
	return locked(s, func(t *tx) (models.QRPaymentSession, error) { return t.CreateSession(ctx, qs) })
}

func (s *Store) GetSession(ctx context.Context, id string) (models.QRPaymentSession, error) {
	return locked(s, func(t *tx) (models.QRPaymentSession, error) { return t.GetSession(ctx, id) })
}

func (s *Store) GetSessionByToken(ctx context.Context, token string) (models.QRPaymentSession, error) {
	return locked(s, func(t *tx) (models.QRPaymentSession, error) { return t.GetSessionByToken(ctx, token) })
}

func (s *Store) GetSessionByTransaction(ctx context.Context, transactionID string) (models.QRPaymentSession, error) {
	return locked(s, func(t *tx) (models.QRPaymentSession, error) { return t.GetSessionByTransaction(ctx, transactionID) })
}

func (s *Store) LockSession(ctx context.Context, id string) (models.QRPaymentSession, error) {
	return locked(s, func(t *tx) (models.QRPaymentSession, error) { return t.LockSession(ctx, id) })
}

func (s *Store) UpdateSession(ctx context.Context, qs models.QRPaymentSession) error {
	return lockedErr(s, func(t *tx) error { return t.UpdateSession(ctx, qs) })
}

func (s *Store) ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]models.QRPaymentSession, error) {
	return locked(s, func(t *tx) ([]models.QRPaymentSession, error) { return t.ListExpiredSessions(ctx, now, limit) })
}

func (s *Store) ExpireSession(ctx context.Context, id string, now time.Time) (bool, error) {
	return locked(s, func(t *tx) (bool, error) { return t.ExpireSession(ctx, id, now) })
}

func (s *Store) GetConnector(ctx context.Context, id string) (models.Connector, error) {
	return locked(s, func(t *tx) (models.Connector, error) { return t.GetConnector(ctx, id) })
}

func (s *Store) GetConnectorByToken(ctx context.Context, token string) (models.Connector, error) {
	return locked(s, func(t *tx) (models.Connector, error) { return t.GetConnectorByToken(ctx, token) })
}

func (s *Store) ReserveConnector(ctx context.Context, id string) (bool, error) {
	return locked(s, func(t *tx) (bool, error) { return t.ReserveConnector(ctx, id) })
}

func (s *Store) ReleaseConnector(ctx context.Context, id string) error {
	return lockedErr(s, func(t *tx) error { return t.ReleaseConnector(ctx, id) })
}

func (s *Store) CreateChargingRecord(ctx context.Context, r models.ChargingRecord) (models.ChargingRecord, error) {
	return locked(s, func(t *tx) (models.ChargingRecord, error) { return t.CreateChargingRecord(ctx, r) })
}

func (s *Store) GetChargingRecordBySession(ctx context.Context, sessionID string) (models.ChargingRecord, error) {
	return locked(s, func(t *tx) (models.ChargingRecord, error) { return t.GetChargingRecordBySession(ctx, sessionID) })
}

func (s *Store) UpdateChargingRecord(ctx context.Context, r models.ChargingRecord) error {
	return lockedErr(s, func(t *tx) error { return t.UpdateChargingRecord(ctx, r) })
}

func (s *Store) CreateWithdrawal(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	return locked(s, func(t *tx) (models.WithdrawalRequest, error) { return t.CreateWithdrawal(ctx, w) })
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return locked(s, func(t *tx) (models.WithdrawalRequest, error) { return t.GetWithdrawal(ctx, id) })
}

func (s *Store) LockWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return locked(s, func(t *tx) (models.WithdrawalRequest, error) { return t.LockWithdrawal(ctx, id) })
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w models.WithdrawalRequest) error {
	return lockedErr(s, func(t *tx) error { return t.UpdateWithdrawal(ctx, w) })
}

func (s *Store) ListWithdrawals(ctx context.Context, ownerID string, limit, offset int) ([]models.WithdrawalRequest, error) {
	return locked(s, func(t *tx) ([]models.WithdrawalRequest, error) { return t.ListWithdrawals(ctx, ownerID, limit, offset) })
}

func (s *Store) GetPayoutMethod(ctx context.Context, id string) (models.PayoutMethod, error) {
	return locked(s, func(t *tx) (models.PayoutMethod, error) { return t.GetPayoutMethod(ctx, id) })
}

func (s *Store) CreatePayoutMethod(ctx context.Context, m models.PayoutMethod) (models.PayoutMethod, error) {
	return locked(s, func(t *tx) (models.PayoutMethod, error) { return t.CreatePayoutMethod(ctx, m) })
}

func (s *Store) CreateAuditLog(ctx context.Context, l models.AuditLog) error {
	return lockedErr(s, func(t *tx) error { return t.CreateAuditLog(ctx, l) })
}
