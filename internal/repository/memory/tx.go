package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

var errNegativeBalance = errors.New("wallet balance check violated")

// tx is the view a unit of work operates on. Its locks are implicit: the
// owning Store holds the writer lock for the whole unit.
type tx struct {
	d   *data
	now func() time.Time
}

func (t *tx) WithTx(_ context.Context, fn func(repository.Store) error) error { return fn(t) }

// ---------- wallets ----------

func (t *tx) GetWallet(_ context.Context, ownerID string) (models.Wallet, error) {
	id, ok := t.d.walletOwners[ownerID]
	if !ok {
		return models.Wallet{}, repository.ErrNotFound
	}
	return t.d.wallets[id], nil
}

func (t *tx) LockWallet(ctx context.Context, ownerID, currency string) (models.Wallet, error) {
	if w, err := t.GetWallet(ctx, ownerID); err == nil {
		return w, nil
	}
	now := t.now()
	w := models.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.d.wallets[w.ID] = w
	t.d.walletOwners[ownerID] = w.ID
	return w, nil
}

func (t *tx) UpdateWalletBalance(_ context.Context, walletID string, balance decimal.Decimal) error {
	w, ok := t.d.wallets[walletID]
	if !ok {
		return repository.ErrNotFound
	}
	if balance.IsNegative() {
		return errNegativeBalance
	}
	w.Balance = balance
	w.UpdatedAt = t.now()
	t.d.wallets[walletID] = w
	return nil
}

// ---------- ledger entries ----------

func (t *tx) FindEntry(_ context.Context, walletID, transactionID string, dir models.EntryDirection) (models.LedgerEntry, error) {
	for _, e := range t.d.entries {
		if e.WalletID == walletID && e.TransactionID == transactionID && e.Direction == dir {
			return e, nil
		}
	}
	return models.LedgerEntry{}, repository.ErrNotFound
}

func (t *tx) InsertEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if _, err := t.FindEntry(ctx, e.WalletID, e.TransactionID, e.Direction); err == nil {
		return models.LedgerEntry{}, repository.ErrConflict
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	t.d.seq++
	e.Seq = t.d.seq
	e.CreatedAt = t.now()
	t.d.entries = append(t.d.entries, e)
	return e, nil
}

func (t *tx) ListEntries(_ context.Context, walletID string) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range t.d.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------- transactions ----------

func (t *tx) CreateTransaction(_ context.Context, m models.Transaction) (models.Transaction, error) {
	if _, dup := t.d.txnRef[m.Reference]; dup {
		return models.Transaction{}, repository.ErrConflict
	}
	if m.ExternalReference != nil {
		if _, dup := t.d.txnExt[*m.ExternalReference]; dup {
			return models.Transaction{}, repository.ErrConflict
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := t.now()
	m.CreatedAt, m.UpdatedAt = now, now
	t.d.txns[m.ID] = m
	t.d.txnRef[m.Reference] = m.ID
	if m.ExternalReference != nil {
		t.d.txnExt[*m.ExternalReference] = m.ID
	}
	return m, nil
}

func (t *tx) GetTransaction(_ context.Context, id string) (models.Transaction, error) {
	m, ok := t.d.txns[id]
	if !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	return m, nil
}

func (t *tx) FindTransactionByReference(ctx context.Context, ref string) (models.Transaction, error) {
	id, ok := t.d.txnRef[ref]
	if !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	return t.GetTransaction(ctx, id)
}

func (t *tx) FindTransactionByExternalReference(ctx context.Context, ext string) (models.Transaction, error) {
	id, ok := t.d.txnExt[ext]
	if !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	return t.GetTransaction(ctx, id)
}

func (t *tx) LockTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *tx) UpdateTransaction(_ context.Context, m models.Transaction) error {
	old, ok := t.d.txns[m.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if m.ExternalReference != nil {
		if owner, dup := t.d.txnExt[*m.ExternalReference]; dup && owner != m.ID {
			return repository.ErrConflict
		}
		t.d.txnExt[*m.ExternalReference] = m.ID
	}
	old.Status = m.Status
	old.ExternalReference = m.ExternalReference
	old.RawResponse = m.RawResponse
	old.FailureReason = m.FailureReason
	old.CompletedAt = m.CompletedAt
	old.UpdatedAt = t.now()
	t.d.txns[m.ID] = old
	return nil
}

// ---------- sessions ----------

func (t *tx) CreateSession(_ context.Context, s models.QRPaymentSession) (models.QRPaymentSession, error) {
	if _, dup := t.d.sessionToken[s.Token]; dup {
		return models.QRPaymentSession{}, repository.ErrConflict
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := t.now()
	s.CreatedAt, s.UpdatedAt = now, now
	t.d.sessions[s.ID] = s
	t.d.sessionToken[s.Token] = s.ID
	if s.TransactionID != nil {
		t.d.sessionTxn[*s.TransactionID] = s.ID
	}
	return s, nil
}

func (t *tx) GetSession(_ context.Context, id string) (models.QRPaymentSession, error) {
	s, ok := t.d.sessions[id]
	if !ok {
		return models.QRPaymentSession{}, repository.ErrNotFound
	}
	return s, nil
}

func (t *tx) GetSessionByToken(ctx context.Context, token string) (models.QRPaymentSession, error) {
	id, ok := t.d.sessionToken[token]
	if !ok {
		return models.QRPaymentSession{}, repository.ErrNotFound
	}
	return t.GetSession(ctx, id)
}

func (t *tx) GetSessionByTransaction(ctx context.Context, transactionID string) (models.QRPaymentSession, error) {
	id, ok := t.d.sessionTxn[transactionID]
	if !ok {
		return models.QRPaymentSession{}, repository.ErrNotFound
	}
	return t.GetSession(ctx, id)
}

func (t *tx) LockSession(ctx context.Context, id string) (models.QRPaymentSession, error) {
	return t.GetSession(ctx, id)
}

func (t *tx) UpdateSession(_ context.Context, s models.QRPaymentSession) error {
	old, ok := t.d.sessions[s.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.TransactionID != nil {
		if owner, dup := t.d.sessionTxn[*s.TransactionID]; dup && owner != s.ID {
			return repository.ErrConflict
		}
		t.d.sessionTxn[*s.TransactionID] = s.ID
	}
	old.TransactionID = s.TransactionID
	old.Status = s.Status
	old.FailureReason = s.FailureReason
	old.LatePayment = s.LatePayment
	old.UpdatedAt = t.now()
	t.d.sessions[s.ID] = old
	return nil
}

func (t *tx) ListExpiredSessions(_ context.Context, now time.Time, limit int) ([]models.QRPaymentSession, error) {
	var out []models.QRPaymentSession
	for _, s := range t.d.sessions {
		if s.Status.Expirable() && s.ExpiresAt.Before(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) ExpireSession(_ context.Context, id string, now time.Time) (bool, error) {
	s, ok := t.d.sessions[id]
	if !ok || !s.Status.Expirable() || !s.ExpiresAt.Before(now) {
		return false, nil
	}
	s.Status = models.SessionExpired
	s.FailureReason = "session expired"
	s.UpdatedAt = t.now()
	t.d.sessions[id] = s
	return true, nil
}

// ---------- connectors ----------

func (t *tx) GetConnector(_ context.Context, id string) (models.Connector, error) {
	c, ok := t.d.connectors[id]
	if !ok {
		return models.Connector{}, repository.ErrNotFound
	}
	return c, nil
}

func (t *tx) GetConnectorByToken(ctx context.Context, token string) (models.Connector, error) {
	id, ok := t.d.connectorToken[token]
	if !ok {
		return models.Connector{}, repository.ErrNotFound
	}
	return t.GetConnector(ctx, id)
}

func (t *tx) ReserveConnector(_ context.Context, id string) (bool, error) {
	c, ok := t.d.connectors[id]
	if !ok || !c.Active || c.AvailableCapacity <= 0 {
		return false, nil
	}
	c.AvailableCapacity--
	c.UpdatedAt = t.now()
	t.d.connectors[id] = c
	return true, nil
}

func (t *tx) ReleaseConnector(_ context.Context, id string) error {
	c, ok := t.d.connectors[id]
	if !ok {
		return nil
	}
	if c.AvailableCapacity < c.Capacity {
		c.AvailableCapacity++
	}
	c.UpdatedAt = t.now()
	t.d.connectors[id] = c
	return nil
}

func (t *tx) CreateChargingRecord(_ context.Context, r models.ChargingRecord) (models.ChargingRecord, error) {
	if _, dup := t.d.chargingByS[r.SessionID]; dup {
		return models.ChargingRecord{}, repository.ErrConflict
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	t.d.charging[r.ID] = r
	t.d.chargingByS[r.SessionID] = r.ID
	return r, nil
}

func (t *tx) GetChargingRecordBySession(_ context.Context, sessionID string) (models.ChargingRecord, error) {
	id, ok := t.d.chargingByS[sessionID]
	if !ok {
		return models.ChargingRecord{}, repository.ErrNotFound
	}
	return t.d.charging[id], nil
}

func (t *tx) UpdateChargingRecord(_ context.Context, r models.ChargingRecord) error {
	if _, ok := t.d.charging[r.ID]; !ok {
		return repository.ErrNotFound
	}
	t.d.charging[r.ID] = r
	return nil
}

// ---------- withdrawals ----------

func (t *tx) CreateWithdrawal(_ context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := t.now()
	w.CreatedAt, w.UpdatedAt = now, now
	t.d.withdrawals[w.ID] = w
	return w, nil
}

func (t *tx) GetWithdrawal(_ context.Context, id string) (models.WithdrawalRequest, error) {
	w, ok := t.d.withdrawals[id]
	if !ok {
		return models.WithdrawalRequest{}, repository.ErrNotFound
	}
	return w, nil
}

func (t *tx) LockWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return t.GetWithdrawal(ctx, id)
}

func (t *tx) UpdateWithdrawal(_ context.Context, w models.WithdrawalRequest) error {
	old, ok := t.d.withdrawals[w.ID]
	if !ok {
		return repository.ErrNotFound
	}
	old.Status = w.Status
	old.AdminNote = w.AdminNote
	old.RefundTransactionID = w.RefundTransactionID
	old.PayoutReference = w.PayoutReference
	old.PayoutClaimedAt = w.PayoutClaimedAt
	old.UpdatedAt = t.now()
	t.d.withdrawals[w.ID] = old
	return nil
}

func (t *tx) ListWithdrawals(_ context.Context, ownerID string, limit, offset int) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	for _, w := range t.d.withdrawals {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) GetPayoutMethod(_ context.Context, id string) (models.PayoutMethod, error) {
	m, ok := t.d.payouts[id]
	if !ok {
		return models.PayoutMethod{}, repository.ErrNotFound
	}
	return m, nil
}

func (t *tx) CreatePayoutMethod(_ context.Context, m models.PayoutMethod) (models.PayoutMethod, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = t.now()
	t.d.payouts[m.ID] = m
	return m, nil
}

// ---------- audit ----------

func (t *tx) CreateAuditLog(_ context.Context, l models.AuditLog) error {
	l.CreatedAt = t.now()
	t.d.audits = append(t.d.audits, l)
	return nil
}
