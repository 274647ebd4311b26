package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

type Wallets interface {
	GetWallet(ctx context.Context, ownerID string) (models.Wallet, error)
	// LockWallet returns the owner's wallet, creating it with a zero balance if
	// needed, and holds an exclusive lock on it until the unit of work ends.
	LockWallet(ctx context.Context, ownerID, currency string) (models.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error
}

type LedgerEntries interface {
	FindEntry(ctx context.Context, walletID, transactionID string, dir models.EntryDirection) (models.LedgerEntry, error)
	InsertEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error)
	// ListEntries returns entries in creation order.
	ListEntries(ctx context.Context, walletID string) ([]models.LedgerEntry, error)
}

type Transactions interface {
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	FindTransactionByReference(ctx context.Context, ref string) (models.Transaction, error)
	FindTransactionByExternalReference(ctx context.Context, ext string) (models.Transaction, error)
	LockTransaction(ctx context.Context, id string) (models.Transaction, error)
	UpdateTransaction(ctx context.Context, t models.Transaction) error
}

type Sessions interface {
	CreateSession(ctx context.Context, s models.QRPaymentSession) (models.QRPaymentSession, error)
	GetSession(ctx context.Context, id string) (models.QRPaymentSession, error)
	GetSessionByToken(ctx context.Context, token string) (models.QRPaymentSession, error)
	GetSessionByTransaction(ctx context.Context, transactionID string) (models.QRPaymentSession, error)
	LockSession(ctx context.Context, id string) (models.QRPaymentSession, error)
	UpdateSession(ctx context.Context, s models.QRPaymentSession) error
	// ListExpiredSessions returns expirable sessions whose expiry is before now.
	ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]models.QRPaymentSession, error)
	// ExpireSession flips a single session to expired if it is still
	// expirable at now. It reports whether the row changed.
	ExpireSession(ctx context.Context, id string, now time.Time) (bool, error)
}

type Connectors interface {
	GetConnector(ctx context.Context, id string) (models.Connector, error)
	GetConnectorByToken(ctx context.Context, token string) (models.Connector, error)
	// ReserveConnector takes one unit of available capacity. It returns false
	// when nothing was available.
	ReserveConnector(ctx context.Context, id string) (bool, error)
	ReleaseConnector(ctx context.Context, id string) error
	CreateChargingRecord(ctx context.Context, r models.ChargingRecord) (models.ChargingRecord, error)
	GetChargingRecordBySession(ctx context.Context, sessionID string) (models.ChargingRecord, error)
	UpdateChargingRecord(ctx context.Context, r models.ChargingRecord) error
}

type Withdrawals interface {
	CreateWithdrawal(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error)
	LockWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w models.WithdrawalRequest) error
	ListWithdrawals(ctx context.Context, ownerID string, limit, offset int) ([]models.WithdrawalRequest, error)
	GetPayoutMethod(ctx context.Context, id string) (models.PayoutMethod, error)
	CreatePayoutMethod(ctx context.Context, m models.PayoutMethod) (models.PayoutMethod, error)
}

type AuditLogs interface {
	CreateAuditLog(ctx context.Context, l models.AuditLog) error
}

// Store is the single durable store behind every service.
type Store interface {
	Wallets
	LedgerEntries
	Transactions
	Sessions
	Connectors
	Withdrawals
	AuditLogs

	// WithTx runs fn as one atomic unit of work. Every call made through the
	// Store handed to fn takes part in it; nested WithTx calls join the
	// outer unit.
	WithTx(ctx context.Context, fn func(Store) error) error
}
