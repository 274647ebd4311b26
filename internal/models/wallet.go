package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type EntryDirection string

const (
	EntryCredit EntryDirection = "credit"
	EntryDebit  EntryDirection = "debit"
)

// LedgerEntry is immutable once written. BalanceAfter of one entry equals
// BalanceBefore of the next entry on the same wallet.
type LedgerEntry struct {
	ID            string          `json:"id"`
	WalletID      string          `json:"wallet_id"`
	TransactionID string          `json:"transaction_id"`
	Direction     EntryDirection  `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Memo          string          `json:"memo"`
	Seq           int64           `json:"seq"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the entry amount as a balance delta.
func (e LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
