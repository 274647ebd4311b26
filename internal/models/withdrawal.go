package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	// WithdrawalPayingOut marks a payout hand-off in flight. The claim
	// lapses after the payout lease so a crashed hand-off can be retried.
	WithdrawalPayingOut WithdrawalStatus = "paying_out"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

type WithdrawalOutcome string

const (
	OutcomeApproved WithdrawalOutcome = "approved"
	OutcomeRejected WithdrawalOutcome = "rejected"
)

type PayoutKind string

const (
	PayoutMobileMoney PayoutKind = "mobile_money"
	PayoutBank        PayoutKind = "bank"
)

type PayoutMethod struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Kind      PayoutKind        `json:"kind"`
	Label     string            `json:"label"`
	Details   map[string]string `json:"details"`
	CreatedAt time.Time         `json:"created_at"`
}

// PayoutSnapshot is the payout method as it was when the request was made.
type PayoutSnapshot struct {
	MethodID string            `json:"method_id"`
	Kind     PayoutKind        `json:"kind"`
	Label    string            `json:"label"`
	Details  map[string]string `json:"details"`
}

func (m PayoutMethod) Snapshot() PayoutSnapshot {
	details := make(map[string]string, len(m.Details))
	for k, v := range m.Details {
		details[k] = v
	}
	return PayoutSnapshot{MethodID: m.ID, Kind: m.Kind, Label: m.Label, Details: details}
}

type WithdrawalRequest struct {
	ID                  string           `json:"id"`
	WalletID            string           `json:"wallet_id"`
	OwnerID             string           `json:"owner_id"`
	Amount              decimal.Decimal  `json:"amount"`
	Payout              PayoutSnapshot   `json:"payout"`
	Status              WithdrawalStatus `json:"status"`
	AdminNote           string           `json:"admin_note,omitempty"`
	TransactionID       string           `json:"transaction_id"`
	RefundTransactionID *string          `json:"refund_transaction_id,omitempty"`
	PayoutReference     *string          `json:"payout_reference,omitempty"`
	PayoutClaimedAt     *time.Time       `json:"payout_claimed_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}
