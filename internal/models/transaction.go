package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxnPayment    TransactionType = "payment"
	TxnWithdrawal TransactionType = "withdrawal"
	TxnRefund     TransactionType = "refund"
	TxnDeposit    TransactionType = "deposit"
)

type TransactionStatus string

const (
	TxnPending    TransactionStatus = "pending"
	TxnProcessing TransactionStatus = "processing"
	TxnCompleted  TransactionStatus = "completed"
	TxnFailed     TransactionStatus = "failed"
	TxnCancelled  TransactionStatus = "cancelled"
	TxnRefunded   TransactionStatus = "refunded"
)

// Terminal reports whether no further reconciliation may change the status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TxnCompleted, TxnFailed, TxnCancelled, TxnRefunded:
		return true
	}
	return false
}

// CanTransition encodes the one-way status graph.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	switch s {
	case TxnPending:
		return to == TxnProcessing || to == TxnCompleted || to == TxnFailed || to == TxnCancelled
	case TxnProcessing:
		return to == TxnCompleted || to == TxnFailed || to == TxnCancelled
	case TxnCompleted:
		return to == TxnRefunded
	}
	return false
}

type Transaction struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"owner_id"`
	Type              TransactionType   `json:"type"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Reference         string            `json:"reference"`
	ExternalReference *string           `json:"external_reference,omitempty"`
	Description       string            `json:"description"`
	RawResponse       json.RawMessage   `json:"raw_response,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
