package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionCreated           SessionStatus = "created"
	SessionPaymentInitiated  SessionStatus = "payment_initiated"
	SessionPaymentCompleted  SessionStatus = "payment_completed"
	SessionChargingStarted   SessionStatus = "charging_started"
	SessionChargingCompleted SessionStatus = "charging_completed"
	SessionFailed            SessionStatus = "failed"
	SessionExpired           SessionStatus = "expired"
)

// Terminal reports whether the session can no longer move.
func (s SessionStatus) Terminal() bool {
	return s == SessionFailed || s == SessionExpired || s == SessionChargingCompleted
}

// Paid reports whether the session has reached payment_completed or beyond.
func (s SessionStatus) Paid() bool {
	return s == SessionPaymentCompleted || s == SessionChargingStarted || s == SessionChargingCompleted
}

// Expirable sessions are the ones the expiry sweep may touch.
func (s SessionStatus) Expirable() bool {
	return s == SessionCreated || s == SessionPaymentInitiated
}

type PaymentMode string

const (
	ModeFixedAmount    PaymentMode = "fixed_amount"
	ModeEnergyQuantity PaymentMode = "energy_quantity"
)

// Charge is what the user asked to pay for. It is either FixedAmount or
// EnergyQuantity.
type Charge interface {
	Mode() PaymentMode
	Quantity() decimal.Decimal
	Price(pricePerUnit decimal.Decimal) decimal.Decimal
	sealed()
}

type FixedAmount struct{ Amount decimal.Decimal }

func (c FixedAmount) Mode() PaymentMode                       { return ModeFixedAmount }
func (c FixedAmount) Quantity() decimal.Decimal               { return c.Amount }
func (c FixedAmount) Price(_ decimal.Decimal) decimal.Decimal { return c.Amount }
func (FixedAmount) sealed()                                   {}

type EnergyQuantity struct{ Units decimal.Decimal }

func (c EnergyQuantity) Mode() PaymentMode         { return ModeEnergyQuantity }
func (c EnergyQuantity) Quantity() decimal.Decimal { return c.Units }
func (c EnergyQuantity) Price(pricePerUnit decimal.Decimal) decimal.Decimal {
	return c.Units.Mul(pricePerUnit)
}
func (EnergyQuantity) sealed() {}

// NewCharge builds the variant for a persisted or requested mode.
func NewCharge(mode PaymentMode, quantity decimal.Decimal) (Charge, bool) {
	switch mode {
	case ModeFixedAmount:
		return FixedAmount{Amount: quantity}, true
	case ModeEnergyQuantity:
		return EnergyQuantity{Units: quantity}, true
	}
	return nil, false
}

type QRPaymentSession struct {
	ID                string          `json:"id"`
	Token             string          `json:"token"`
	UserID            string          `json:"user_id"`
	ConnectorID       string          `json:"connector_id"`
	Mode              PaymentMode     `json:"mode"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	CalculatedAmount  decimal.Decimal `json:"calculated_amount"`
	Currency          string          `json:"currency"`
	TransactionID     *string         `json:"transaction_id,omitempty"`
	Contact           string          `json:"contact"`
	Status            SessionStatus   `json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	LatePayment       bool            `json:"late_payment"`
	ExpiresAt         time.Time       `json:"expires_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Charge returns the tagged payment variant of the session.
func (s QRPaymentSession) Charge() Charge {
	c, _ := NewCharge(s.Mode, s.RequestedQuantity)
	return c
}
