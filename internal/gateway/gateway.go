// Package gateway holds the contract every payment gateway adapter
// satisfies, plus an HTTP adapter and an in-process sandbox.
package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

// ErrUnavailable marks transient gateway failures; callers may retry.
var ErrUnavailable = errors.New("payment gateway unavailable")

type PaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Contact     string          `json:"contact"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	CallbackURL string          `json:"callback_url,omitempty"`
}

type Checkout struct {
	CheckoutURL       string `json:"checkout_url"`
	ExternalReference string `json:"external_reference,omitempty"`
}

type PaymentState string

const (
	StatePending PaymentState = "pending"
	StateSuccess PaymentState = "success"
	StateFailed  PaymentState = "failed"
)

type Status struct {
	Reference         string          `json:"reference"`
	ExternalReference string          `json:"external_reference,omitempty"`
	State             PaymentState    `json:"state"`
	Raw               json.RawMessage `json:"-"`
}

type PayoutInstruction struct {
	Reference string                `json:"reference"`
	Amount    decimal.Decimal       `json:"amount"`
	Currency  string                `json:"currency"`
	Method    models.PayoutSnapshot `json:"method"`
}

type Gateway interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (Checkout, error)
	PaymentStatus(ctx context.Context, reference string) (Status, error)
	SendPayout(ctx context.Context, in PayoutInstruction) (externalReference string, err error)
}
