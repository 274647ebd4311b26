package services

import (
	"errors"

	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrConnectorUnavailable = errors.New("connector unavailable")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrInvalidState         = errors.New("invalid state transition")
	// ErrDuplicateIgnored reports an idempotent no-op. Callers log it and
	// carry on; it is never surfaced to clients as a failure.
	ErrDuplicateIgnored   = errors.New("duplicate ignored")
	ErrGatewayUnavailable = gateway.ErrUnavailable
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrForbidden          = errors.New("forbidden")
	ErrLedgerMismatch     = errors.New("ledger replay mismatch")
	ErrPayoutInProgress   = errors.New("payout already in progress")
	ErrNotFound           = repository.ErrNotFound
)
