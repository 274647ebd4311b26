package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

func TestRetryableCodes(t *testing.T) {
	tests := []struct {
		code  string
		retry bool
	}{
		{"40001", true},
		{"40P01", true},
		{"55P03", true},
		{"23505", false},
		{"23514", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.retry, retryable(err))
		})
	}
	assert.False(t, retryable(errors.New("boom")))
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows), repository.ErrNotFound)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23505"}), repository.ErrConflict)
	other := errors.New("other")
	assert.Equal(t, other, mapErr(other))
}
