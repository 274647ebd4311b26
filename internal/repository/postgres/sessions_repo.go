package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

const sessionCols = `id, token, user_id, connector_id, mode, requested_quantity, calculated_amount, currency,
	transaction_id, contact, status, failure_reason, late_payment, expires_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (models.QRPaymentSession, error) {
	var s models.QRPaymentSession
	err := row.Scan(&s.ID, &s.Token, &s.UserID, &s.ConnectorID, &s.Mode, &s.RequestedQuantity,
		&s.CalculatedAmount, &s.Currency, &s.TransactionID, &s.Contact, &s.Status, &s.FailureReason,
		&s.LatePayment, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	return s, mapErr(err)
}

func (s *Store) CreateSession(ctx context.Context, qs models.QRPaymentSession) (models.QRPaymentSession, error) {
	if qs.ID == "" {
		qs.ID = uuid.NewString()
	}
	return scanSession(s.q.QueryRow(ctx,
		`INSERT INTO qr_payment_sessions(id, token, user_id, connector_id, mode, requested_quantity,
		        calculated_amount, currency, transaction_id, contact, status, expires_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING `+sessionCols,
		qs.ID, qs.Token, qs.UserID, qs.ConnectorID, qs.Mode, qs.RequestedQuantity,
		qs.CalculatedAmount, qs.Currency, qs.TransactionID, qs.Contact, qs.Status, qs.ExpiresAt))
}

func (s *Store) GetSession(ctx context.Context, id string) (models.QRPaymentSession, error) {
	return scanSession(s.q.QueryRow(ctx, `SELECT `+sessionCols+` FROM qr_payment_sessions WHERE id=$1`, id))
}

func (s *Store) GetSessionByToken(ctx context.Context, token string) (models.QRPaymentSession, error) {
	return scanSession(s.q.QueryRow(ctx, `SELECT `+sessionCols+` FROM qr_payment_sessions WHERE token=$1`, token))
}

func (s *Store) GetSessionByTransaction(ctx context.Context, transactionID string) (models.QRPaymentSession, error) {
	return scanSession(s.q.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM qr_payment_sessions WHERE transaction_id=$1`, transactionID))
}

func (s *Store) LockSession(ctx context.Context, id string) (models.QRPaymentSession, error) {
	return scanSession(s.q.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM qr_payment_sessions WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) UpdateSession(ctx context.Context, qs models.QRPaymentSession) error {
	_, err := s.q.Exec(ctx,
		`UPDATE qr_payment_sessions
		    SET transaction_id=$2, status=$3, failure_reason=$4, late_payment=$5, updated_at=now()
		  WHERE id=$1`,
		qs.ID, qs.TransactionID, qs.Status, qs.FailureReason, qs.LatePayment,
	)
	return mapErr(err)
}

func (s *Store) ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]models.QRPaymentSession, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+sessionCols+` FROM qr_payment_sessions
		  WHERE status IN ('created','payment_initiated') AND expires_at < $1
		  ORDER BY expires_at
		  LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.QRPaymentSession
	for rows.Next() {
		qs, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qs)
	}
	return out, rows.Err()
}

// ExpireSession is a single guarded UPDATE, so the sweeper never waits on a
// row lock held by reconciliation: SKIP LOCKED leaves contended rows for the
// next sweep.
func (s *Store) ExpireSession(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE qr_payment_sessions
		    SET status='expired', failure_reason='session expired', updated_at=now()
		  WHERE id = (
		        SELECT id FROM qr_payment_sessions
		         WHERE id=$1 AND status IN ('created','payment_initiated') AND expires_at < $2
		         FOR UPDATE SKIP LOCKED)`,
		id, now,
	)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}
