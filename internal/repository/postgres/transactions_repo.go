package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

const txnCols = `id, owner_id, type, status, amount, currency, reference, external_reference,
	description, raw_response, failure_reason, completed_at, created_at, updated_at`

func scanTxn(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var t models.Transaction
	var raw []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.Type, &t.Status, &t.Amount, &t.Currency, &t.Reference,
		&t.ExternalReference, &t.Description, &raw, &t.FailureReason, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Transaction{}, mapErr(err)
	}
	t.RawResponse = raw
	return t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return scanTxn(s.q.QueryRow(ctx,
		`INSERT INTO transactions(id, owner_id, type, status, amount, currency, reference, external_reference,
		                          description, raw_response, failure_reason, completed_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING `+txnCols,
		t.ID, t.OwnerID, t.Type, t.Status, t.Amount, t.Currency, t.Reference, t.ExternalReference,
		t.Description, rawOrNil(t.RawResponse), t.FailureReason, t.CompletedAt))
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return scanTxn(s.q.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE id=$1`, id))
}

func (s *Store) FindTransactionByReference(ctx context.Context, ref string) (models.Transaction, error) {
	return scanTxn(s.q.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE reference=$1`, ref))
}

func (s *Store) FindTransactionByExternalReference(ctx context.Context, ext string) (models.Transaction, error) {
	return scanTxn(s.q.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE external_reference=$1`, ext))
}

func (s *Store) LockTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return scanTxn(s.q.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) UpdateTransaction(ctx context.Context, t models.Transaction) error {
	_, err := s.q.Exec(ctx,
		`UPDATE transactions
		    SET status=$2, external_reference=$3, raw_response=$4, failure_reason=$5,
		        completed_at=$6, updated_at=now()
		  WHERE id=$1`,
		t.ID, t.Status, t.ExternalReference, rawOrNil(t.RawResponse), t.FailureReason, t.CompletedAt,
	)
	return mapErr(err)
}

func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
