package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

const withdrawalCols = `id, wallet_id, owner_id, amount, payout, status, admin_note, transaction_id,
	refund_transaction_id, payout_reference, payout_claimed_at, created_at, updated_at`

func scanWithdrawal(row interface{ Scan(...any) error }) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.WalletID, &w.OwnerID, &w.Amount, &w.Payout, &w.Status, &w.AdminNote,
		&w.TransactionID, &w.RefundTransactionID, &w.PayoutReference, &w.PayoutClaimedAt, &w.CreatedAt, &w.UpdatedAt)
	return w, mapErr(err)
}

func (s *Store) CreateWithdrawal(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return scanWithdrawal(s.q.QueryRow(ctx,
		`INSERT INTO withdrawal_requests(id, wallet_id, owner_id, amount, payout, status, admin_note, transaction_id)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING `+withdrawalCols,
		w.ID, w.WalletID, w.OwnerID, w.Amount, w.Payout, w.Status, w.AdminNote, w.TransactionID))
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return scanWithdrawal(s.q.QueryRow(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id=$1`, id))
}

func (s *Store) LockWithdrawal(ctx context.Context, id string) (models.WithdrawalRequest, error) {
	return scanWithdrawal(s.q.QueryRow(ctx,
		`SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id=$1 FOR UPDATE`, id))
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w models.WithdrawalRequest) error {
	_, err := s.q.Exec(ctx,
		`UPDATE withdrawal_requests
		    SET status=$2, admin_note=$3, refund_transaction_id=$4, payout_reference=$5,
		        payout_claimed_at=$6, updated_at=now()
		  WHERE id=$1`,
		w.ID, w.Status, w.AdminNote, w.RefundTransactionID, w.PayoutReference, w.PayoutClaimedAt,
	)
	return mapErr(err)
}

func (s *Store) ListWithdrawals(ctx context.Context, ownerID string, limit, offset int) ([]models.WithdrawalRequest, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+withdrawalCols+` FROM withdrawal_requests
		  WHERE owner_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) GetPayoutMethod(ctx context.Context, id string) (models.PayoutMethod, error) {
	var m models.PayoutMethod
	err := s.q.QueryRow(ctx,
		`SELECT id, owner_id, kind, label, details, created_at FROM payout_methods WHERE id=$1`, id,
	).Scan(&m.ID, &m.OwnerID, &m.Kind, &m.Label, &m.Details, &m.CreatedAt)
	return m, mapErr(err)
}

func (s *Store) CreatePayoutMethod(ctx context.Context, m models.PayoutMethod) (models.PayoutMethod, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Details == nil {
		m.Details = map[string]string{}
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO payout_methods(id, owner_id, kind, label, details)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING created_at`,
		m.ID, m.OwnerID, m.Kind, m.Label, m.Details,
	).Scan(&m.CreatedAt)
	return m, mapErr(err)
}
