package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

const walletCols = `id, owner_id, balance, currency, active, created_at, updated_at`

func scanWallet(row interface{ Scan(...any) error }) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.Currency, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	return w, mapErr(err)
}

func (s *Store) GetWallet(ctx context.Context, ownerID string) (models.Wallet, error) {
	return scanWallet(s.q.QueryRow(ctx,
		`SELECT `+walletCols+` FROM wallets WHERE owner_id=$1`, ownerID))
}

func (s *Store) LockWallet(ctx context.Context, ownerID, currency string) (models.Wallet, error) {
	_, err := s.q.Exec(ctx,
		`INSERT INTO wallets(id, owner_id, balance, currency)
		 VALUES($1, $2, 0, $3)
		 ON CONFLICT (owner_id) DO NOTHING`,
		uuid.NewString(), ownerID, currency,
	)
	if err != nil {
		return models.Wallet{}, mapErr(err)
	}
	return scanWallet(s.q.QueryRow(ctx,
		`SELECT `+walletCols+` FROM wallets WHERE owner_id=$1 FOR UPDATE`, ownerID))
}

func (s *Store) UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error {
	_, err := s.q.Exec(ctx,
		`UPDATE wallets SET balance=$2, updated_at=now() WHERE id=$1`,
		walletID, balance,
	)
	return mapErr(err)
}
