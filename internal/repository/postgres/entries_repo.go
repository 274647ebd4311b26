package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

const entryCols = `id, seq, wallet_id, transaction_id, direction, amount, balance_before, balance_after, memo, created_at`

func scanEntry(row interface{ Scan(...any) error }) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.Seq, &e.WalletID, &e.TransactionID, &e.Direction,
		&e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.Memo, &e.CreatedAt)
	return e, mapErr(err)
}

func (s *Store) FindEntry(ctx context.Context, walletID, transactionID string, dir models.EntryDirection) (models.LedgerEntry, error) {
	return scanEntry(s.q.QueryRow(ctx,
		`SELECT `+entryCols+` FROM ledger_entries
		  WHERE wallet_id=$1 AND transaction_id=$2 AND direction=$3`,
		walletID, transactionID, dir))
}

func (s *Store) InsertEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return scanEntry(s.q.QueryRow(ctx,
		`INSERT INTO ledger_entries(id, wallet_id, transaction_id, direction, amount, balance_before, balance_after, memo)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING `+entryCols,
		e.ID, e.WalletID, e.TransactionID, e.Direction, e.Amount, e.BalanceBefore, e.BalanceAfter, e.Memo))
}

func (s *Store) ListEntries(ctx context.Context, walletID string) ([]models.LedgerEntry, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE wallet_id=$1 ORDER BY seq`, walletID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
