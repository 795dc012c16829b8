package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

// TransactionRepository persists submitted chain transactions.
type TransactionRepository struct {
	db *Client
}

const transactionSelect = `SELECT uuid, tx_hash, status, blocks_wallet_id, created_at, updated_at FROM transactions`

// Create inserts a new Pending transaction with an empty tx hash — the
// handler fills TxHash in after ChainClient.Submit succeeds (4.7).
func (r *TransactionRepository) Create(ctx context.Context, q querier, blocksWalletID uuid.NullUUID) (*domain.Transaction, error) {
	id := uuid.New()
	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (uuid, tx_hash, status, blocks_wallet_id, created_at, updated_at)
		VALUES ($1, '', $2, $3, $4, $4)
	`, id, domain.TransactionPending, blocksWalletID, now)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return &domain.Transaction{ID: id, Status: domain.TransactionPending, BlocksWalletID: blocksWalletID, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *TransactionRepository) Get(ctx context.Context, q querier, id uuid.UUID) (*domain.Transaction, error) {
	row := q.QueryRowContext(ctx, transactionSelect+" WHERE uuid = $1", id)
	return scanTransaction(row)
}

// SetTxHash records the chain-assigned hash once ChainClient.Submit returns.
func (r *TransactionRepository) SetTxHash(ctx context.Context, q querier, id uuid.UUID, txHash string) error {
	_, err := q.ExecContext(ctx, `UPDATE transactions SET tx_hash = $2, updated_at = now() WHERE uuid = $1`, id, txHash)
	if err != nil {
		return fmt.Errorf("set tx hash: %w", err)
	}
	return nil
}

// SetStatus transitions a transaction to Confirmed or Failed.
func (r *TransactionRepository) SetStatus(ctx context.Context, q querier, id uuid.UUID, status domain.TransactionStatus) error {
	_, err := q.ExecContext(ctx, `UPDATE transactions SET status = $2, updated_at = now() WHERE uuid = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set transaction status: %w", err)
	}
	return nil
}

// FindStuckPending returns Pending transactions older than cutoff, whose
// hash the ChainMonitor could not locate on-chain (4.8's TxDropped check).
func (r *TransactionRepository) FindStuckPending(ctx context.Context, q querier, cutoff time.Time) ([]*domain.Transaction, error) {
	rows, err := q.QueryContext(ctx, transactionSelect+`
		WHERE status = $1 AND created_at < $2 AND tx_hash != ''
		ORDER BY created_at
	`, domain.TransactionPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stuck pending transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransactionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(row *sql.Row) (*domain.Transaction, error) {
	t, err := scanTransactionInto(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

func scanTransactionRows(rows *sql.Rows) (*domain.Transaction, error) { return scanTransactionInto(rows) }

func scanTransactionInto(s rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var blocksWalletID uuid.NullUUID
	err := s.Scan(&t.ID, &t.TxHash, &t.Status, &blocksWalletID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.BlocksWalletID = blocksWalletID
	return &t, nil
}
