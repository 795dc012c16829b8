package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

// HotWalletRepository persists service-custodied signing wallets.
type HotWalletRepository struct {
	db *Client
}

const hotWalletSelect = `
	SELECT id, payment_source_id, type, address, vkey, encrypted_seed,
	       locked_at, pending_transaction_id, deleted_at, created_at, updated_at
	FROM hot_wallets
`

func (r *HotWalletRepository) Create(ctx context.Context, q querier, in domain.NewHotWallet) (*domain.HotWallet, error) {
	id := uuid.New()
	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO hot_wallets (id, payment_source_id, type, address, vkey, encrypted_seed, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, id, in.PaymentSourceID, in.Type, in.Address, in.Vkey, in.EncryptedSeed, now)
	if err != nil {
		return nil, fmt.Errorf("insert hot wallet: %w", err)
	}
	return &domain.HotWallet{
		ID: id, PaymentSourceID: in.PaymentSourceID, Type: in.Type, Address: in.Address,
		Vkey: in.Vkey, EncryptedSeed: in.EncryptedSeed, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (r *HotWalletRepository) Get(ctx context.Context, q querier, id uuid.UUID) (*domain.HotWallet, error) {
	row := q.QueryRowContext(ctx, hotWalletSelect+" WHERE id = $1", id)
	w, err := scanHotWallet(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return w, err
}

// FindUnleased lists a payment source's non-deleted, unleased wallets of the
// given type — the candidate pool WalletLocker.Acquire picks from (4.5.2).
func (r *HotWalletRepository) FindUnleased(ctx context.Context, q querier, sourceID uuid.UUID, walletType domain.WalletType) ([]*domain.HotWallet, error) {
	rows, err := q.QueryContext(ctx, hotWalletSelect+`
		WHERE payment_source_id = $1 AND type = $2
		  AND locked_at IS NULL AND pending_transaction_id IS NULL AND deleted_at IS NULL
		ORDER BY id
	`, sourceID, walletType)
	if err != nil {
		return nil, fmt.Errorf("query unleased wallets: %w", err)
	}
	defer rows.Close()

	var out []*domain.HotWallet
	for rows.Next() {
		w, err := scanHotWalletRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Acquire implements WalletLocker.Acquire (4.4): an atomic conditional
// UPDATE that only succeeds against a row still satisfying the unleased
// predicate. Returns ErrWalletNotAvailable when another transaction won the
// race (RowsAffected == 0).
func (r *HotWalletRepository) Acquire(ctx context.Context, q querier, walletID uuid.UUID, now time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE hot_wallets
		SET locked_at = $2, updated_at = $2
		WHERE id = $1 AND locked_at IS NULL AND pending_transaction_id IS NULL AND deleted_at IS NULL
	`, walletID, now)
	if err != nil {
		return fmt.Errorf("acquire wallet lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire wallet lease: %w", err)
	}
	if n == 0 {
		return ErrWalletNotAvailable
	}
	return nil
}

// AttachPendingTransaction records the in-flight transaction on an already
// leased wallet, in the same serializable transaction that creates it
// (4.7's "mark the hot-wallet locked" step).
func (r *HotWalletRepository) AttachPendingTransaction(ctx context.Context, q querier, walletID, txID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `UPDATE hot_wallets SET pending_transaction_id = $2, updated_at = now() WHERE id = $1`, walletID, txID)
	if err != nil {
		return fmt.Errorf("attach pending transaction: %w", err)
	}
	return nil
}

// Release implements WalletLocker.Release (4.4): clears the lease once the
// referenced transaction has settled (Confirmed or Failed).
func (r *HotWalletRepository) Release(ctx context.Context, q querier, walletID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		UPDATE hot_wallets
		SET locked_at = NULL, pending_transaction_id = NULL, updated_at = now()
		WHERE id = $1
	`, walletID)
	if err != nil {
		return fmt.Errorf("release wallet lease: %w", err)
	}
	return nil
}

// FindStaleLeases returns wallets leased before cutoff, for the reaper
// (4.4). The reaper itself decides the disposition per referenced
// transaction status.
func (r *HotWalletRepository) FindStaleLeases(ctx context.Context, q querier, cutoff time.Time) ([]*domain.HotWallet, error) {
	rows, err := q.QueryContext(ctx, hotWalletSelect+`
		WHERE locked_at IS NOT NULL AND locked_at < $1 AND deleted_at IS NULL
		ORDER BY locked_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale leases: %w", err)
	}
	defer rows.Close()

	var out []*domain.HotWallet
	for rows.Next() {
		w, err := scanHotWalletRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanHotWallet(row *sql.Row) (*domain.HotWallet, error) { return scanHotWalletInto(row) }
func scanHotWalletRows(rows *sql.Rows) (*domain.HotWallet, error) { return scanHotWalletInto(rows) }

func scanHotWalletInto(s rowScanner) (*domain.HotWallet, error) {
	var w domain.HotWallet
	err := s.Scan(&w.ID, &w.PaymentSourceID, &w.Type, &w.Address, &w.Vkey, &w.EncryptedSeed,
		&w.LockedAt, &w.PendingTransactionID, &w.DeletedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan hot wallet: %w", err)
	}
	return &w, nil
}

// WalletBaseRepository persists counterparty (non-custodied) wallet
// descriptors.
type WalletBaseRepository struct {
	db *Client
}

const walletBaseSelect = `SELECT id, payment_source_id, address, vkey, type, created_at FROM wallet_bases`

// Get looks up a counterparty wallet descriptor by id, e.g. to resolve the
// buyer/seller vkey a request's datum must carry.
func (r *WalletBaseRepository) Get(ctx context.Context, q querier, id uuid.UUID) (*domain.WalletBase, error) {
	row := q.QueryRowContext(ctx, walletBaseSelect+" WHERE id = $1", id)
	return scanWalletBase(row)
}

// FindOrCreate implements the compound-unique lookup of 4.1:
// (paymentSourceId, walletVkey, walletAddress, type).
func (r *WalletBaseRepository) FindOrCreate(ctx context.Context, q querier, sourceID uuid.UUID, address, vkey string, walletType domain.WalletType) (*domain.WalletBase, error) {
	row := q.QueryRowContext(ctx, walletBaseSelect+`
		WHERE payment_source_id = $1 AND vkey = $2 AND address = $3 AND type = $4
	`, sourceID, vkey, address, walletType)

	wb, err := scanWalletBase(row)
	if err == nil {
		return wb, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	id := uuid.New()
	now := time.Now()
	_, err = q.ExecContext(ctx, `
		INSERT INTO wallet_bases (id, payment_source_id, address, vkey, type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (payment_source_id, vkey, address, type) DO NOTHING
	`, id, sourceID, address, vkey, walletType, now)
	if err != nil {
		return nil, fmt.Errorf("insert wallet base: %w", err)
	}

	row = q.QueryRowContext(ctx, walletBaseSelect+`
		WHERE payment_source_id = $1 AND vkey = $2 AND address = $3 AND type = $4
	`, sourceID, vkey, address, walletType)
	return scanWalletBase(row)
}

func scanWalletBase(row *sql.Row) (*domain.WalletBase, error) {
	var wb domain.WalletBase
	err := row.Scan(&wb.ID, &wb.PaymentSourceID, &wb.Address, &wb.Vkey, &wb.Type, &wb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet base: %w", err)
	}
	return &wb, nil
}
