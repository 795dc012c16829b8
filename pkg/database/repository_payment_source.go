package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

// querier is satisfied by both *Client and *sql.Tx, letting every
// repository method run either standalone or inside a Store.RunSerializable
// callback.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PaymentSourceRepository persists PaymentSource rows.
type PaymentSourceRepository struct {
	db *Client
}

func (r *PaymentSourceRepository) Create(ctx context.Context, q querier, in domain.NewPaymentSource) (*domain.PaymentSource, error) {
	id := uuid.New()
	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_sources
			(id, network, smart_contract_address, cooldown_time_ms, fee_rate_permille,
			 fee_receiver_address, admin_wallet_1, admin_wallet_2, admin_wallet_3,
			 rpc_api_key, sync_in_progress, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,$11,$11)
	`, id, in.Network, in.SmartContractAddress, in.CooldownTimeMs, in.FeeRatePermille,
		in.FeeReceiverAddress, in.AdminWallets[0], in.AdminWallets[1], in.AdminWallets[2],
		in.RPCAPIKey, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicatePaymentSource, err)
		}
		return nil, fmt.Errorf("insert payment source: %w", err)
	}

	return &domain.PaymentSource{
		ID: id, Network: in.Network, SmartContractAddress: in.SmartContractAddress,
		CooldownTimeMs: in.CooldownTimeMs, FeeRatePermille: in.FeeRatePermille,
		FeeReceiverAddress: in.FeeReceiverAddress, AdminWallets: in.AdminWallets,
		RPCAPIKey: in.RPCAPIKey, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (r *PaymentSourceRepository) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSource, error) {
	row := r.db.QueryRowContext(ctx, paymentSourceSelect+" WHERE id = $1", id)
	return scanPaymentSource(row)
}

// FindActive returns non-deleted, non-sync-in-progress, non-disabled
// sources (4.1's find_payment_sources_active).
func (r *PaymentSourceRepository) FindActive(ctx context.Context) ([]*domain.PaymentSource, error) {
	rows, err := r.db.QueryContext(ctx, paymentSourceSelect+`
		WHERE deleted_at IS NULL
		  AND sync_in_progress = false
		  AND (disable_payment_at IS NULL OR disable_payment_at > now())
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query active payment sources: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentSource
	for rows.Next() {
		ps, err := scanPaymentSourceRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (r *PaymentSourceRepository) SetSyncInProgress(ctx context.Context, id uuid.UUID, inProgress bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE payment_sources SET sync_in_progress = $2, updated_at = now() WHERE id = $1`, id, inProgress)
	if err != nil {
		return fmt.Errorf("set sync_in_progress: %w", err)
	}
	return nil
}

const paymentSourceSelect = `
	SELECT id, network, smart_contract_address, cooldown_time_ms, fee_rate_permille,
	       fee_receiver_address, admin_wallet_1, admin_wallet_2, admin_wallet_3,
	       rpc_api_key, sync_in_progress, disable_payment_at, deleted_at, created_at, updated_at
	FROM payment_sources
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaymentSource(row *sql.Row) (*domain.PaymentSource, error) {
	ps, err := scanPaymentSourceInto(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return ps, err
}

func scanPaymentSourceRows(rows *sql.Rows) (*domain.PaymentSource, error) {
	return scanPaymentSourceInto(rows)
}

func scanPaymentSourceInto(s rowScanner) (*domain.PaymentSource, error) {
	var ps domain.PaymentSource
	var admin1, admin2, admin3 string
	err := s.Scan(&ps.ID, &ps.Network, &ps.SmartContractAddress, &ps.CooldownTimeMs, &ps.FeeRatePermille,
		&ps.FeeReceiverAddress, &admin1, &admin2, &admin3,
		&ps.RPCAPIKey, &ps.SyncInProgress, &ps.DisablePaymentAt, &ps.DeletedAt, &ps.CreatedAt, &ps.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan payment source: %w", err)
	}
	ps.AdminWallets = [3]string{admin1, admin2, admin3}
	return &ps, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "23505")
}
