package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

// RequestRepository persists both PaymentRequest and PurchaseRequest rows —
// the two are symmetrical (3) and share one table discriminated by Kind.
type RequestRepository struct {
	db *Client
}

const requestSelect = `
	SELECT id, kind, payment_source_id, blockchain_identifier, input_hash, result_hash, metadata,
	       pay_by_time, submit_result_time, unlock_time, external_dispute_unlock_time,
	       seller_cool_down_time, buyer_cool_down_time,
	       collateral_return_lovelace, total_buyer_cardano_fees, total_seller_cardano_fees,
	       smart_contract_wallet_id, seller_wallet_id, buyer_wallet_id, current_transaction_id,
	       on_chain_state, requested_action, error_type, error_note,
	       created_at, updated_at
	FROM requests
`

// Create inserts a new request in its initial NextAction state (3's
// lifecycle step 1). Funds rows are inserted alongside in the same
// transaction.
func (r *RequestRepository) Create(ctx context.Context, q querier, in domain.NewRequest, initialAction domain.RequestedAction) (*domain.Request, error) {
	id := uuid.New()
	now := time.Now()

	var metadata sql.NullString
	if in.Metadata != "" {
		metadata = sql.NullString{String: in.Metadata, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO requests (
			id, kind, payment_source_id, blockchain_identifier, input_hash, metadata,
			pay_by_time, submit_result_time, unlock_time, external_dispute_unlock_time,
			on_chain_state, requested_action, error_type, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'',$13,$13)
	`, id, in.Kind, in.PaymentSourceID, in.BlockchainIdentifier, in.InputHash, metadata,
		in.PayByTime, in.SubmitResultTime, in.UnlockTime, in.ExternalDisputeUnlockTime,
		domain.StateNone, initialAction, now)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	for _, f := range in.Funds {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO request_funds (request_id, unit, amount) VALUES ($1,$2,$3)
		`, id, f.Unit, f.Amount); err != nil {
			return nil, fmt.Errorf("insert request fund: %w", err)
		}
	}

	return r.Get(ctx, q, id)
}

func (r *RequestRepository) Get(ctx context.Context, q querier, id uuid.UUID) (*domain.Request, error) {
	row := q.QueryRowContext(ctx, requestSelect+" WHERE id = $1", id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadFunds(ctx, q, req); err != nil {
		return nil, err
	}
	return req, nil
}

// FindEligible implements the Selector query of 4.5: requests of a source's
// leased wallet whose action matches, excluding parked requests
// (error_type = ''). It does not filter on cooldown; the Selector drops
// requests whose counterparty cooldown has not expired after this query.
func (r *RequestRepository) FindEligible(ctx context.Context, q querier, sourceID, walletID uuid.UUID, action domain.RequestedAction, now time.Time, limit int) ([]*domain.Request, error) {
	rows, err := q.QueryContext(ctx, requestSelect+`
		WHERE payment_source_id = $1
		  AND smart_contract_wallet_id = $2
		  AND requested_action = $3
		  AND error_type = ''
		ORDER BY created_at
		LIMIT $4
	`, sourceID, walletID, action, limit)
	if err != nil {
		return nil, fmt.Errorf("query eligible requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, req := range out {
		if err := r.loadFunds(ctx, q, req); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindEligibleUnassigned returns requests matching action that have not yet
// been assigned a smart-contract wallet — the FundsLockingRequested case,
// where the Selector still must lease a wallet before a handler can act.
func (r *RequestRepository) FindEligibleUnassigned(ctx context.Context, q querier, sourceID uuid.UUID, action domain.RequestedAction, limit int) ([]*domain.Request, error) {
	rows, err := q.QueryContext(ctx, requestSelect+`
		WHERE payment_source_id = $1
		  AND smart_contract_wallet_id IS NULL
		  AND requested_action = $2
		  AND error_type = ''
		ORDER BY created_at
		LIMIT $3
	`, sourceID, action, limit)
	if err != nil {
		return nil, fmt.Errorf("query eligible unassigned requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, req := range out {
		if err := r.loadFunds(ctx, q, req); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindPendingWithCurrentTx returns a source's requests that have an
// in-flight current transaction — the set ChainMonitor reconciles against
// the chain each tick (4.8).
func (r *RequestRepository) FindPendingWithCurrentTx(ctx context.Context, q querier, sourceID uuid.UUID) ([]*domain.Request, error) {
	rows, err := q.QueryContext(ctx, requestSelect+`
		WHERE payment_source_id = $1 AND current_transaction_id IS NOT NULL
		ORDER BY created_at
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query requests with current transaction: %w", err)
	}
	defer rows.Close()

	var out []*domain.Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, req := range out {
		if err := r.loadFunds(ctx, q, req); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindByCurrentTransaction looks up the request currently referencing txID,
// for ChainMonitor's stuck-transaction handling (4.8 step 3), which discovers
// dropped transactions from the Transactions side and must find the request
// to park.
func (r *RequestRepository) FindByCurrentTransaction(ctx context.Context, q querier, txID uuid.UUID) (*domain.Request, error) {
	row := q.QueryRowContext(ctx, requestSelect+" WHERE current_transaction_id = $1", txID)
	req, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadFunds(ctx, q, req); err != nil {
		return nil, err
	}
	return req, nil
}

// AttachWallet assigns the leased smart-contract wallet to a request (4.5
// step 4), inside the same serializable transaction as the lease.
func (r *RequestRepository) AttachWallet(ctx context.Context, q querier, requestID, walletID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `UPDATE requests SET smart_contract_wallet_id = $2, updated_at = now() WHERE id = $1`, requestID, walletID)
	if err != nil {
		return fmt.Errorf("attach wallet: %w", err)
	}
	return nil
}

// AttachCounterpartyWallets records the buyer/seller WalletBase references.
func (r *RequestRepository) AttachCounterpartyWallets(ctx context.Context, q querier, requestID uuid.UUID, sellerWalletID, buyerWalletID uuid.NullUUID) error {
	_, err := q.ExecContext(ctx, `
		UPDATE requests SET seller_wallet_id = $2, buyer_wallet_id = $3, updated_at = now() WHERE id = $1
	`, requestID, sellerWalletID, buyerWalletID)
	if err != nil {
		return fmt.Errorf("attach counterparty wallets: %w", err)
	}
	return nil
}

// BeginTransition implements the "in a single Store transaction" step of
// 4.7: advances NextAction to the Initiated/Pending state, attaches a new
// CurrentTransaction, and archives the prior one into history.
func (r *RequestRepository) BeginTransition(ctx context.Context, q querier, requestID uuid.UUID, nextAction domain.RequestedAction, newTxID uuid.UUID) error {
	req, err := r.Get(ctx, q, requestID)
	if err != nil {
		return err
	}

	if req.CurrentTransactionID.Valid {
		seq, err := r.nextHistorySequence(ctx, q, requestID)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO transaction_history (request_id, transaction_id, sequence) VALUES ($1,$2,$3)
		`, requestID, req.CurrentTransactionID.UUID, seq); err != nil {
			return fmt.Errorf("archive current transaction: %w", err)
		}
	}

	_, err = q.ExecContext(ctx, `
		UPDATE requests SET requested_action = $2, current_transaction_id = $3, updated_at = now() WHERE id = $1
	`, requestID, nextAction, newTxID)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	return nil
}

func (r *RequestRepository) nextHistorySequence(ctx context.Context, q querier, requestID uuid.UUID) (int, error) {
	var max sql.NullInt64
	row := q.QueryRowContext(ctx, `SELECT MAX(sequence) FROM transaction_history WHERE request_id = $1`, requestID)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("compute next history sequence: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// SetOnChainState records the decoded datum state observed by ChainMonitor
// (4.8.2b).
func (r *RequestRepository) SetOnChainState(ctx context.Context, q querier, requestID uuid.UUID, state domain.OnChainState) error {
	_, err := q.ExecContext(ctx, `UPDATE requests SET on_chain_state = $2, updated_at = now() WHERE id = $1`, requestID, state)
	if err != nil {
		return fmt.Errorf("set on-chain state: %w", err)
	}
	return nil
}

// SetNextAction advances the engine-internal intent for a request. Only
// requested_action changes; the error fields are left as they are.
func (r *RequestRepository) SetNextAction(ctx context.Context, q querier, requestID uuid.UUID, action domain.RequestedAction) error {
	_, err := q.ExecContext(ctx, `UPDATE requests SET requested_action = $2, updated_at = now() WHERE id = $1`, requestID, action)
	if err != nil {
		return fmt.Errorf("set next action: %w", err)
	}
	return nil
}

// SetResultHash records a SubmitResult intent's result hash ahead of the
// handler picking it up.
func (r *RequestRepository) SetResultHash(ctx context.Context, q querier, requestID uuid.UUID, resultHash string) error {
	_, err := q.ExecContext(ctx, `UPDATE requests SET result_hash = $2, updated_at = now() WHERE id = $1`, requestID, resultHash)
	if err != nil {
		return fmt.Errorf("set result hash: %w", err)
	}
	return nil
}

// Park sets ErrorType/ErrorNote, making the request invisible to the
// Selector until an operator clears it (7, invariant 5).
func (r *RequestRepository) Park(ctx context.Context, q querier, requestID uuid.UUID, errType domain.ErrorType, note string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE requests SET error_type = $2, error_note = $3, updated_at = now() WHERE id = $1
	`, requestID, errType, note)
	if err != nil {
		return fmt.Errorf("park request: %w", err)
	}
	return nil
}

// Unpark clears ErrorType/ErrorNote so the Selector considers the request
// again, per the external admin surface's clearing operation (7).
func (r *RequestRepository) Unpark(ctx context.Context, q querier, requestID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		UPDATE requests SET error_type = '', error_note = NULL, updated_at = now() WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("unpark request: %w", err)
	}
	return nil
}

// SetCooldown updates the acting party's cooldown instant (4.7.3).
func (r *RequestRepository) SetCooldown(ctx context.Context, q querier, requestID uuid.UUID, actingParty domain.WalletType, newCooldown int64) error {
	col := "buyer_cool_down_time"
	if actingParty == domain.WalletSelling {
		col = "seller_cool_down_time"
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE requests SET %s = $2, updated_at = now() WHERE id = $1`, col), requestID, newCooldown)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

func (r *RequestRepository) loadFunds(ctx context.Context, q querier, req *domain.Request) error {
	rows, err := q.QueryContext(ctx, `SELECT unit, amount FROM request_funds WHERE request_id = $1`, req.ID)
	if err != nil {
		return fmt.Errorf("query request funds: %w", err)
	}
	defer rows.Close()

	req.Funds = nil
	for rows.Next() {
		var f domain.Fund
		if err := rows.Scan(&f.Unit, &f.Amount); err != nil {
			return fmt.Errorf("scan request fund: %w", err)
		}
		req.Funds = append(req.Funds, f)
	}
	return rows.Err()
}

func scanRequest(row *sql.Row) (*domain.Request, error) {
	req, err := scanRequestInto(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return req, err
}

func scanRequestRows(rows *sql.Rows) (*domain.Request, error) { return scanRequestInto(rows) }

func scanRequestInto(s rowScanner) (*domain.Request, error) {
	var req domain.Request
	err := s.Scan(
		&req.ID, &req.Kind, &req.PaymentSourceID, &req.BlockchainIdentifier, &req.InputHash, &req.ResultHash, &req.Metadata,
		&req.PayByTime, &req.SubmitResultTime, &req.UnlockTime, &req.ExternalDisputeUnlockTime,
		&req.SellerCoolDownTime, &req.BuyerCoolDownTime,
		&req.CollateralReturnLovelace, &req.TotalBuyerCardanoFees, &req.TotalSellerCardanoFees,
		&req.SmartContractWalletID, &req.SellerWalletID, &req.BuyerWalletID, &req.CurrentTransactionID,
		&req.OnChainState, &req.RequestedAction, &req.ErrorType, &req.ErrorNote,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan request: %w", err)
	}
	return &req, nil
}
