package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Fund is a single (unit, amount) ledger value. Amount is lovelace-or-token
// denominated in the unit's smallest indivisible quantity, never a float.
type Fund struct {
	Unit   string `json:"unit" db:"unit"`
	Amount int64  `json:"amount" db:"amount"`
}

// PaymentSource is a configured escrow contract instance.
type PaymentSource struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	Network              Network      `json:"network" db:"network"`
	SmartContractAddress string       `json:"smartContractAddress" db:"smart_contract_address"`
	CooldownTimeMs        int64       `json:"cooldownTime" db:"cooldown_time_ms"`
	FeeRatePermille       int         `json:"feeRatePermille" db:"fee_rate_permille"`
	FeeReceiverAddress    string      `json:"feeReceiverAddress" db:"fee_receiver_address"`
	AdminWallets          [3]string   `json:"adminWallets" db:"-"`
	RPCAPIKey             string      `json:"-" db:"rpc_api_key"`
	SyncInProgress        bool        `json:"syncInProgress" db:"sync_in_progress"`
	DisablePaymentAt       sql.NullTime `json:"disablePaymentAt,omitempty" db:"disable_payment_at"`
	DeletedAt             sql.NullTime `json:"deletedAt,omitempty" db:"deleted_at"`
	CreatedAt             time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time   `json:"updatedAt" db:"updated_at"`
}

// IsActive reports whether this source is eligible to be scanned by the
// Selector: not soft-deleted, not mid-resync, and not administratively
// disabled.
func (p *PaymentSource) IsActive(now time.Time) bool {
	if p.DeletedAt.Valid || p.SyncInProgress {
		return false
	}
	if p.DisablePaymentAt.Valid && !p.DisablePaymentAt.Time.After(now) {
		return false
	}
	return true
}

// NewPaymentSource is the input shape for PaymentSource creation.
type NewPaymentSource struct {
	Network               Network
	SmartContractAddress  string
	CooldownTimeMs        int64
	FeeRatePermille       int
	FeeReceiverAddress    string
	AdminWallets          [3]string
	RPCAPIKey             string
}

// HotWallet is a service-custodied signing wallet leased for in-flight
// transactions.
type HotWallet struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	PaymentSourceID       uuid.UUID     `json:"paymentSourceId" db:"payment_source_id"`
	Type                 WalletType     `json:"type" db:"type"`
	Address              string         `json:"address" db:"address"`
	Vkey                 string         `json:"vkey" db:"vkey"`
	EncryptedSeed        []byte         `json:"-" db:"encrypted_seed"`
	LockedAt             sql.NullTime   `json:"lockedAt,omitempty" db:"locked_at"`
	PendingTransactionID uuid.NullUUID  `json:"pendingTransactionId,omitempty" db:"pending_transaction_id"`
	DeletedAt            sql.NullTime   `json:"deletedAt,omitempty" db:"deleted_at"`
	CreatedAt            time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time      `json:"updatedAt" db:"updated_at"`
}

// IsLeased reports whether this wallet is currently held by an in-flight
// transaction.
func (w *HotWallet) IsLeased() bool {
	return w.LockedAt.Valid
}

// NewHotWallet is the input shape for provisioning a hot wallet.
type NewHotWallet struct {
	PaymentSourceID uuid.UUID
	Type            WalletType
	Address         string
	Vkey            string
	EncryptedSeed   []byte
}

// WalletBase is a non-custodied counterparty wallet descriptor (buyer or
// seller).
type WalletBase struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	PaymentSourceID uuid.UUID  `json:"paymentSourceId" db:"payment_source_id"`
	Address         string     `json:"address" db:"address"`
	Vkey            string     `json:"vkey" db:"vkey"`
	Type            WalletType `json:"type" db:"type"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}

// Transaction records one submitted chain transaction, pending or settled.
type Transaction struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	TxHash         string            `json:"txHash" db:"tx_hash"`
	Status         TransactionStatus `json:"status" db:"status"`
	BlocksWalletID uuid.NullUUID     `json:"blocksWalletId,omitempty" db:"blocks_wallet_id"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time         `json:"updatedAt" db:"updated_at"`
}

// NextAction is the engine's outstanding intent for a request.
type NextAction struct {
	RequestedAction RequestedAction `json:"requestedAction" db:"requested_action"`
	ResultHash      sql.NullString  `json:"resultHash,omitempty" db:"result_hash"`
	ErrorType       ErrorType       `json:"errorType,omitempty" db:"error_type"`
	ErrorNote       sql.NullString  `json:"errorNote,omitempty" db:"error_note"`
}

// IsParked reports whether a human must clear ErrorType before the Selector
// may pick this request up again.
func (n *NextAction) IsParked() bool {
	return n.ErrorType != ErrorNone
}

// RequestTimes holds the four monotone lifecycle instants shared by payment
// and purchase requests.
type RequestTimes struct {
	PayByTime                 int64 `json:"payByTime" db:"pay_by_time"`
	SubmitResultTime           int64 `json:"submitResultTime" db:"submit_result_time"`
	UnlockTime                 int64 `json:"unlockTime" db:"unlock_time"`
	ExternalDisputeUnlockTime int64 `json:"externalDisputeUnlockTime" db:"external_dispute_unlock_time"`
}

// Request is the set of fields common to PaymentRequest and PurchaseRequest;
// both are persisted as the same shape with a Kind discriminator and an
// asymmetric Funds interpretation (RequestedFunds for payment, PaidFunds for
// purchase).
type Request struct {
	ID                       uuid.UUID     `json:"id" db:"id"`
	Kind                     RequestKind   `json:"kind" db:"kind"`
	PaymentSourceID           uuid.UUID    `json:"paymentSourceId" db:"payment_source_id"`
	BlockchainIdentifier     string        `json:"blockchainIdentifier" db:"blockchain_identifier"`
	InputHash                string        `json:"inputHash" db:"input_hash"`
	ResultHash               sql.NullString `json:"resultHash,omitempty" db:"result_hash"`
	Metadata                 sql.NullString `json:"metadata,omitempty" db:"metadata"`
	RequestTimes

	SellerCoolDownTime int64 `json:"sellerCoolDownTime" db:"seller_cool_down_time"`
	BuyerCoolDownTime  int64 `json:"buyerCoolDownTime" db:"buyer_cool_down_time"`

	Funds                    []Fund `json:"funds" db:"-"`
	CollateralReturnLovelace int64  `json:"collateralReturnLovelace" db:"collateral_return_lovelace"`
	TotalBuyerCardanoFees    int64  `json:"totalBuyerCardanoFees" db:"total_buyer_cardano_fees"`
	TotalSellerCardanoFees   int64  `json:"totalSellerCardanoFees" db:"total_seller_cardano_fees"`

	SmartContractWalletID uuid.NullUUID `json:"smartContractWalletId,omitempty" db:"smart_contract_wallet_id"`
	SellerWalletID        uuid.NullUUID `json:"sellerWalletId,omitempty" db:"seller_wallet_id"`
	BuyerWalletID         uuid.NullUUID `json:"buyerWalletId,omitempty" db:"buyer_wallet_id"`
	CurrentTransactionID  uuid.NullUUID `json:"currentTransactionId,omitempty" db:"current_transaction_id"`

	OnChainState OnChainState `json:"onChainState" db:"on_chain_state"`
	NextAction

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CounterpartyCooldown returns the cooldown instant of the party that did
// not just act, per the eligibility rule of 4.7.3: the selector requires
// this to have elapsed (relative to the source cooldown) before picking the
// request up for the opposite side.
func (r *Request) CounterpartyCooldown(actingParty WalletType) int64 {
	if actingParty == WalletPurchasing {
		return r.SellerCoolDownTime
	}
	return r.BuyerCoolDownTime
}

// NewRequest is the input shape shared by CreatePayment/CreatePurchase
// intents.
type NewRequest struct {
	Kind                 RequestKind
	PaymentSourceID      uuid.UUID
	BlockchainIdentifier string
	InputHash            string
	Metadata             string
	RequestTimes
	Funds []Fund
}
