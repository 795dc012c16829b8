// Package chainclient abstracts the underlying ledger (4.2): submitting and
// evaluating transactions, and fetching UTXOs.
package chainclient

import (
	"context"
	"time"
)

// UTxO is an unspent transaction output observed on the ledger.
type UTxO struct {
	TxHash string
	Index  int
	Address string
	Value   map[string]int64 // unit -> amount, lovelace under "lovelace"
	Datum   []byte           // raw datum bytes, nil if none attached
}

// ExUnits is the dry-run cost of evaluating one script input.
type ExUnits struct {
	Mem   int64
	Steps int64
}

// Tip is the current chain head.
type Tip struct {
	Slot int64
	Time time.Time
}

// Client abstracts fetch/evaluate/submit against the ledger. The real
// implementation talks to a node or indexer API; MemClient in this package
// simulates one for tests and the default cmd/escrowd wiring.
type Client interface {
	FetchUTxOs(ctx context.Context, address string) ([]UTxO, error)
	FetchUTxOsOfTx(ctx context.Context, txHash string) ([]UTxO, error)
	Evaluate(ctx context.Context, rawTx []byte) ([]ExUnits, error)
	Submit(ctx context.Context, rawTx []byte) (txHash string, err error)
	Tip(ctx context.Context) (Tip, error)
}
