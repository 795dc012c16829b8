package chainclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// MemClient is an in-memory Client used for tests and as the default
// cmd/escrowd wiring when no real node is configured. It keeps a UTXO set
// keyed by address and "confirms" every submission immediately, since the
// real chain indexer is an out-of-scope external collaborator (1).
type MemClient struct {
	mu        sync.Mutex
	utxos     map[string][]UTxO // address -> utxos
	byTxHash  map[string][]UTxO
	confirmed map[string]bool
	slot      int64
}

// NewMemClient returns an empty simulated ledger.
func NewMemClient() *MemClient {
	return &MemClient{
		utxos:     make(map[string][]UTxO),
		byTxHash:  make(map[string][]UTxO),
		confirmed: make(map[string]bool),
		slot:      1,
	}
}

// Seed injects a UTXO directly, e.g. to place a script output with a
// specific datum ahead of a test scenario.
func (m *MemClient) Seed(u UTxO) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utxos[u.Address] = append(m.utxos[u.Address], u)
	m.byTxHash[u.TxHash] = append(m.byTxHash[u.TxHash], u)
}

func (m *MemClient) FetchUTxOs(ctx context.Context, address string) ([]UTxO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UTxO, len(m.utxos[address]))
	copy(out, m.utxos[address])
	return out, nil
}

func (m *MemClient) FetchUTxOsOfTx(ctx context.Context, txHash string) ([]UTxO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	utxos, ok := m.byTxHash[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: no utxos for tx %s", ErrNotFound, txHash)
	}
	out := make([]UTxO, len(utxos))
	copy(out, utxos)
	return out, nil
}

// Evaluate returns a fixed, generous ex-unit budget per input — good enough
// for the two-pass TxBuilder pattern (4.6) without a real Plutus VM.
func (m *MemClient) Evaluate(ctx context.Context, rawTx []byte) ([]ExUnits, error) {
	return []ExUnits{{Mem: 2_000_000, Steps: 800_000_000}}, nil
}

// Submit assigns a deterministic hash from the tx bytes, marks it confirmed
// at once and advances the simulated slot by one.
func (m *MemClient) Submit(ctx context.Context, rawTx []byte) (string, error) {
	sum := sha256.Sum256(rawTx)
	txHash := hex.EncodeToString(sum[:])

	m.mu.Lock()
	m.confirmed[txHash] = true
	m.slot++
	m.mu.Unlock()

	return txHash, nil
}

// IsConfirmed reports whether txHash has been submitted. It is not part of
// the Client interface; ChainMonitor checks confirmation through
// FetchUTxOsOfTx, which only knows UTXOs added with Seed.
func (m *MemClient) IsConfirmed(txHash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed[txHash]
}

func (m *MemClient) Tip(ctx context.Context) (Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Tip{Slot: m.slot, Time: time.Now()}, nil
}
