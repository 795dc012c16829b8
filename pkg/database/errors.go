package database

import "errors"

// Sentinel errors for Store operations.
var (
	// ErrNotFound is returned when a requested entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a serializable transaction could not be
	// committed due to a concurrent conflicting transaction (4.1). Callers
	// must not retry within the same scheduler tick.
	ErrConflict = errors.New("serialization conflict")

	// ErrWalletNotAvailable is returned by WalletLocker.Acquire when no row
	// matched the unleased predicate (4.4).
	ErrWalletNotAvailable = errors.New("wallet not available for lease")

	// ErrDuplicatePaymentSource is returned when (network, smartContractAddress)
	// collides with a non-deleted source (3).
	ErrDuplicatePaymentSource = errors.New("payment source already exists for network and contract address")
)

// Category classifies a Store-layer error per the taxonomy of section 7.
type Category string

const (
	CategoryTransient Category = "Transient"
	CategoryProtocol  Category = "Protocol"
	CategoryFatal     Category = "Fatal"
	CategoryUnknown   Category = "Unknown"
)

// Classify maps a Store error to the section 7 taxonomy so callers in
// pkg/lifecycle can decide whether to retry, park, or abort startup.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrConflict), errors.Is(err, ErrWalletNotAvailable):
		return CategoryTransient
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicatePaymentSource):
		return CategoryProtocol
	default:
		return CategoryUnknown
	}
}
