package chainclient

import (
	"errors"
	"net"
	"strings"
)

// Sentinel errors a Client implementation should wrap its failures in, so
// Classify can route them per the taxonomy of section 7.
var (
	ErrTransientNetwork = errors.New("chain client: transient network error")
	ErrNotFound         = errors.New("chain client: not found")
	ErrInvalid          = errors.New("chain client: rejected by ledger")
)

// Category mirrors the 4.2 failure classification.
type Category string

const (
	CategoryTransientNetwork Category = "TransientNetwork"
	CategoryNotFound         Category = "NotFound"
	CategoryInvalid          Category = "Invalid"
	CategoryUnknown          Category = "Unknown"
)

// Classify maps an error returned by a Client method to the 4.2 taxonomy.
// LifecycleEngine retries TransientNetwork with backoff and parks on
// Invalid.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrTransientNetwork):
		return CategoryTransientNetwork
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInvalid):
		return CategoryInvalid
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransientNetwork
	}
	if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "connection refused") {
		return CategoryTransientNetwork
	}
	return CategoryUnknown
}
