package txbuilder

import "time"

// timeBuffer is the ±window padding applied around "now" before slot
// conversion (4.6).
const timeBuffer = 180 * time.Second

// Slotter converts a wall-clock instant to a ledger slot number. The real
// conversion depends on the network's genesis parameters (slot length,
// era boundaries); ChainClient's concrete implementation owns that, so
// ValidityWindow takes it as a function rather than hard-coding Cardano's
// mainnet/testnet constants here.
type Slotter func(t time.Time) int64

// ValidityWindow computes the transaction's valid slot range per 4.6:
// [unixTimeToSlot(now-180s)-1, unixTimeToSlot(now+180s)+N], where N is the
// network's validity slot buffer.
func ValidityWindow(now time.Time, slot Slotter, validitySlotBuffer int64) (from, to int64) {
	from = slot(now.Add(-timeBuffer)) - 1
	to = slot(now.Add(timeBuffer)) + validitySlotBuffer
	return from, to
}
