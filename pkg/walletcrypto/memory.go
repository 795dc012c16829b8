package walletcrypto

// ClearBytes zeroes a byte slice in place. Best-effort hygiene for key
// material that has finished its useful life in this process.
func ClearBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
