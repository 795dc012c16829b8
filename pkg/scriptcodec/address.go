package scriptcodec

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"

	"github.com/escrowlabs/escrowd/pkg/domain"
)

// addressPrefix returns the Bech32 human-readable part for a network, the
// way Cardano addresses distinguish mainnet ("addr") from testnet
// ("addr_test").
func addressPrefix(network domain.Network) string {
	if network == domain.NetworkTest {
		return "addr_test"
	}
	return "addr"
}

// VkeyHash224 derives a 28-byte verification key hash from a raw Ed25519
// public key via Blake2b-224, the hash width Cardano addresses are built
// from.
func VkeyHash224(pubKey []byte) ([]byte, error) {
	h, err := blake2b.New(28, nil)
	if err != nil {
		return nil, fmt.Errorf("scriptcodec: init blake2b-224: %w", err)
	}
	if _, err := h.Write(pubKey); err != nil {
		return nil, fmt.Errorf("scriptcodec: hash pubkey: %w", err)
	}
	return h.Sum(nil), nil
}

// DeriveAddress renders a script or wallet address from its 28-byte
// verification key hash, Bech32-encoded with the network's prefix. The
// real Shelley address format also folds in a header byte and, for script
// addresses, the script hash; this derivation keeps the same vkey-hash ->
// Bech32 shape as other address families in the codebase.
func DeriveAddress(network domain.Network, vkeyHash []byte) (string, error) {
	if len(vkeyHash) != 28 {
		return "", fmt.Errorf("scriptcodec: vkey hash must be 28 bytes, got %d", len(vkeyHash))
	}
	converted, err := bech32.ConvertBits(vkeyHash, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("scriptcodec: convert address bits: %w", err)
	}
	address, err := bech32.Encode(addressPrefix(network), converted)
	if err != nil {
		return "", fmt.Errorf("scriptcodec: encode address: %w", err)
	}
	return address, nil
}
