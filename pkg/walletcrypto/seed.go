// Package walletcrypto provisions hot wallets: BIP39 mnemonic generation,
// Argon2id+AES-256-GCM seed-at-rest encryption, and Ed25519 keypair / vkey
// hash derivation built on scriptcodec's Blake2b-224 hash.
package walletcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"

	"github.com/escrowlabs/escrowd/pkg/scriptcodec"
)

// ErrInvalidMnemonic is returned when a stored or supplied mnemonic fails
// BIP39 checksum validation.
var ErrInvalidMnemonic = errors.New("walletcrypto: invalid mnemonic")

// GenerateMnemonic returns a fresh BIP39 mnemonic for a new hot wallet.
// wordCount must be 12 (128-bit entropy) or 24 (256-bit entropy).
func GenerateMnemonic(wordCount int) (string, error) {
	var entropyBits int
	switch wordCount {
	case 12:
		entropyBits = 128
	case 24:
		entropyBits = 256
	default:
		return "", fmt.Errorf("walletcrypto: invalid word count %d: must be 12 or 24", wordCount)
	}

	entropy := make([]byte, entropyBits/8)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("walletcrypto: generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("walletcrypto: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks wordlist membership and checksum.
func ValidateMnemonic(mnemonic string) error {
	if mnemonic == "" {
		return ErrInvalidMnemonic
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// SeedFromMnemonic derives the 64-byte BIP39 seed, then the Ed25519
// keypair used to sign on-chain transactions for this wallet.
func SeedFromMnemonic(mnemonic, passphrase string) (ed25519.PrivateKey, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	defer ClearBytes(seed)

	// ed25519.NewKeyFromSeed wants exactly SeedSize bytes; the BIP39 seed
	// is wider, so fold it down deterministically rather than truncate
	// blindly and lose entropy from one half of it.
	keySeed := make([]byte, ed25519.SeedSize)
	for i, b := range seed {
		keySeed[i%ed25519.SeedSize] ^= b
	}
	defer ClearBytes(keySeed)

	return ed25519.NewKeyFromSeed(keySeed), nil
}

// VkeyHash derives the wallet's 28-byte verification-key hash from its
// Ed25519 public key, the value persisted on HotWallet/WalletBase and
// embedded in datums.
func VkeyHash(priv ed25519.PrivateKey) ([]byte, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("walletcrypto: unexpected public key type")
	}
	return scriptcodec.VkeyHash224(pub)
}
