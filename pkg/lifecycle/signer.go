package lifecycle

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/escrowlabs/escrowd/pkg/domain"
	"github.com/escrowlabs/escrowd/pkg/walletcrypto"
)

// Signer produces the witness for a built transaction. The handler shape
// (4.7) calls it after the second build pass, once the real ex-units are
// known, and before Submit.
type Signer interface {
	Sign(ctx context.Context, wallet *domain.HotWallet, rawTx []byte) (signature []byte, err error)
}

// WalletSigner decrypts a hot wallet's Ed25519 key on demand from its
// at-rest encrypted seed column, signs, and immediately scrubs the key
// material from memory.
type WalletSigner struct {
	masterKey string
}

// NewWalletSigner builds a Signer using masterKey to decrypt wallet seeds.
func NewWalletSigner(masterKey string) *WalletSigner {
	return &WalletSigner{masterKey: masterKey}
}

// Sign implements Signer.
func (s *WalletSigner) Sign(ctx context.Context, wallet *domain.HotWallet, rawTx []byte) ([]byte, error) {
	plaintext, err := walletcrypto.Decrypt(wallet.EncryptedSeed, s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: decrypt wallet %s seed: %w", wallet.ID, err)
	}
	defer walletcrypto.ClearBytes(plaintext)

	if len(plaintext) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("lifecycle: wallet %s seed has unexpected size %d", wallet.ID, len(plaintext))
	}
	priv := ed25519.PrivateKey(plaintext)
	return ed25519.Sign(priv, rawTx), nil
}
