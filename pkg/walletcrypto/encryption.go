package walletcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id + AES-256-GCM parameters for encrypting a hot wallet's seed at
// rest. Memory cost follows OWASP's minimum recommendation for Argon2id.
const (
	argon2Time    = 4
	argon2Memory  = 256 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
	aesNonceLen   = 12
)

// EncryptedSeed is the serializable result of EncryptSeed.
type EncryptedSeed struct {
	Salt          []byte
	Nonce         []byte
	Ciphertext    []byte
	Argon2Time    uint32
	Argon2Memory  uint32
	Argon2Threads uint8
	Version       uint8
}

// EncryptSeed encrypts a hot wallet's mnemonic/seed material with a key
// derived from masterKey via Argon2id, so the encrypted seed column never
// stores anything recoverable without the operator-held encryption key.
func EncryptSeed(plaintext []byte, masterKey string) (*EncryptedSeed, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("walletcrypto: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(masterKey), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	defer ClearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("walletcrypto: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("walletcrypto: init GCM: %w", err)
	}

	nonce := make([]byte, aesNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("walletcrypto: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return &EncryptedSeed{
		Salt:          salt,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
		Argon2Time:    argon2Time,
		Argon2Memory:  argon2Memory,
		Argon2Threads: argon2Threads,
		Version:       1,
	}, nil
}

// DecryptSeed is the inverse of EncryptSeed.
func DecryptSeed(enc *EncryptedSeed, masterKey string) ([]byte, error) {
	if enc == nil {
		return nil, errors.New("walletcrypto: encrypted seed is nil")
	}
	if len(enc.Salt) != argon2SaltLen {
		return nil, fmt.Errorf("walletcrypto: invalid salt length %d", len(enc.Salt))
	}
	if len(enc.Nonce) != aesNonceLen {
		return nil, fmt.Errorf("walletcrypto: invalid nonce length %d", len(enc.Nonce))
	}

	key := argon2.IDKey([]byte(masterKey), enc.Salt, enc.Argon2Time, enc.Argon2Memory, enc.Argon2Threads, argon2KeyLen)
	defer ClearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("walletcrypto: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("walletcrypto: init GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return nil, errors.New("walletcrypto: decryption failed: wrong key or corrupted data")
	}
	return plaintext, nil
}

// Serialize packs an EncryptedSeed into the flat binary layout persisted
// in the database's encrypted-seed column:
// [version:1][time:4][memory:4][threads:1][salt:16][nonce:12][ciphertext:variable]
func Serialize(enc *EncryptedSeed) []byte {
	size := 1 + 4 + 4 + 1 + len(enc.Salt) + len(enc.Nonce) + len(enc.Ciphertext)
	out := make([]byte, size)

	offset := 0
	out[offset] = enc.Version
	offset++
	binary.BigEndian.PutUint32(out[offset:], enc.Argon2Time)
	offset += 4
	binary.BigEndian.PutUint32(out[offset:], enc.Argon2Memory)
	offset += 4
	out[offset] = enc.Argon2Threads
	offset++
	offset += copy(out[offset:], enc.Salt)
	offset += copy(out[offset:], enc.Nonce)
	copy(out[offset:], enc.Ciphertext)

	return out
}

// Deserialize is the inverse of Serialize.
func Deserialize(data []byte) (*EncryptedSeed, error) {
	minSize := 1 + 4 + 4 + 1 + argon2SaltLen + aesNonceLen
	if len(data) < minSize {
		return nil, fmt.Errorf("walletcrypto: encrypted data too short: %d < %d", len(data), minSize)
	}

	offset := 0
	version := data[offset]
	offset++
	argonTime := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	argonMemory := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	argonThreads := data[offset]
	offset++

	salt := make([]byte, argon2SaltLen)
	offset += copy(salt, data[offset:offset+argon2SaltLen])

	nonce := make([]byte, aesNonceLen)
	offset += copy(nonce, data[offset:offset+aesNonceLen])

	ciphertext := make([]byte, len(data)-offset)
	copy(ciphertext, data[offset:])

	return &EncryptedSeed{
		Salt:          salt,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
		Argon2Time:    argonTime,
		Argon2Memory:  argonMemory,
		Argon2Threads: argonThreads,
		Version:       version,
	}, nil
}

// Encrypt and Decrypt operate on the flat serialized form, the shape the
// database layer stores and reads back as a single column.
func Encrypt(plaintext []byte, masterKey string) ([]byte, error) {
	enc, err := EncryptSeed(plaintext, masterKey)
	if err != nil {
		return nil, err
	}
	return Serialize(enc), nil
}

func Decrypt(data []byte, masterKey string) ([]byte, error) {
	enc, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	return DecryptSeed(enc, masterKey)
}
