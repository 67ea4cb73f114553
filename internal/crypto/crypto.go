// Package crypto derives storage keys from the master key and seals
// snapshot blobs for backends that do not encrypt on their own.
//
// Key hierarchy:
// - Master key: 32 random bytes supplied as 64 hex characters (MASTER_KEY)
// - Purpose keys: derived from the master key using HKDF-SHA256, one per use
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// MasterKeySize is the size of the decoded master key in bytes (256 bits)
	MasterKeySize = 32

	// KeySize is the size of a derived key in bytes (256 bits)
	KeySize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes (96 bits)
	NonceSize = 12

	tagSize = 16
)

// Purpose separates keys derived for different uses.
type Purpose string

const (
	// PurposeDatabase keys the SQLCipher database.
	PurposeDatabase Purpose = "sqlcipher"
	// PurposeSnapshot seals snapshot blobs written to object storage.
	PurposeSnapshot Purpose = "snapshot"
)

// ParseMasterKey decodes a 64-character hex master key.
func ParseMasterKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("master key must be hex: %w", err)
	}
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes (%d hex chars), got %d bytes", MasterKeySize, MasterKeySize*2, len(key))
	}
	return key, nil
}

// DeriveKey derives a purpose key from a master key using HKDF-SHA256.
// The info parameter combines purpose and version for domain separation:
// info = "inkpad:" + purpose + ":v" + version
func DeriveKey(masterKey []byte, purpose Purpose, version int) []byte {
	info := fmt.Sprintf("inkpad:%s:v%d", purpose, version)

	// Salt is nil - using a random master key is sufficient for our use case
	hkdfReader := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// HKDF never fails to produce 32 bytes for SHA-256
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// DatabaseKeyHex returns the SQLCipher key for a master key as hex.
func DatabaseKeyHex(masterKey []byte) string {
	return hex.EncodeToString(DeriveKey(masterKey, PurposeDatabase, 1))
}

// Seal encrypts plaintext using AES-256-GCM. The nonce is randomly generated
// and prepended to the ciphertext. aad is authenticated but not stored.
// Output format: nonce (12 bytes) || ciphertext || auth tag (16 bytes)
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+tagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts output of Seal. The same aad must be supplied.
func Open(key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+tagSize {
		return nil, fmt.Errorf("sealed data too short: got %d bytes, need at least %d", len(sealed), NonceSize+tagSize)
	}

	plaintext, err := gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
