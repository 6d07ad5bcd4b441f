package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 32
	nonceSize = 12 // 96-bit, per spec §4.6

	// Argon2id parameters. The spec floors the original's naive iterated
	// SHA-256 (10,000 rounds) at a "modern memory-hard KDF where
	// available" — this module uses argon2.IDKey, grounded on
	// anhnv24810310060-source-SWARM-INTELLIGENCE-NETWORK's use of
	// golang.org/x/crypto for credential material (see DESIGN.md's
	// internal/vault entry for the KDF choice).
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

// generateSalt returns a fresh cryptographically random 32-byte salt,
// minted once when a vault file is first created.
func generateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// deriveKey derives a 32-byte AEAD key from password and salt via
// Argon2id.
func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// newAEAD builds an AES-256-GCM cipher from the derived key.
func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// seal encrypts plaintext under key with a fresh random nonce, unique per
// call. The returned ciphertext carries the AEAD authentication tag.
func seal(key []byte, plaintext string) (ciphertext, nonce []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// open decrypts ciphertext/nonce under key. A failure (wrong key or
// corrupted data) returns an opaque error — the caller must not surface
// which of the two occurred, to avoid leaking key-guessing signal.
func open(key, ciphertext, nonce []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("authentication failed")
	}
	return string(plaintext), nil
}

// zeroize overwrites a byte slice in place. Used to scrub plaintexts and
// derived keys from memory once the vault locks.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// zeroizeString can't truly scrub a Go string in place (strings are
// immutable), so locking replaces the Plaintext field with the empty
// sentinel rather than attempting to wipe backing bytes — documented
// limitation, matching the spirit of the spec's zeroization invariant
// (no plaintext value remains reachable from the vault after Lock()).
const zeroizedSentinel = ""
