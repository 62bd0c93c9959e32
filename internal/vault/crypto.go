package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/nerdfunk-net/cockpit/internal/errs"
)

// deriveKey hashes the process secret with SHA-256, producing the 32-byte
// key for AES-256-GCM (spec.md §4.1: "the process secret is hashed with
// SHA-256 and used as the symmetric key for an authenticated-encryption
// scheme").
func deriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// encrypt seals plaintext under key, returning nonce||ciphertext.
func encrypt(key [32]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "build AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "build GCM mode", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "generate nonce", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a blob produced by encrypt. Tampering or a key mismatch
// surfaces as a DecryptError, per spec.md §4.1.
func decrypt(key [32]byte, blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "build AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "build GCM mode", err)
	}
	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, errs.New(errs.KindDecrypt, "ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecrypt, fmt.Sprintf("decrypt failed (%d bytes)", len(blob)), err)
	}
	return plaintext, nil
}
