package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"

	"pesalink/internal/domain"
)

const (
	keyLen   = 32 // AES-256
	nonceLen = 16
	saltStr  = "salt" // fixed: envelopes must stay decryptable across restarts
)

// EncryptionService encrypts tenant gateway credentials at rest with
// AES-256-GCM. The 256-bit key is derived once at construction from an
// operator-supplied secret via scrypt, so the secret itself can be any
// length. Envelope format: nonce:tag:ciphertext, each segment hex-encoded.
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService derives the master key and prepares the AEAD.
// The scrypt cost makes construction deliberately slow; build one instance
// at startup and share it.
func NewEncryptionService(secret string) (*EncryptionService, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret must not be empty")
	}
	key, err := scrypt.Key([]byte(secret), []byte(saltStr), 1<<15, 8, 1, keyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns the
// nonce:tag:ciphertext envelope.
func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	sealed := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal appends the tag after the ciphertext; split it out so the
	// envelope keeps the nonce:tag:ciphertext layout.
	tagAt := len(sealed) - e.gcm.Overhead()
	ct, tag := sealed[:tagAt], sealed[tagAt:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope produced by Encrypt. Returns
// domain.ErrMalformedEnvelope when the envelope does not split into three
// hex segments, and domain.ErrDecryptionFailed when the authentication tag
// check fails (tampered data or wrong key).
func (e *EncryptionService) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", domain.ErrMalformedEnvelope
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLen {
		return "", domain.ErrMalformedEnvelope
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != e.gcm.Overhead() {
		return "", domain.ErrMalformedEnvelope
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", domain.ErrMalformedEnvelope
	}
	pt, err := e.gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", domain.ErrDecryptionFailed
	}
	return string(pt), nil
}
