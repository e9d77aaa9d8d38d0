// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sealed values look like "v2.<kid>:<base64url(nonce||ciphertext)>". kid is
// derived from the key, so rows sealed before a rotation still open as long as
// the old key is passed in previous.
const scheme = "v2"

var ErrCiphertext = errors.New("malformed or foreign ciphertext")

// EncryptionService seals short payloads such as a transaction's payment
// context with AES-GCM. The purpose is bound as associated data, so a blob
// copied into another column fails to open.
type EncryptionService struct {
	kid  string
	seal cipher.AEAD
	open map[string]cipher.AEAD
	aad  []byte
}

// NewEncryptionService seals with key and opens with key or any of previous.
// Keys must be 16, 24 or 32 bytes (AES-128/192/256).
func NewEncryptionService(key, purpose string, previous ...string) (*EncryptionService, error) {
	kid, gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	e := &EncryptionService{kid: kid, seal: gcm, open: map[string]cipher.AEAD{kid: gcm}, aad: []byte(purpose)}
	for i, old := range previous {
		if old == "" {
			continue
		}
		id, g, err := newAEAD(old)
		if err != nil {
			return nil, fmt.Errorf("previous key %d: %w", i, err)
		}
		e.open[id] = g
	}
	return e, nil
}

func newAEAD(key string) (string, cipher.AEAD, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return "", nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4]), gcm, nil
}

func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.seal.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	sealed := e.seal.Seal(nonce, nonce, []byte(plaintext), e.aad)
	return scheme + "." + e.kid + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *EncryptionService) Decrypt(sealed string) (string, error) {
	header, body, ok := strings.Cut(sealed, ":")
	if !ok {
		return "", ErrCiphertext
	}
	version, kid, ok := strings.Cut(header, ".")
	if !ok || version != scheme {
		return "", fmt.Errorf("%w: scheme %q", ErrCiphertext, header)
	}
	gcm, ok := e.open[kid]
	if !ok {
		return "", fmt.Errorf("%w: unknown key %s", ErrCiphertext, kid)
	}
	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(data) < gcm.NonceSize() {
		return "", ErrCiphertext
	}
	ns := gcm.NonceSize()
	plain, err := gcm.Open(nil, data[:ns], data[ns:], e.aad)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(plain), nil
}
