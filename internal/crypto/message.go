package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

// MessageKey encrypts bookmark fields for one encryption pass. It is never
// persisted in the clear; each encrypted bookmark carries it RSA-OAEP wrapped.
type MessageKey struct {
	key []byte
}

// GenerateMessageKey returns a fresh AES-256-GCM key.
func GenerateMessageKey() (MessageKey, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return MessageKey{}, fmt.Errorf("failed to generate message key: %w", err)
	}
	return MessageKey{key: key}, nil
}

// Seal encrypts plaintext with the given 12-byte iv.
func (m MessageKey) Seal(iv, plaintext []byte) ([]byte, error) {
	return sealGCM(m.key, iv, plaintext)
}

// Open decrypts ciphertext; tampering or a wrong key yields ErrAuthentication.
func (m MessageKey) Open(iv, ciphertext []byte) ([]byte, error) {
	return openGCM(m.key, iv, ciphertext)
}

// Destroy zeroes the key bytes.
func (m MessageKey) Destroy() {
	Zeroize(m.key)
}

// WrapMessageKey encrypts the raw message key with RSA-OAEP (SHA-256).
func WrapMessageKey(m MessageKey, pub *rsa.PublicKey) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, m.key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap message key: %w", err)
	}
	return wrapped, nil
}

// UnwrapMessageKey recovers a message key. A private key that does not match the
// wrapping public key yields ErrKeyMismatch.
func UnwrapMessageKey(wrapped []byte, priv *rsa.PrivateKey) (MessageKey, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return MessageKey{}, kerrors.ErrKeyMismatch
	}
	if len(key) != KeySize {
		Zeroize(key)
		return MessageKey{}, fmt.Errorf("%w: message key must be %d bytes", kerrors.ErrMalformedInput, KeySize)
	}
	return MessageKey{key: key}, nil
}
