package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

const (
	// SaltSize is the PBKDF2 salt length.
	SaltSize = 16

	// IVSize is the AES-GCM nonce length (96 bits).
	IVSize = 12

	// KeySize is the AES key length for wrapping and message keys (256 bits).
	KeySize = 32

	// PBKDF2Iterations must match between wrap and unwrap.
	PBKDF2Iterations = 100000

	// RSAKeyBits is the folder key pair modulus length.
	RSAKeyBits = 2048
)

// GenerateSalt generates a random PBKDF2 salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateIV generates a random 96-bit AES-GCM nonce.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	return iv, nil
}

// GenerateSaltAndIV returns a fresh salt/iv pair. Every private key wrap uses one.
func GenerateSaltAndIV() (salt, iv []byte, err error) {
	if salt, err = GenerateSalt(); err != nil {
		return nil, nil, err
	}
	if iv, err = GenerateIV(); err != nil {
		return nil, nil, err
	}
	return salt, iv, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}

// sealGCM encrypts plaintext under key with the caller's iv.
func sealGCM(key, iv, plaintext []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", kerrors.ErrMalformedInput, IVSize, len(iv))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

// openGCM decrypts ciphertext. A tag mismatch is reported as ErrAuthentication
// without further detail.
func openGCM(key, iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", kerrors.ErrMalformedInput, IVSize, len(iv))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, kerrors.ErrAuthentication
	}
	return plaintext, nil
}

// ConstantTimeCompare performs constant-time comparison
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites a byte slice with zeros to clear sensitive data from memory
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
