package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	kerrors "github.com/bmlock/bmlock/internal/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pemHeader = "-----BEGIN PUBLIC KEY-----"
	pemFooter = "-----END PUBLIC KEY-----"
)

// WrappingKey is a passphrase-derived AES-256 key. It can only wrap and unwrap
// folder private keys; it exposes no general encrypt or decrypt.
type WrappingKey struct {
	key []byte
}

// DeriveWrappingKey runs PBKDF2-SHA-256 over the passphrase.
func DeriveWrappingKey(passphrase, salt []byte) WrappingKey {
	return WrappingKey{key: pbkdf2.Key(passphrase, salt, PBKDF2Iterations, KeySize, sha256.New)}
}

// Wrap seals the PKCS#8 encoding of priv with AES-GCM under iv.
func (w WrappingKey) Wrap(priv *rsa.PrivateKey, iv []byte) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	defer Zeroize(der)
	return sealGCM(w.key, iv, der)
}

// Unwrap opens a wrapped private key. A wrong passphrase yields ErrAuthentication.
func (w WrappingKey) Unwrap(wrapped, iv []byte) (*rsa.PrivateKey, error) {
	der, err := openGCM(w.key, iv, wrapped)
	if err != nil {
		return nil, err
	}
	defer Zeroize(der)

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", kerrors.ErrMalformedInput, err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", kerrors.ErrMalformedInput)
	}
	return priv, nil
}

// Destroy zeroes the key bytes.
func (w WrappingKey) Destroy() {
	Zeroize(w.key)
}

// GenerateFolderKeyPair creates the RSA-OAEP key pair for a managed folder.
// rsa.GenerateKey always uses exponent 65537.
func GenerateFolderKeyPair() (*rsa.PublicKey, *rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	return &priv.PublicKey, priv, nil
}

// WrapPrivateKey derives the wrapping key from passphrase and salt and seals priv.
// Callers must pass a fresh salt/iv pair from GenerateSaltAndIV.
func WrapPrivateKey(priv *rsa.PrivateKey, passphrase, salt, iv []byte) ([]byte, error) {
	wk := DeriveWrappingKey(passphrase, salt)
	defer wk.Destroy()
	return wk.Wrap(priv, iv)
}

// UnwrapPrivateKey is the inverse of WrapPrivateKey. It is the only passphrase check.
func UnwrapPrivateKey(passphrase, wrapped, salt, iv []byte) (*rsa.PrivateKey, error) {
	wk := DeriveWrappingKey(passphrase, salt)
	defer wk.Destroy()
	priv, err := wk.Unwrap(wrapped, iv)
	if err != nil {
		return nil, fmt.Errorf("unwrap private key: %w", err)
	}
	return priv, nil
}

// ExportPublicKeyPEM renders pub as SPKI inside PUBLIC KEY framing, base64 on a single line.
func ExportPublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pemHeader + "\n" + EncodeBytes(der) + "\n" + pemFooter, nil
}

// ImportPublicKeyPEM parses a PUBLIC KEY PEM block holding an RSA key.
func ImportPublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(s) + "\n"))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%w: failed to decode PEM block containing public key", kerrors.ErrMalformedInput)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", kerrors.ErrMalformedInput, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", kerrors.ErrMalformedInput)
	}
	return rsaPub, nil
}
