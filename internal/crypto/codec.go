package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

// URLPrefix marks a bookmark URL that carries ciphertext. Values starting with it
// are treated as already encrypted.
const URLPrefix = "data:text/plain;base64,"

// urlSegments is the number of comma-separated fields after the prefix.
const urlSegments = 4

// EncodedURL holds the base64 fields packed into an encrypted bookmark's URL.
type EncodedURL struct {
	CipherURL  string
	TitleIV    string
	URLIV      string
	WrappedKey string
}

// EncodeBytes encodes bytes to standard padded base64.
func EncodeBytes(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBytes decodes standard padded base64.
func DecodeBytes(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrMalformedInput, err)
	}
	return data, nil
}

// PackURL builds prefix + cipherURL,titleIV,urlIV,wrappedKey.
func PackURL(prefix string, u EncodedURL) string {
	return prefix + strings.Join([]string{u.CipherURL, u.TitleIV, u.URLIV, u.WrappedKey}, ",")
}

// UnpackURL reverses PackURL.
func UnpackURL(prefix, value string) (EncodedURL, error) {
	if !strings.HasPrefix(value, prefix) {
		return EncodedURL{}, fmt.Errorf("%w: missing encrypted url prefix", kerrors.ErrMalformedInput)
	}
	parts := strings.Split(strings.TrimPrefix(value, prefix), ",")
	if len(parts) != urlSegments {
		return EncodedURL{}, fmt.Errorf("%w: expected %d url segments, got %d", kerrors.ErrMalformedInput, urlSegments, len(parts))
	}
	return EncodedURL{
		CipherURL:  parts[0],
		TitleIV:    parts[1],
		URLIV:      parts[2],
		WrappedKey: parts[3],
	}, nil
}

// IsEncrypted reports whether value already carries the encrypted prefix.
func IsEncrypted(prefix, value string) bool {
	return strings.HasPrefix(value, prefix)
}
