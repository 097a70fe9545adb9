package errors

import "errors"

// Cryptographic errors.
var (
	// ErrAuthentication indicates an AEAD tag mismatch, most often a wrong passphrase.
	ErrAuthentication = errors.New("authentication failed")

	// ErrKeyMismatch indicates a wrapped message key was not produced for this private key.
	ErrKeyMismatch = errors.New("private key does not match wrapped key")

	// ErrMalformedInput indicates a value could not be decoded or parsed.
	ErrMalformedInput = errors.New("malformed input")
)

// Folder state errors.
var (
	// ErrNotManaged indicates the folder has no settings record.
	ErrNotManaged = errors.New("folder is not managed")

	// ErrAlreadyManaged indicates a passphrase has already been set on the folder.
	ErrAlreadyManaged = errors.New("folder is already managed")

	// ErrInvalidSettings indicates a settings record breaks the all-or-none key material rule.
	ErrInvalidSettings = errors.New("invalid folder settings")
)

// Store errors.
var (
	// ErrStoreUnavailable indicates a settings or bookmark store I/O failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrVersionConflict indicates the stored record changed since it was read.
	ErrVersionConflict = errors.New("settings version conflict")

	// ErrNotFound indicates a bookmark or folder id does not exist.
	ErrNotFound = errors.New("bookmark not found")

	// ErrNotFolder indicates an id refers to a bookmark where a folder was required.
	ErrNotFolder = errors.New("not a folder")
)

// IsWrongPassword reports whether err should be shown to a user as a wrong password.
func IsWrongPassword(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrKeyMismatch)
}
