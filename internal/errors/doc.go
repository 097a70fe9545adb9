// Package errors provides typed error values for bmlock.
//
// Callers branch on these with errors.Is rather than matching strings.
//
// # Error Categories
//
//   - Crypto errors: ErrAuthentication, ErrKeyMismatch, ErrMalformedInput
//   - Folder state errors: ErrNotManaged, ErrAlreadyManaged, ErrInvalidSettings
//   - Store errors: ErrStoreUnavailable, ErrVersionConflict, ErrNotFound, ErrNotFolder
//
// # Usage
//
// Wrap with context in internal packages:
//
//	return fmt.Errorf("unwrap private key: %w", errors.ErrAuthentication)
//
// Handle in the CLI layer:
//
//	if errors.Is(err, kerrors.ErrAuthentication) {
//	    // "wrong password"
//	}
//
// Wrong-passphrase failures never say why decryption failed. A tag mismatch and
// corrupt ciphertext look the same to the caller.
package errors
