package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kerrors "github.com/bmlock/bmlock/internal/errors"
)

// KeyPrefix namespaces folder records in key-value stores and backups.
const KeyPrefix = "node_settings/"

// NodeSettings is the record of a managed folder. A folder without a record is
// unmanaged; a record always carries the full key material.
type NodeSettings struct {
	Locked            bool   `json:"locked"`
	PublicKeyPEM      string `json:"publicKey"`
	WrappedPrivateKey []byte `json:"key"`  // base64 in JSON
	Salt              []byte `json:"salt"` // base64 in JSON
	IV                []byte `json:"iv"`   // base64 in JSON

	// Version is the stored version this record was read at. Stores reject a
	// write whose Version differs from what they hold.
	Version    int64  `json:"version,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"` // RFC 3339
}

// Validate enforces the all-or-none key material rule.
func (s NodeSettings) Validate() error {
	var missing []string
	if s.PublicKeyPEM == "" {
		missing = append(missing, "publicKey")
	}
	if len(s.WrappedPrivateKey) == 0 {
		missing = append(missing, "key")
	}
	if len(s.Salt) == 0 {
		missing = append(missing, "salt")
	}
	if len(s.IV) == 0 {
		missing = append(missing, "iv")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", kerrors.ErrInvalidSettings, strings.Join(missing, ", "))
	}
	return nil
}

// SetModifiedAt sets the ModifiedAt timestamp
func (s *NodeSettings) SetModifiedAt(t time.Time) {
	s.ModifiedAt = t.UTC().Format(time.RFC3339)
}

// ToJSON serializes the record to JSON
func (s NodeSettings) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// NodeSettingsFromJSON deserializes a record from JSON
func NodeSettingsFromJSON(data []byte) (NodeSettings, error) {
	var s NodeSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return NodeSettings{}, fmt.Errorf("%w: settings record: %v", kerrors.ErrMalformedInput, err)
	}
	return s, nil
}

// StorageKey returns the key-value key for folderID.
func StorageKey(folderID string) string {
	return KeyPrefix + folderID
}

// FolderIDFromKey reverses StorageKey.
func FolderIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyPrefix) || len(key) == len(KeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, KeyPrefix), true
}
