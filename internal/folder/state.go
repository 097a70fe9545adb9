package folder

import "github.com/bmlock/bmlock/internal/settings"

// State is the lock state of a folder.
type State int

const (
	// Unmanaged folders have no settings record.
	Unmanaged State = iota
	// Unlocked folders have key material and plaintext bookmarks.
	Unlocked
	// Locked folders have key material and encrypted bookmarks.
	Locked
)

func (s State) String() string {
	switch s {
	case Unmanaged:
		return "unmanaged"
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

func stateOf(ns settings.NodeSettings, ok bool) State {
	switch {
	case !ok:
		return Unmanaged
	case ns.Locked:
		return Locked
	default:
		return Unlocked
	}
}
