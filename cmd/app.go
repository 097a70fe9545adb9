package cmd

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/bmlock/bmlock/internal/config"
	"github.com/bmlock/bmlock/internal/crypto"
	kerrors "github.com/bmlock/bmlock/internal/errors"
	"github.com/bmlock/bmlock/internal/folder"
	"github.com/bmlock/bmlock/internal/secrets"
	"github.com/bmlock/bmlock/internal/settings"
	"golang.org/x/term"
)

// openSettings builds the settings store selected by settings_backend.
func openSettings(ctx context.Context) (settings.ListingStore, error) {
	switch cfg.SettingsBackend {
	case config.BackendLocal:
		log.Debugf("Using local settings file %s", cfg.SettingsPath)
		return settings.NewLocalStore(cfg.SettingsPath), nil
	case config.BackendDynamoDB:
		log.Debugf("Using DynamoDB table %s in %s", cfg.TableName, cfg.AWSRegion)
		store, err := settings.NewDynamoDBStore(ctx, cfg.AWSRegion, cfg.TableName, cfg.UserID)
		if err != nil {
			return nil, fmt.Errorf("DynamoDB not available: %w", err)
		}
		return store, nil
	case config.BackendSecretsManager:
		log.Debugf("Using Secrets Manager prefix %q in %s", cfg.SecretPrefix, cfg.AWSRegion)
		store, err := secrets.NewStore(ctx, cfg.AWSRegion, cfg.SecretPrefix)
		if err != nil {
			return nil, fmt.Errorf("Secrets Manager not available: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.SettingsBackend)
	}
}

// openBookmarks opens the bookmark database, creating it if needed.
func openBookmarks() (*bookmarks.BoltStore, error) {
	if bookmarkStore != nil {
		return bookmarkStore, nil
	}
	store, err := bookmarks.OpenBoltStore(cfg.BookmarksPath)
	if err != nil {
		return nil, err
	}
	log.Debugf("Opened bookmark database %s", cfg.BookmarksPath)
	bookmarkStore = store
	return store, nil
}

func closeBookmarks() error {
	if bookmarkStore == nil {
		return nil
	}
	err := bookmarkStore.Close()
	bookmarkStore = nil
	return err
}

// newManager wires the configured stores into a folder manager.
func newManager(ctx context.Context) (*folder.Manager, *bookmarks.BoltStore, error) {
	ss, err := openSettings(ctx)
	if err != nil {
		return nil, nil, err
	}
	bs, err := openBookmarks()
	if err != nil {
		return nil, nil, err
	}
	return folder.NewManager(ss, bs, folder.WithLogger(log)), bs, nil
}

// resolveFolder accepts a folder id or the title of a top-level folder.
func resolveFolder(ctx context.Context, tree bookmarks.Tree, ref string) (bookmarks.Item, error) {
	item, err := tree.Get(ctx, ref)
	if err == nil {
		if !item.IsFolder() {
			return bookmarks.Item{}, fmt.Errorf("%s: %w", ref, kerrors.ErrNotFolder)
		}
		return item, nil
	}
	if !errors.Is(err, kerrors.ErrNotFound) {
		return bookmarks.Item{}, err
	}

	top, err := tree.ListChildren(ctx, bookmarks.RootID)
	if err != nil {
		return bookmarks.Item{}, err
	}
	var matches []bookmarks.Item
	for _, c := range top {
		if c.IsFolder() && c.Title == ref {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return bookmarks.Item{}, fmt.Errorf("folder %q: %w", ref, kerrors.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return bookmarks.Item{}, fmt.Errorf("%d folders are titled %q; use the folder id", len(matches), ref)
	}
}

// readPassphrase prompts without echo.
func readPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(pw) == 0 {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	return pw, nil
}

// readNewPassphrase prompts twice and requires both entries to match.
func readNewPassphrase(prompt string) ([]byte, error) {
	pw1, err := readPassphrase(prompt)
	if err != nil {
		return nil, err
	}
	pw2, err := readPassphrase("Confirm passphrase: ")
	if err != nil {
		crypto.Zeroize(pw1)
		return nil, err
	}
	defer crypto.Zeroize(pw2)

	if !crypto.ConstantTimeCompare(pw1, pw2) {
		crypto.Zeroize(pw1)
		return nil, fmt.Errorf("passphrases do not match")
	}
	return pw1, nil
}
