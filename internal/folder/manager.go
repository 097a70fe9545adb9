// Package folder drives the lock state of managed bookmark folders.
//
// A folder moves between Unmanaged, Unlocked and Locked. Every transition takes
// a per-folder lock, re-reads the settings record, acts on the bookmarks and
// writes the record back at the version it read. Transitions on different
// folders run independently.
package folder

import (
	"context"
	"fmt"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/bmlock/bmlock/internal/crypto"
	"github.com/bmlock/bmlock/internal/engine"
	kerrors "github.com/bmlock/bmlock/internal/errors"
	logger "github.com/bmlock/bmlock/internal/logging"
	"github.com/bmlock/bmlock/internal/settings"
)

// Manager runs lock-state transitions.
type Manager struct {
	settings settings.Store
	engine   *engine.Engine
	locks    *keyedMutex
	log      logger.Logger
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	log        logger.Logger
	engineOpts []engine.Option
}

// WithLogger sets the logger used by the manager and its engine.
func WithLogger(l logger.Logger) Option {
	return func(o *managerOptions) { o.log = l }
}

// WithEngineOptions passes options through to the encryption engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *managerOptions) { o.engineOpts = append(o.engineOpts, opts...) }
}

// NewManager creates a Manager over the given stores.
func NewManager(ss settings.Store, bs bookmarks.Store, opts ...Option) *Manager {
	o := managerOptions{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	engineOpts := append([]engine.Option{engine.WithLogger(o.log)}, o.engineOpts...)
	return &Manager{
		settings: ss,
		engine:   engine.New(bs, engineOpts...),
		locks:    newKeyedMutex(),
		log:      o.log,
	}
}

// State reports the current state of folderID.
func (m *Manager) State(ctx context.Context, folderID string) (State, error) {
	ns, ok, err := m.settings.Get(ctx, folderID)
	if err != nil {
		return Unmanaged, err
	}
	return stateOf(ns, ok), nil
}

// load reads the record of a managed folder.
func (m *Manager) load(ctx context.Context, folderID string) (settings.NodeSettings, error) {
	ns, ok, err := m.settings.Get(ctx, folderID)
	if err != nil {
		return settings.NodeSettings{}, err
	}
	if !ok {
		return settings.NodeSettings{}, fmt.Errorf("folder %s: %w", folderID, kerrors.ErrNotManaged)
	}
	return ns, nil
}

// SetPassphrase takes an unmanaged folder to Locked. The settings record is
// written before any bookmark is encrypted; if encryption is interrupted the
// folder reads as Locked and Lock finishes the job.
func (m *Manager) SetPassphrase(ctx context.Context, folderID string, passphrase []byte) error {
	unlock, err := m.locks.Lock(ctx, folderID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok, err := m.settings.Get(ctx, folderID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("folder %s: %w", folderID, kerrors.ErrAlreadyManaged)
	}

	m.log.Debugf("generating key pair for folder %s", folderID)
	pub, priv, err := crypto.GenerateFolderKeyPair()
	if err != nil {
		return err
	}
	salt, iv, err := crypto.GenerateSaltAndIV()
	if err != nil {
		return err
	}
	wrapped, err := crypto.WrapPrivateKey(priv, passphrase, salt, iv)
	if err != nil {
		return err
	}
	pem, err := crypto.ExportPublicKeyPEM(pub)
	if err != nil {
		return err
	}

	ns := settings.NodeSettings{
		Locked:            true,
		PublicKeyPEM:      pem,
		WrappedPrivateKey: wrapped,
		Salt:              salt,
		IV:                iv,
	}
	if err := m.settings.Set(ctx, folderID, ns); err != nil {
		return fmt.Errorf("save settings for %s: %w", folderID, err)
	}

	if _, err := m.engine.EncryptFolder(context.WithoutCancel(ctx), folderID, pub); err != nil {
		return fmt.Errorf("encrypt folder %s: %w", folderID, err)
	}
	m.log.Infof("folder %s is now locked", folderID)
	return nil
}

// Unlock decrypts a managed folder and records it as unlocked. A wrong
// passphrase returns ErrAuthentication and changes nothing. Unlocking an
// unlocked folder decrypts any stragglers and is otherwise a no-op.
func (m *Manager) Unlock(ctx context.Context, folderID string, passphrase []byte) error {
	unlock, err := m.locks.Lock(ctx, folderID)
	if err != nil {
		return err
	}
	defer unlock()

	ns, err := m.load(ctx, folderID)
	if err != nil {
		return err
	}
	priv, err := crypto.UnwrapPrivateKey(passphrase, ns.WrappedPrivateKey, ns.Salt, ns.IV)
	if err != nil {
		return err
	}

	if _, err := m.engine.DecryptFolder(ctx, folderID, priv); err != nil {
		return fmt.Errorf("decrypt folder %s: %w", folderID, err)
	}
	if !ns.Locked {
		return nil
	}

	ns.Locked = false
	if err := m.settings.Set(context.WithoutCancel(ctx), folderID, ns); err != nil {
		return fmt.Errorf("save settings for %s: %w", folderID, err)
	}
	m.log.Infof("folder %s is now unlocked", folderID)
	return nil
}

// Lock encrypts a managed folder with its stored public key and records it as
// locked. No passphrase is needed. Locking a locked folder encrypts anything
// left in plaintext.
func (m *Manager) Lock(ctx context.Context, folderID string) error {
	unlock, err := m.locks.Lock(ctx, folderID)
	if err != nil {
		return err
	}
	defer unlock()

	ns, err := m.load(ctx, folderID)
	if err != nil {
		return err
	}
	pub, err := crypto.ImportPublicKeyPEM(ns.PublicKeyPEM)
	if err != nil {
		return fmt.Errorf("folder %s public key: %w", folderID, err)
	}

	if _, err := m.engine.EncryptFolder(ctx, folderID, pub); err != nil {
		return fmt.Errorf("encrypt folder %s: %w", folderID, err)
	}
	if ns.Locked {
		return nil
	}

	ns.Locked = true
	if err := m.settings.Set(context.WithoutCancel(ctx), folderID, ns); err != nil {
		return fmt.Errorf("save settings for %s: %w", folderID, err)
	}
	m.log.Infof("folder %s is now locked", folderID)
	return nil
}

// ChangePassphrase rewraps the folder private key under a new passphrase with a
// fresh salt and IV. Bookmarks and the lock state are untouched.
func (m *Manager) ChangePassphrase(ctx context.Context, folderID string, oldPassphrase, newPassphrase []byte) error {
	unlock, err := m.locks.Lock(ctx, folderID)
	if err != nil {
		return err
	}
	defer unlock()

	ns, err := m.load(ctx, folderID)
	if err != nil {
		return err
	}
	priv, err := crypto.UnwrapPrivateKey(oldPassphrase, ns.WrappedPrivateKey, ns.Salt, ns.IV)
	if err != nil {
		return err
	}

	salt, iv, err := crypto.GenerateSaltAndIV()
	if err != nil {
		return err
	}
	wrapped, err := crypto.WrapPrivateKey(priv, newPassphrase, salt, iv)
	if err != nil {
		return err
	}

	ns.WrappedPrivateKey = wrapped
	ns.Salt = salt
	ns.IV = iv
	if err := m.settings.Set(ctx, folderID, ns); err != nil {
		return fmt.Errorf("save settings for %s: %w", folderID, err)
	}
	m.log.Infof("passphrase changed for folder %s", folderID)
	return nil
}

// Delete decrypts the folder and erases its settings record, returning it to
// Unmanaged. A wrong passphrase changes nothing.
func (m *Manager) Delete(ctx context.Context, folderID string, passphrase []byte) error {
	unlock, err := m.locks.Lock(ctx, folderID)
	if err != nil {
		return err
	}
	defer unlock()

	ns, err := m.load(ctx, folderID)
	if err != nil {
		return err
	}
	priv, err := crypto.UnwrapPrivateKey(passphrase, ns.WrappedPrivateKey, ns.Salt, ns.IV)
	if err != nil {
		return err
	}

	if _, err := m.engine.DecryptFolder(ctx, folderID, priv); err != nil {
		return fmt.Errorf("decrypt folder %s: %w", folderID, err)
	}
	if err := m.settings.Delete(context.WithoutCancel(ctx), folderID); err != nil {
		return fmt.Errorf("delete settings for %s: %w", folderID, err)
	}
	m.log.Infof("folder %s is no longer managed", folderID)
	return nil
}

// HandleCreated reacts to a new item. A bookmark created directly inside a
// locked folder triggers an encryption pass over that folder, so every
// plaintext sibling is sealed under one message key. Anything else is ignored.
func (m *Manager) HandleCreated(ctx context.Context, item bookmarks.Item) error {
	if item.IsFolder() {
		return nil
	}
	folderID := item.ParentID

	unlock, err := m.locks.Lock(ctx, folderID)
	if err != nil {
		return err
	}
	defer unlock()

	ns, ok, err := m.settings.Get(ctx, folderID)
	if err != nil {
		return err
	}
	if !ok || !ns.Locked {
		return nil
	}

	pub, err := crypto.ImportPublicKeyPEM(ns.PublicKeyPEM)
	if err != nil {
		return fmt.Errorf("folder %s public key: %w", folderID, err)
	}
	res, err := m.engine.EncryptFolder(ctx, folderID, pub)
	if err != nil {
		return fmt.Errorf("encrypt folder %s: %w", folderID, err)
	}
	m.log.Debugf("new bookmark %s in locked folder %s: encrypted %d item(s)", item.ID, folderID, res.Changed)
	return nil
}
