// Package engine applies field-level AES-GCM to the direct bookmark children of
// a folder.
//
// Every pass runs in two phases. Plan computes the new title and url of each
// child, doing all cryptographic work up front; Apply then writes them back one
// item at a time, title and url together. A crypto failure during planning
// leaves the folder untouched. Both phases skip items whose state already
// matches the target, so a pass interrupted during Apply can simply be rerun.
package engine

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/bmlock/bmlock/internal/crypto"
	logger "github.com/bmlock/bmlock/internal/logging"
)

// Change is the planned rewrite of one bookmark.
type Change struct {
	ID    string
	Title string
	URL   string
}

// Result counts what a pass did.
type Result struct {
	Changed int
	Skipped int
}

// Engine encrypts and decrypts folders held in a bookmarks.Store.
type Engine struct {
	store  bookmarks.Store
	prefix string
	log    logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrefix overrides the encrypted-url prefix. Only tests and migrations
// should need this.
func WithPrefix(prefix string) Option {
	return func(e *Engine) { e.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine over store.
func New(store bookmarks.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		prefix: crypto.URLPrefix,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EncryptFolder encrypts every plaintext bookmark directly inside folderID.
// Cancellation is observed until the first write; after that the pass runs to
// completion.
func (e *Engine) EncryptFolder(ctx context.Context, folderID string, pub *rsa.PublicKey) (Result, error) {
	children, err := e.store.ListChildren(ctx, folderID)
	if err != nil {
		return Result{}, fmt.Errorf("list children of %s: %w", folderID, err)
	}
	changes, err := e.PlanEncrypt(children, pub)
	if err != nil {
		return Result{}, err
	}
	return e.run(ctx, "encrypt", folderID, len(children), changes)
}

// DecryptFolder restores every encrypted bookmark directly inside folderID.
func (e *Engine) DecryptFolder(ctx context.Context, folderID string, priv *rsa.PrivateKey) (Result, error) {
	children, err := e.store.ListChildren(ctx, folderID)
	if err != nil {
		return Result{}, fmt.Errorf("list children of %s: %w", folderID, err)
	}
	changes, err := e.PlanDecrypt(children, priv)
	if err != nil {
		return Result{}, err
	}
	return e.run(ctx, "decrypt", folderID, len(children), changes)
}

func (e *Engine) run(ctx context.Context, op, folderID string, total int, changes []Change) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	e.log.Debugf("%s %s: %d of %d children to rewrite", op, folderID, len(changes), total)

	applied, err := e.Apply(context.WithoutCancel(ctx), changes)
	res := Result{Changed: applied, Skipped: total - len(changes)}
	if err != nil {
		return res, err
	}
	e.log.Infof("%sed %d bookmark(s) in folder %s", op, applied, folderID)
	return res, nil
}

// PlanEncrypt computes the ciphertext of every plaintext bookmark in children.
// One message key is generated for the whole pass and wrapped once; every
// encrypted url embeds the same wrapped key. Folders and items that already
// carry the prefix are skipped.
func (e *Engine) PlanEncrypt(children []bookmarks.Item, pub *rsa.PublicKey) ([]Change, error) {
	var pending []bookmarks.Item
	for _, item := range children {
		if item.IsFolder() || crypto.IsEncrypted(e.prefix, item.URL) {
			continue
		}
		pending = append(pending, item)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	msgKey, err := crypto.GenerateMessageKey()
	if err != nil {
		return nil, err
	}
	defer msgKey.Destroy()

	wrapped, err := crypto.WrapMessageKey(msgKey, pub)
	if err != nil {
		return nil, err
	}
	wrappedText := crypto.EncodeBytes(wrapped)

	changes := make([]Change, 0, len(pending))
	for _, item := range pending {
		c, err := e.encryptItem(item, msgKey, wrappedText)
		if err != nil {
			return nil, fmt.Errorf("encrypt bookmark %s: %w", item.ID, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (e *Engine) encryptItem(item bookmarks.Item, msgKey crypto.MessageKey, wrappedKey string) (Change, error) {
	titleIV, err := crypto.GenerateIV()
	if err != nil {
		return Change{}, err
	}
	urlIV, err := crypto.GenerateIV()
	if err != nil {
		return Change{}, err
	}

	cipherTitle, err := msgKey.Seal(titleIV, []byte(item.Title))
	if err != nil {
		return Change{}, err
	}
	cipherURL, err := msgKey.Seal(urlIV, []byte(item.URL))
	if err != nil {
		return Change{}, err
	}

	return Change{
		ID:    item.ID,
		Title: crypto.EncodeBytes(cipherTitle),
		URL: crypto.PackURL(e.prefix, crypto.EncodedURL{
			CipherURL:  crypto.EncodeBytes(cipherURL),
			TitleIV:    crypto.EncodeBytes(titleIV),
			URLIV:      crypto.EncodeBytes(urlIV),
			WrappedKey: wrappedKey,
		}),
	}, nil
}

// PlanDecrypt computes the plaintext of every encrypted bookmark in children.
// Each distinct wrapped message key is unwrapped once. Any failure aborts the
// whole plan.
func (e *Engine) PlanDecrypt(children []bookmarks.Item, priv *rsa.PrivateKey) ([]Change, error) {
	keys := make(map[string]crypto.MessageKey)
	defer func() {
		for _, k := range keys {
			k.Destroy()
		}
	}()

	var changes []Change
	for _, item := range children {
		if item.IsFolder() || !crypto.IsEncrypted(e.prefix, item.URL) {
			continue
		}
		c, err := e.decryptItem(item, priv, keys)
		if err != nil {
			return nil, fmt.Errorf("decrypt bookmark %s: %w", item.ID, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (e *Engine) decryptItem(item bookmarks.Item, priv *rsa.PrivateKey, keys map[string]crypto.MessageKey) (Change, error) {
	enc, err := crypto.UnpackURL(e.prefix, item.URL)
	if err != nil {
		return Change{}, err
	}

	msgKey, ok := keys[enc.WrappedKey]
	if !ok {
		wrapped, err := crypto.DecodeBytes(enc.WrappedKey)
		if err != nil {
			return Change{}, err
		}
		msgKey, err = crypto.UnwrapMessageKey(wrapped, priv)
		if err != nil {
			return Change{}, err
		}
		keys[enc.WrappedKey] = msgKey
	}

	titleIV, err := crypto.DecodeBytes(enc.TitleIV)
	if err != nil {
		return Change{}, err
	}
	urlIV, err := crypto.DecodeBytes(enc.URLIV)
	if err != nil {
		return Change{}, err
	}
	cipherTitle, err := crypto.DecodeBytes(item.Title)
	if err != nil {
		return Change{}, err
	}
	cipherURL, err := crypto.DecodeBytes(enc.CipherURL)
	if err != nil {
		return Change{}, err
	}

	title, err := msgKey.Open(titleIV, cipherTitle)
	if err != nil {
		return Change{}, err
	}
	url, err := msgKey.Open(urlIV, cipherURL)
	if err != nil {
		return Change{}, err
	}
	return Change{ID: item.ID, Title: string(title), URL: string(url)}, nil
}

// Apply writes changes in order and returns how many were written. Each write
// sets title and url together.
func (e *Engine) Apply(ctx context.Context, changes []Change) (int, error) {
	for i, c := range changes {
		title, url := c.Title, c.URL
		if err := e.store.UpdateItem(ctx, c.ID, bookmarks.Update{Title: &title, URL: &url}); err != nil {
			return i, fmt.Errorf("update bookmark %s: %w", c.ID, err)
		}
	}
	return len(changes), nil
}
