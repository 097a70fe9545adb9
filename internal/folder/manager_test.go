package folder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/bmlock/bmlock/internal/crypto"
	kerrors "github.com/bmlock/bmlock/internal/errors"
	"github.com/bmlock/bmlock/internal/settings"
)

type env struct {
	settings  *settings.MemoryStore
	bookmarks *bookmarks.MemoryStore
	manager   *Manager
	folderID  string
	catID     string
}

// newEnv builds a folder holding the single bookmark Cat -> http://a.
func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	ss := settings.NewMemoryStore()
	bs := bookmarks.NewMemoryStore()

	folder := bookmarks.NewFolder(bookmarks.RootID, "Private")
	if err := bs.Create(ctx, folder); err != nil {
		t.Fatal(err)
	}
	cat := bookmarks.NewBookmark(folder.ID, "Cat", "http://a")
	if err := bs.Create(ctx, cat); err != nil {
		t.Fatal(err)
	}
	return env{
		settings:  ss,
		bookmarks: bs,
		manager:   NewManager(ss, bs),
		folderID:  folder.ID,
		catID:     cat.ID,
	}
}

func (e env) item(t *testing.T, id string) bookmarks.Item {
	t.Helper()
	item, err := e.bookmarks.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return item
}

func (e env) state(t *testing.T) State {
	t.Helper()
	s, err := e.manager.State(context.Background(), e.folderID)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func assertEncrypted(t *testing.T, item bookmarks.Item, title string) {
	t.Helper()
	if item.Title == title {
		t.Errorf("title %q was not encrypted", title)
	}
	if !strings.HasPrefix(item.URL, crypto.URLPrefix) {
		t.Errorf("url %q lacks the encrypted prefix", item.URL)
	}
	if n := len(strings.Split(strings.TrimPrefix(item.URL, crypto.URLPrefix), ",")); n != 4 {
		t.Errorf("expected 4 url segments, got %d", n)
	}
}

func TestLockUnlockScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	if got := e.state(t); got != Unmanaged {
		t.Fatalf("expected unmanaged, got %s", got)
	}

	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("hunter2")); err != nil {
		t.Fatalf("SetPassphrase failed: %v", err)
	}
	if got := e.state(t); got != Locked {
		t.Fatalf("expected locked, got %s", got)
	}
	locked := e.item(t, e.catID)
	assertEncrypted(t, locked, "Cat")
	if _, err := crypto.DecodeBytes(locked.Title); err != nil {
		t.Errorf("title is not base64: %v", err)
	}

	err := e.manager.Unlock(ctx, e.folderID, []byte("wrong"))
	if !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if got := e.state(t); got != Locked {
		t.Errorf("failed unlock changed state to %s", got)
	}
	if got := e.item(t, e.catID); got.Title != locked.Title || got.URL != locked.URL {
		t.Error("failed unlock modified the bookmark")
	}

	if err := e.manager.Unlock(ctx, e.folderID, []byte("hunter2")); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if got := e.state(t); got != Unlocked {
		t.Errorf("expected unlocked, got %s", got)
	}
	if got := e.item(t, e.catID); got.Title != "Cat" || got.URL != "http://a" {
		t.Errorf("expected Cat/http://a, got %q/%q", got.Title, got.URL)
	}

	if err := e.manager.Lock(ctx, e.folderID); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if got := e.state(t); got != Locked {
		t.Errorf("expected locked, got %s", got)
	}
	assertEncrypted(t, e.item(t, e.catID), "Cat")
}

func TestSetPassphrase_AlreadyManaged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("hunter2")); err != nil {
		t.Fatal(err)
	}
	before, _, _ := e.settings.Get(ctx, e.folderID)

	err := e.manager.SetPassphrase(ctx, e.folderID, []byte("other"))
	if !errors.Is(err, kerrors.ErrAlreadyManaged) {
		t.Fatalf("expected ErrAlreadyManaged, got %v", err)
	}
	after, _, _ := e.settings.Get(ctx, e.folderID)
	if after.Version != before.Version || after.PublicKeyPEM != before.PublicKeyPEM {
		t.Error("settings changed on a rejected SetPassphrase")
	}
}

func TestTransitions_NotManaged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Unlock", func() error { return e.manager.Unlock(ctx, e.folderID, []byte("pw")) }},
		{"Lock", func() error { return e.manager.Lock(ctx, e.folderID) }},
		{"ChangePassphrase", func() error { return e.manager.ChangePassphrase(ctx, e.folderID, []byte("a"), []byte("b")) }},
		{"Delete", func() error { return e.manager.Delete(ctx, e.folderID, []byte("pw")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, kerrors.ErrNotManaged) {
				t.Errorf("expected ErrNotManaged, got %v", err)
			}
		})
	}
	if got := e.item(t, e.catID); got.Title != "Cat" {
		t.Error("bookmark changed on an unmanaged folder")
	}
}

func TestChangePassphrase(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("old")); err != nil {
		t.Fatal(err)
	}
	before, _, _ := e.settings.Get(ctx, e.folderID)
	cipher := e.item(t, e.catID)

	if err := e.manager.ChangePassphrase(ctx, e.folderID, []byte("nope"), []byte("new")); !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}

	if err := e.manager.ChangePassphrase(ctx, e.folderID, []byte("old"), []byte("new")); err != nil {
		t.Fatalf("ChangePassphrase failed: %v", err)
	}
	after, _, _ := e.settings.Get(ctx, e.folderID)
	if !after.Locked {
		t.Error("ChangePassphrase altered the lock state")
	}
	if after.PublicKeyPEM != before.PublicKeyPEM {
		t.Error("ChangePassphrase replaced the folder key pair")
	}
	if string(after.Salt) == string(before.Salt) || string(after.IV) == string(before.IV) {
		t.Error("expected a fresh salt and IV")
	}
	if got := e.item(t, e.catID); got.Title != cipher.Title || got.URL != cipher.URL {
		t.Error("ChangePassphrase touched bookmark ciphertext")
	}

	if err := e.manager.Unlock(ctx, e.folderID, []byte("old")); !errors.Is(err, kerrors.ErrAuthentication) {
		t.Errorf("old passphrase should fail, got %v", err)
	}
	if err := e.manager.Unlock(ctx, e.folderID, []byte("new")); err != nil {
		t.Fatalf("Unlock with new passphrase failed: %v", err)
	}
	if got := e.item(t, e.catID); got.Title != "Cat" {
		t.Errorf("expected Cat, got %q", got.Title)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("hunter2")); err != nil {
		t.Fatal(err)
	}

	if err := e.manager.Delete(ctx, e.folderID, []byte("wrong")); !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if got := e.state(t); got != Locked {
		t.Errorf("failed delete changed state to %s", got)
	}

	if err := e.manager.Delete(ctx, e.folderID, []byte("hunter2")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := e.state(t); got != Unmanaged {
		t.Errorf("expected unmanaged, got %s", got)
	}
	if got := e.item(t, e.catID); got.Title != "Cat" || got.URL != "http://a" {
		t.Errorf("expected plaintext restored, got %q/%q", got.Title, got.URL)
	}

	// The folder can be managed again.
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("again")); err != nil {
		t.Errorf("SetPassphrase after delete failed: %v", err)
	}
}

func TestSetPassphrase_InterruptedEncryptionHealsOnLock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	second := bookmarks.NewBookmark(e.folderID, "Dog", "http://b")
	if err := e.bookmarks.Create(ctx, second); err != nil {
		t.Fatal(err)
	}
	e.bookmarks.FailUpdateAfter = 1

	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("hunter2")); !errors.Is(err, kerrors.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if got := e.state(t); got != Locked {
		t.Fatalf("settings should already record the folder as locked, got %s", got)
	}
	assertEncrypted(t, e.item(t, e.catID), "Cat")
	if got := e.item(t, second.ID); got.Title != "Dog" || got.URL != "http://b" {
		t.Errorf("second bookmark should be untouched plaintext, got %+v", got)
	}

	e.bookmarks.FailUpdateAfter = 0
	if err := e.manager.Lock(ctx, e.folderID); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	assertEncrypted(t, e.item(t, second.ID), "Dog")

	if err := e.manager.Unlock(ctx, e.folderID, []byte("hunter2")); err != nil {
		t.Fatal(err)
	}
	if got := e.item(t, second.ID); got.Title != "Dog" {
		t.Errorf("expected Dog, got %q", got.Title)
	}
}

func TestHandleCreated(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("hunter2")); err != nil {
		t.Fatal(err)
	}
	cat := e.item(t, e.catID)

	a := bookmarks.NewBookmark(e.folderID, "New A", "http://new-a")
	b := bookmarks.NewBookmark(e.folderID, "New B", "http://new-b")
	for _, item := range []bookmarks.Item{a, b} {
		if err := e.bookmarks.Create(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.manager.HandleCreated(ctx, a); err != nil {
		t.Fatalf("HandleCreated failed: %v", err)
	}

	gotA, gotB := e.item(t, a.ID), e.item(t, b.ID)
	assertEncrypted(t, gotA, "New A")
	assertEncrypted(t, gotB, "New B")
	ua, _ := crypto.UnpackURL(crypto.URLPrefix, gotA.URL)
	ub, _ := crypto.UnpackURL(crypto.URLPrefix, gotB.URL)
	if ua.WrappedKey != ub.WrappedKey {
		t.Error("siblings created together should share one message key")
	}
	if got := e.item(t, e.catID); got.URL != cat.URL {
		t.Error("existing ciphertext was re-encrypted")
	}

	// A second notification for b finds nothing left to do.
	if err := e.manager.HandleCreated(ctx, b); err != nil {
		t.Fatal(err)
	}
	if got := e.item(t, b.ID); got.URL != gotB.URL {
		t.Error("encrypted bookmark was rewritten")
	}
}

func TestHandleCreated_Ignored(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	// Unmanaged parent.
	plain := bookmarks.NewBookmark(e.folderID, "Plain", "http://plain")
	if err := e.bookmarks.Create(ctx, plain); err != nil {
		t.Fatal(err)
	}
	if err := e.manager.HandleCreated(ctx, plain); err != nil {
		t.Fatal(err)
	}
	if got := e.item(t, plain.ID); got.URL != "http://plain" {
		t.Error("bookmark in unmanaged folder was encrypted")
	}

	// Unlocked parent.
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("pw")); err != nil {
		t.Fatal(err)
	}
	if err := e.manager.Unlock(ctx, e.folderID, []byte("pw")); err != nil {
		t.Fatal(err)
	}
	later := bookmarks.NewBookmark(e.folderID, "Later", "http://later")
	if err := e.bookmarks.Create(ctx, later); err != nil {
		t.Fatal(err)
	}
	if err := e.manager.HandleCreated(ctx, later); err != nil {
		t.Fatal(err)
	}
	if got := e.item(t, later.ID); got.URL != "http://later" {
		t.Error("bookmark in unlocked folder was encrypted")
	}

	// Folder nodes.
	sub := bookmarks.NewFolder(e.folderID, "Sub")
	if err := e.bookmarks.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if err := e.manager.HandleCreated(ctx, sub); err != nil {
		t.Fatal(err)
	}
}

// conflictStore bumps the stored version behind the manager's back once, the
// way another process writing the same record would.
type conflictStore struct {
	*settings.MemoryStore
	once sync.Once
}

func (c *conflictStore) Set(ctx context.Context, folderID string, ns settings.NodeSettings) error {
	var bumped error
	c.once.Do(func() {
		if cur, ok, err := c.MemoryStore.Get(ctx, folderID); err == nil && ok {
			bumped = c.MemoryStore.Set(ctx, folderID, cur)
		}
	})
	if bumped != nil {
		return bumped
	}
	return c.MemoryStore.Set(ctx, folderID, ns)
}

func TestChangePassphrase_VersionConflict(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("old")); err != nil {
		t.Fatal(err)
	}

	m := NewManager(&conflictStore{MemoryStore: e.settings}, e.bookmarks)
	err := m.ChangePassphrase(ctx, e.folderID, []byte("old"), []byte("new"))
	if !errors.Is(err, kerrors.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := e.manager.Unlock(ctx, e.folderID, []byte("old")); err != nil {
		t.Errorf("the losing write must not have replaced the passphrase: %v", err)
	}
}

func TestConcurrentTransitionsSameFolder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if err := e.manager.SetPassphrase(ctx, e.folderID, []byte("pw")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- e.manager.Unlock(ctx, e.folderID, []byte("pw"))
		}()
		go func() {
			defer wg.Done()
			errs <- e.manager.Lock(ctx, e.folderID)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("serialized transition failed: %v", err)
		}
	}

	// Whatever order they ran in, the record and the bookmark agree.
	item := e.item(t, e.catID)
	switch e.state(t) {
	case Locked:
		assertEncrypted(t, item, "Cat")
	case Unlocked:
		if item.Title != "Cat" || item.URL != "http://a" {
			t.Errorf("unlocked folder holds ciphertext: %+v", item)
		}
	default:
		t.Error("folder became unmanaged")
	}
	if n := e.manager.locks.size(); n != 0 {
		t.Errorf("expected lock table to drain, %d entries left", n)
	}
}
