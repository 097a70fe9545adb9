package engine

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bmlock/bmlock/internal/bookmarks"
	"github.com/bmlock/bmlock/internal/crypto"
	kerrors "github.com/bmlock/bmlock/internal/errors"
)

var (
	keysOnce sync.Once
	keyPairs [2]*rsa.PrivateKey
	keysErr  error
)

// testKeys returns two distinct key pairs shared by the package's tests.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		for i := range keyPairs {
			_, priv, err := crypto.GenerateFolderKeyPair()
			if err != nil {
				keysErr = err
				return
			}
			keyPairs[i] = priv
		}
	})
	if keysErr != nil {
		t.Fatalf("GenerateFolderKeyPair failed: %v", keysErr)
	}
	return keyPairs[0], keyPairs[1]
}

type fixture struct {
	store    *bookmarks.MemoryStore
	folderID string
	ids      []string
}

func newFixture(t *testing.T, pairs ...[2]string) fixture {
	t.Helper()
	ctx := context.Background()
	store := bookmarks.NewMemoryStore()
	folder := bookmarks.NewFolder(bookmarks.RootID, "Private")
	if err := store.Create(ctx, folder); err != nil {
		t.Fatal(err)
	}
	f := fixture{store: store, folderID: folder.ID}
	for _, p := range pairs {
		b := bookmarks.NewBookmark(folder.ID, p[0], p[1])
		if err := store.Create(ctx, b); err != nil {
			t.Fatal(err)
		}
		f.ids = append(f.ids, b.ID)
	}
	return f
}

func (f fixture) item(t *testing.T, id string) bookmarks.Item {
	t.Helper()
	item, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return item
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	priv, _ := testKeys(t)
	f := newFixture(t,
		[2]string{"Cat", "http://a"},
		[2]string{"", ""},
		[2]string{"Ünïcødé, with commas", "https://example.com/?q=a,b&c=d"},
	)
	e := New(f.store)

	res, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey)
	if err != nil {
		t.Fatalf("EncryptFolder failed: %v", err)
	}
	if res.Changed != 3 || res.Skipped != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	for _, id := range f.ids {
		item := f.item(t, id)
		if !strings.HasPrefix(item.URL, crypto.URLPrefix) {
			t.Errorf("url %q lacks prefix", item.URL)
		}
		if n := len(strings.Split(strings.TrimPrefix(item.URL, crypto.URLPrefix), ",")); n != 4 {
			t.Errorf("expected 4 url segments, got %d", n)
		}
		if _, err := crypto.DecodeBytes(item.Title); err != nil {
			t.Errorf("title %q is not base64: %v", item.Title, err)
		}
	}
	if f.item(t, f.ids[0]).Title == "Cat" {
		t.Error("title was not encrypted")
	}

	res, err = e.DecryptFolder(ctx, f.folderID, priv)
	if err != nil {
		t.Fatalf("DecryptFolder failed: %v", err)
	}
	if res.Changed != 3 {
		t.Errorf("expected 3 decrypted, got %+v", res)
	}

	want := [][2]string{{"Cat", "http://a"}, {"", ""}, {"Ünïcødé, with commas", "https://example.com/?q=a,b&c=d"}}
	for i, id := range f.ids {
		item := f.item(t, id)
		if item.Title != want[i][0] || item.URL != want[i][1] {
			t.Errorf("item %d: got (%q, %q), want (%q, %q)", i, item.Title, item.URL, want[i][0], want[i][1])
		}
	}
}

func TestEncryptFolder_SharesOneWrappedKey(t *testing.T) {
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"a", "http://a"}, [2]string{"b", "http://b"})

	if _, err := New(f.store).EncryptFolder(context.Background(), f.folderID, &priv.PublicKey); err != nil {
		t.Fatal(err)
	}

	first, err := crypto.UnpackURL(crypto.URLPrefix, f.item(t, f.ids[0]).URL)
	if err != nil {
		t.Fatal(err)
	}
	second, err := crypto.UnpackURL(crypto.URLPrefix, f.item(t, f.ids[1]).URL)
	if err != nil {
		t.Fatal(err)
	}
	if first.WrappedKey != second.WrappedKey {
		t.Error("expected one wrapped message key per pass")
	}
	if first.TitleIV == first.URLIV || first.TitleIV == second.TitleIV {
		t.Error("expected independent IVs per field and item")
	}
}

func TestEncryptFolder_Idempotent(t *testing.T) {
	ctx := context.Background()
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"Cat", "http://a"})
	e := New(f.store)

	if _, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey); err != nil {
		t.Fatal(err)
	}
	once := f.item(t, f.ids[0])

	res, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 0 || res.Skipped != 1 {
		t.Errorf("expected nothing to change, got %+v", res)
	}
	twice := f.item(t, f.ids[0])
	if once.Title != twice.Title || once.URL != twice.URL {
		t.Error("second encryption pass rewrote an encrypted item")
	}
}

func TestDecryptFolder_PlaintextIsNoOp(t *testing.T) {
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"Cat", "http://a"})

	res, err := New(f.store).DecryptFolder(context.Background(), f.folderID, priv)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 0 {
		t.Errorf("expected no changes, got %+v", res)
	}
	if item := f.item(t, f.ids[0]); item.Title != "Cat" || item.URL != "http://a" {
		t.Errorf("plaintext item changed: %+v", item)
	}
}

func TestDecryptFolder_WrongKeyLeavesItemsUntouched(t *testing.T) {
	ctx := context.Background()
	priv, other := testKeys(t)
	f := newFixture(t, [2]string{"a", "http://a"}, [2]string{"b", "http://b"})
	e := New(f.store)

	if _, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey); err != nil {
		t.Fatal(err)
	}
	before := []bookmarks.Item{f.item(t, f.ids[0]), f.item(t, f.ids[1])}

	_, err := e.DecryptFolder(ctx, f.folderID, other)
	if !errors.Is(err, kerrors.ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	if !kerrors.IsWrongPassword(err) {
		t.Error("key mismatch should read as a wrong password")
	}
	for i, id := range f.ids {
		if got := f.item(t, id); got.Title != before[i].Title || got.URL != before[i].URL {
			t.Errorf("item %d was modified by a failed pass", i)
		}
	}
}

func TestDecryptFolder_TamperedItemAbortsPass(t *testing.T) {
	ctx := context.Background()
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"a", "http://a"}, [2]string{"b", "http://b"})
	e := New(f.store)

	if _, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey); err != nil {
		t.Fatal(err)
	}
	// Swap the title of the second item for another valid ciphertext.
	forged := crypto.EncodeBytes(make([]byte, 24))
	if err := f.store.UpdateItem(ctx, f.ids[1], bookmarks.Update{Title: &forged}); err != nil {
		t.Fatal(err)
	}
	first := f.item(t, f.ids[0])

	if _, err := e.DecryptFolder(ctx, f.folderID, priv); !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if got := f.item(t, f.ids[0]); got.Title != first.Title {
		t.Error("first item was decrypted even though the pass failed")
	}
}

func TestDecryptFolder_Malformed(t *testing.T) {
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"x", crypto.URLPrefix + "onlytwo,segments"})

	_, err := New(f.store).DecryptFolder(context.Background(), f.folderID, priv)
	if !errors.Is(err, kerrors.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestEncryptFolder_SkipsFolders(t *testing.T) {
	ctx := context.Background()
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"a", "http://a"})
	sub := bookmarks.NewFolder(f.folderID, "Sub")
	if err := f.store.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}
	nested := bookmarks.NewBookmark(sub.ID, "nested", "http://nested")
	if err := f.store.Create(ctx, nested); err != nil {
		t.Fatal(err)
	}

	res, err := New(f.store).EncryptFolder(ctx, f.folderID, &priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 1 || res.Skipped != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if got := f.item(t, sub.ID); got.Title != "Sub" {
		t.Errorf("sub-folder was rewritten: %+v", got)
	}
	if got := f.item(t, nested.ID); got.URL != "http://nested" {
		t.Errorf("nested bookmark was rewritten: %+v", got)
	}
}

func TestEncryptFolder_InterruptedApplyResumes(t *testing.T) {
	ctx := context.Background()
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"a", "http://a"}, [2]string{"b", "http://b"})
	f.store.FailUpdateAfter = 1
	e := New(f.store)

	res, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey)
	if !errors.Is(err, kerrors.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if res.Changed != 1 {
		t.Errorf("expected one item written before the failure, got %+v", res)
	}
	if got := f.item(t, f.ids[1]); got.Title != "b" || got.URL != "http://b" {
		t.Errorf("second item should still be plaintext: %+v", got)
	}

	f.store.FailUpdateAfter = 0
	if _, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey); err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if _, err := e.DecryptFolder(ctx, f.folderID, priv); err != nil {
		t.Fatalf("decrypt after resume failed: %v", err)
	}
	for i, want := range []string{"a", "b"} {
		if got := f.item(t, f.ids[i]); got.Title != want {
			t.Errorf("item %d: got title %q, want %q", i, got.Title, want)
		}
	}
}

func TestEncryptFolder_CancelledBeforeWrite(t *testing.T) {
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"a", "http://a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(f.store).EncryptFolder(ctx, f.folderID, &priv.PublicKey); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := f.item(t, f.ids[0]); got.Title != "a" {
		t.Error("cancelled pass wrote to the store")
	}
}

func TestWithPrefix(t *testing.T) {
	ctx := context.Background()
	priv, _ := testKeys(t)
	f := newFixture(t, [2]string{"a", "http://a"})
	e := New(f.store, WithPrefix("enc:"))

	if _, err := e.EncryptFolder(ctx, f.folderID, &priv.PublicKey); err != nil {
		t.Fatal(err)
	}
	if got := f.item(t, f.ids[0]); !strings.HasPrefix(got.URL, "enc:") {
		t.Errorf("expected custom prefix, got %q", got.URL)
	}
	if _, err := e.DecryptFolder(ctx, f.folderID, priv); err != nil {
		t.Fatal(err)
	}
	if got := f.item(t, f.ids[0]); got.URL != "http://a" {
		t.Errorf("expected restored url, got %q", got.URL)
	}
}
