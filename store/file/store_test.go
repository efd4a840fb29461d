package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goliatone/go-drive-gateway/core"
)

func TestStore_LoadMissingFileIsNotFound(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "token.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestStore_SaveLoadRoundTripWithRestrictedMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	credential := core.Credential{AccessToken: "a", RefreshToken: "r", ExpiryEpochMs: 1000, Scopes: []string{core.DriveScope}}
	if err := store.Save(context.Background(), credential); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode().Perm())
	}
	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AccessToken != "a" || loaded.RefreshToken != "r" || loaded.ExpiryEpochMs != 1000 {
		t.Fatalf("unexpected credential %#v", loaded)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Fatalf("expected temp file to be renamed, found %s", entry.Name())
		}
	}
}

func TestStore_ReadsAuthorizedUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	payload := `{"type":"authorized_user","client_id":"id","client_secret":"s","refresh_token":"legacy"}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := New(path)
	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.RefreshToken != "legacy" {
		t.Fatalf("expected legacy refresh token, got %#v", loaded)
	}
}

func TestStore_ConcurrentSavesLeaveValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, _ := New(path)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			other, _ := New(path)
			if err := other.Save(context.Background(), core.Credential{AccessToken: "a", ExpiryEpochMs: int64(i + 1)}); err != nil {
				t.Errorf("save %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load after concurrent saves: %v", err)
	}
	if loaded.AccessToken != "a" || loaded.ExpiryEpochMs == 0 {
		t.Fatalf("unexpected credential %#v", loaded)
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected empty path to fail")
	}
}
