package credstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/courtrace/agent/internal/model"
)

func TestSaveAndLoadAllRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "credentials.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	u := model.User{Username: "alice", Cookie: "sess=abc", CookieExpiresAt: now.Add(time.Hour)}
	if err := store.Save(u, now); err != nil {
		t.Fatalf("Save: %v", err)
	}

	users, active, err := store.LoadAll(now)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if active != "alice" {
		t.Fatalf("expected active user alice, got %q", active)
	}
	got, ok := users["alice"]
	if !ok {
		t.Fatal("expected alice in loaded users")
	}
	if got.Cookie != "sess=abc" {
		t.Fatalf("unexpected cookie: %q", got.Cookie)
	}
}

func TestLoadAllEvictsExpired(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "credentials.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	u := model.User{Username: "bob", Cookie: "sess=old", CookieExpiresAt: now.Add(-time.Minute)}
	if err := store.Save(u, now); err != nil {
		t.Fatalf("Save: %v", err)
	}

	users, _, err := store.LoadAll(now)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := users["bob"]; ok {
		t.Fatal("expected expired user to be evicted")
	}
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "credentials.json"), WithEncryptionSecret("a-test-secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	u := model.User{Username: "carol", Cookie: "sess=enc", CookieExpiresAt: now.Add(time.Hour)}
	if err := store.Save(u, now); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := New(filepath.Join(dir, "credentials.json"), WithEncryptionSecret("a-test-secret"))
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	users, _, err := reopened.LoadAll(now)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if users["carol"].Cookie != "sess=enc" {
		t.Fatalf("unexpected cookie after encrypted round trip: %+v", users["carol"])
	}
}

func TestDeleteAndClear(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "credentials.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	u := model.User{Username: "dave", Cookie: "sess=d", CookieExpiresAt: now.Add(time.Hour)}
	if err := store.Save(u, now); err != nil {
		t.Fatalf("Save: %v", err)
	}
	removed, err := store.Delete("dave")
	if err != nil || !removed {
		t.Fatalf("Delete: removed=%v err=%v", removed, err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
}
