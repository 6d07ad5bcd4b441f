package vault

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaelvex/fabricd/internal/types"
)

// Seed scenario 4: store, lock, reopen from disk, unlock with the same
// password, and the plaintext round-trips exactly.
func TestVault_RoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")

	v, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := v.Unlock("correct horse battery staple"); err != nil {
		t.Fatalf("unlock fresh vault: %v", err)
	}
	if err := v.StoreAPIKey("anthropic_api_key", "sk-ant-test-123"); err != nil {
		t.Fatalf("store: %v", err)
	}
	v.Lock()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := reopened.Unlock("correct horse battery staple"); err != nil {
		t.Fatalf("unlock reopened vault: %v", err)
	}
	got, err := reopened.GetValue("anthropic_api_key")
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	if got != "sk-ant-test-123" {
		t.Fatalf("got %q, want sk-ant-test-123", got)
	}
}

// A wrong password on unlock returns ErrInvalidKey and leaves the vault
// locked, without mutating any stored record.
func TestVault_WrongPasswordRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")

	v, _ := Open(path)
	if err := v.Unlock("right-password"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := v.StoreAPIKey("k", "secret-value"); err != nil {
		t.Fatalf("store: %v", err)
	}
	v.Lock()

	reopened, _ := Open(path)
	err := reopened.Unlock("wrong-password")
	if err != ErrInvalidKey {
		t.Fatalf("got %v, want ErrInvalidKey", err)
	}

	if _, err := reopened.GetValue("k"); err == nil {
		t.Fatal("expected Get to fail while vault remains locked")
	}
}

// Storing the same name twice overwrites the value but preserves the
// original CreatedAt timestamp.
func TestVault_StoreOverwriteKeepsCreatedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, _ := Open(path)
	_ = v.Unlock("pw")

	if err := v.Store("tok", "v1", types.CredentialToken, nil, nil); err != nil {
		t.Fatalf("store v1: %v", err)
	}
	first, _ := v.Get("tok")

	time.Sleep(time.Millisecond)
	if err := v.Store("tok", "v2", types.CredentialToken, nil, nil); err != nil {
		t.Fatalf("store v2: %v", err)
	}
	second, err := v.Get("tok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if second.Plaintext != "v2" {
		t.Fatalf("got %q, want v2", second.Plaintext)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("CreatedAt changed on overwrite: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatal("UpdatedAt did not advance on overwrite")
	}
}

// Lock() replaces every credential's Plaintext with the empty sentinel;
// no plaintext remains reachable after locking.
func TestVault_LockZeroizesPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, _ := Open(path)
	_ = v.Unlock("pw")
	_ = v.StoreAPIKey("k", "sk-secret")

	cred, _ := v.Get("k")
	if cred.Plaintext != "sk-secret" {
		t.Fatalf("expected plaintext before lock, got %q", cred.Plaintext)
	}

	v.Lock()

	if _, err := v.GetValue("k"); !errors.Is(err, ErrLocked) {
		t.Fatalf("got %v, want ErrLocked", err)
	}
}

// Operating on a locked vault (Store/Delete) returns ErrLocked rather
// than panicking or silently no-oping.
func TestVault_OperationsRejectedWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, _ := Open(path)

	if err := v.Store("k", "v", types.CredentialCustom, nil, nil); err == nil {
		t.Fatal("expected Store to fail on a locked vault")
	}
	if err := v.Delete("k"); err == nil {
		t.Fatal("expected Delete to fail on a locked vault")
	}
}

// Deleting an unknown credential returns ErrNotFound.
func TestVault_DeleteUnknownNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, _ := Open(path)
	_ = v.Unlock("pw")

	if err := v.Delete("nope"); err == nil {
		t.Fatal("expected ErrNotFound for unknown credential")
	}
}

// ExpiringSoon returns only credentials whose expiry falls within the
// requested window, excluding already-expired and far-future ones.
func TestVault_ExpiringSoon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, _ := Open(path)
	_ = v.Unlock("pw")

	now := time.Now()
	soon := now.Add(time.Hour)
	far := now.Add(30 * 24 * time.Hour)
	past := now.Add(-time.Hour)

	_ = v.Store("soon", "v", types.CredentialToken, nil, &soon)
	_ = v.Store("far", "v", types.CredentialToken, nil, &far)
	_ = v.Store("expired", "v", types.CredentialToken, nil, &past)
	_ = v.Store("never", "v", types.CredentialToken, nil, nil)

	expiring := v.ExpiringSoon(2 * time.Hour)
	if len(expiring) != 1 || expiring[0].Name != "soon" {
		t.Fatalf("got %d entries, want exactly [soon]", len(expiring))
	}
}

// List and Exists work regardless of lock state, since names carry no
// secret material.
func TestVault_ListAndExistsIgnoreLockState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	v, _ := Open(path)
	_ = v.Unlock("pw")
	_ = v.StoreAPIKey("k1", "v1")
	v.Lock()

	if !v.Exists("k1") {
		t.Fatal("expected Exists to report true while locked")
	}
	names := v.List()
	if len(names) != 1 || names[0] != "k1" {
		t.Fatalf("got %v, want [k1]", names)
	}
}
