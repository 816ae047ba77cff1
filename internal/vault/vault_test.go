// ABOUTME: Tests for the encrypted credential vault
// ABOUTME: Covers pair atomicity, wipe semantics, and corruption tolerance

package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kebs/onloc-agent/internal/model"
)

func TestGetOnEmptyVault(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	token, user, ok := v.Get()
	if ok {
		t.Error("Get on empty vault reported credentials")
	}
	if token != "" || user != nil {
		t.Errorf("Get on empty vault = (%q, %v), want empty pair", token, user)
	}
}

func TestSetGetClear(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	want := &model.User{ID: 42, Username: "alice", Email: "alice@example.com"}
	if err := v.Set("bearer-token-abc", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	token, user, ok := v.Get()
	if !ok {
		t.Fatal("Get after Set reported no credentials")
	}
	if token != "bearer-token-abc" {
		t.Errorf("token = %q, want %q", token, "bearer-token-abc")
	}
	if user == nil || user.ID != 42 || user.Username != "alice" {
		t.Errorf("user = %+v, want %+v", user, want)
	}

	if err := v.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, _, ok := v.Get(); ok {
		t.Error("Get after Clear reported credentials")
	}

	// Clear on an already-empty vault is a no-op, not an error.
	if err := v.Clear(); err != nil {
		t.Errorf("Clear on empty vault error = %v", err)
	}
}

func TestSetRejectsIncompletePair(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := v.Set("bearer-token-abc", nil); err == nil {
		t.Error("Set with nil user succeeded, want error")
	}
	if err := v.Set("", &model.User{ID: 1, Username: "alice"}); err == nil {
		t.Error("Set with empty token succeeded, want error")
	}

	if _, _, ok := v.Get(); ok {
		t.Error("rejected Set left credentials behind")
	}
}

func TestSetReplacesPair(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := v.Set("first", &model.User{ID: 1, Username: "one"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := v.Set("second", &model.User{ID: 2, Username: "two"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	token, user, ok := v.Get()
	if !ok {
		t.Fatal("Get reported no credentials")
	}
	if token != "second" || user.ID != 2 {
		t.Errorf("Get = (%q, id=%d), want the second pair", token, user.ID)
	}
}

func TestCorruptedVaultReadsAsEmpty(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := v.Set("token", &model.User{ID: 9, Username: "nine"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Flip bytes in the sealed blob.
	path := filepath.Join(dir, vaultFileName)
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading vault blob: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("writing corrupted blob: %v", err)
	}

	if _, _, ok := v.Get(); ok {
		t.Error("Get on corrupted vault reported credentials")
	}

	// Truncated blob, shorter than a nonce.
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("writing truncated blob: %v", err)
	}
	if _, _, ok := v.Get(); ok {
		t.Error("Get on truncated vault reported credentials")
	}
}

func TestSurvivesReopenWithSameKey(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := v.Set("persisted", &model.User{ID: 5, Username: "five"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopening vault: %v", err)
	}
	token, user, ok := reopened.Get()
	if !ok || token != "persisted" || user.ID != 5 {
		t.Errorf("Get after reopen = (%q, %+v, %v), want stored pair", token, user, ok)
	}
}
