// ABOUTME: Tests for the file-backed permission checker
// ABOUTME: Covers external edits taking effect without restart and missing files

package permissions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMissingGrantsFileMeansUngranted(t *testing.T) {
	c := NewFileChecker(filepath.Join(t.TempDir(), "grants.json"))

	if c.FineLocation() {
		t.Error("FineLocation = true with no grants file")
	}
	if c.BackgroundLocation() {
		t.Error("BackgroundLocation = true with no grants file")
	}
}

func TestExternalEditsAreSeenImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.json")
	c := NewFileChecker(path)

	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing grants file: %v", err)
		}
	}

	write(`{"fine_location": true, "background_location": true}`)
	if !c.FineLocation() || !c.BackgroundLocation() {
		t.Fatal("grants not visible after file write")
	}

	// Revoke background only; no re-check call or restart needed.
	write(`{"fine_location": true, "background_location": false}`)
	if !c.FineLocation() {
		t.Error("FineLocation revoked unexpectedly")
	}
	if c.BackgroundLocation() {
		t.Error("BackgroundLocation still granted after revocation")
	}
}

func TestCorruptGrantsFileMeansUngranted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("writing grants file: %v", err)
	}

	c := NewFileChecker(path)
	if c.FineLocation() || c.BackgroundLocation() {
		t.Error("corrupt grants file granted permissions")
	}
}
