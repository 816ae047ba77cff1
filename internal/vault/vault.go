// ABOUTME: Encrypted-at-rest vault for the bearer token and user record
// ABOUTME: The pair is stored as one sealed blob so it is read and wiped atomically

package vault

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kebs/onloc-agent/internal/model"
)

const (
	keyFileName   = "vault.key"
	vaultFileName = "credentials.vault"
)

// credentials is the plaintext layout inside the sealed blob. Token and user
// live in one record so they can never be observed half-written: either the
// blob decrypts and both are present, or neither is.
type credentials struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Vault stores the authentication credential pair encrypted at rest.
//
// Get never fails: an unreadable, missing, or undecryptable vault reads as
// "no credentials", which forces re-authentication instead of crashing the
// caller. Set and Clear are durable before they return.
type Vault struct {
	mu     sync.Mutex
	path   string
	key    []byte
	logger *slog.Logger
}

// Open prepares a vault rooted at dir. The master key is created on first
// use and kept in a mode-0600 file next to the vault blob.
func Open(dir string) (*Vault, error) {
	logger := slog.Default().With("component", "vault")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating vault directory: %w", err)
	}

	key, err := loadOrCreateKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}

	return &Vault{
		path:   filepath.Join(dir, vaultFileName),
		key:    key,
		logger: logger,
	}, nil
}

// Get returns the stored token and user, or ok=false when the vault is
// empty, unreadable, or corrupted. It never returns one half of the pair
// without the other.
func (v *Vault) Get() (token string, user *model.User, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sealed, err := os.ReadFile(v.path)
	if err != nil {
		if !os.IsNotExist(err) {
			v.logger.Warn("vault unreadable, treating as empty", "error", err)
		}
		return "", nil, false
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		v.logger.Warn("vault key unusable, treating as empty", "error", err)
		return "", nil, false
	}

	if len(sealed) < aead.NonceSize() {
		v.logger.Warn("vault blob truncated, treating as empty")
		return "", nil, false
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		v.logger.Warn("vault blob undecryptable, treating as empty", "error", err)
		return "", nil, false
	}

	var creds credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		v.logger.Warn("vault blob undecodable, treating as empty", "error", err)
		return "", nil, false
	}
	if creds.Token == "" || creds.User == nil {
		return "", nil, false
	}

	return creds.Token, creds.User, true
}

// Set seals and persists the credential pair, replacing any previous pair.
// Both halves are required — the vault only ever holds a complete pair.
// The blob is written to a temp file and renamed into place so a crash
// mid-write leaves the old pair intact.
func (v *Vault) Set(token string, user *model.User) error {
	if token == "" || user == nil {
		return fmt.Errorf("credential pair is incomplete")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	plaintext, err := json.Marshal(credentials{Token: token, User: user})
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return fmt.Errorf("initializing cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := append(nonce, aead.Seal(nil, nonce, plaintext, nil)...)

	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing vault: %w", err)
	}

	v.logger.Debug("credentials stored", "user_id", user.ID)
	return nil
}

// Clear wipes the whole vault. Subsequent Get calls report no credentials.
func (v *Vault) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wiping vault: %w", err)
	}

	v.logger.Debug("vault cleared")
	return nil
}

// loadOrCreateKey reads the master key, generating a fresh one on first use.
func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("master key at %s has wrong size %d", path, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading master key: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("writing master key: %w", err)
	}
	return key, nil
}
