// Package vault implements the authenticated, password-derived credential
// store of spec §4.6. Grounded on original_source/src/vault.rs, with the
// KDF upgraded to argon2id (see crypto.go) and atomic persistence kept
// intact (write-temp, rename).
package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaelvex/fabricd/internal/types"
)

const vaultVersion = 1

// Vault is the credential store. It begins Locked; Unlock populates the
// in-memory plaintext fields, Lock zeroizes them. Persistence writes only
// ciphertexts and nonces — plaintexts never reach disk.
type Vault struct {
	path string

	mu          sync.RWMutex
	unlocked    bool
	key         []byte
	salt        []byte
	credentials map[string]*types.Credential

	sweep *sweeper
}

// Open loads path if it exists, or initializes a fresh vault (with a new
// random salt) if it does not. The vault remains Locked until Unlock is
// called.
func Open(path string) (*Vault, error) {
	v := &Vault{path: path, credentials: map[string]*types.Credential{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		salt, gerr := generateSalt()
		if gerr != nil {
			return nil, wrapErr("open", types.ErrInternal, gerr)
		}
		v.salt = salt
		return v, nil
	}
	if err != nil {
		return nil, wrapErr("open", types.ErrInternal, err)
	}

	var file types.VaultFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, wrapErr("open", types.ErrInternal, fmt.Errorf("corrupt vault file: %w", err))
	}
	// file.Salt is []byte: encoding/json already base64-decoded it during
	// Unmarshal, so it is raw salt bytes here, not text to decode again.
	v.salt = file.Salt

	for _, entry := range file.Credentials {
		enc, err := base64.StdEncoding.DecodeString(entry.EncryptedValue)
		if err != nil {
			return nil, wrapErr("open", types.ErrInternal, fmt.Errorf("credential %q: bad ciphertext encoding", entry.Name))
		}
		nonce, err := base64.StdEncoding.DecodeString(entry.Nonce)
		if err != nil {
			return nil, wrapErr("open", types.ErrInternal, fmt.Errorf("credential %q: bad nonce encoding", entry.Name))
		}
		v.credentials[entry.Name] = &types.Credential{
			Name:           entry.Name,
			Type:           entry.CredentialType,
			EncryptedValue: enc,
			Nonce:          nonce,
			CreatedAt:      entry.CreatedAt,
			UpdatedAt:      entry.UpdatedAt,
			ExpiresAt:      entry.ExpiresAt,
			Metadata:       entry.Metadata,
		}
	}
	return v, nil
}

// Unlock derives the key from password and the vault's salt, then
// eagerly decrypts every record into its in-memory Plaintext field. If
// any record fails to decrypt (wrong password), the vault returns
// ErrInvalidKey and remains Locked — it does not partially unlock.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := deriveKey(password, v.salt)

	decrypted := make(map[string]string, len(v.credentials))
	for name, cred := range v.credentials {
		pt, err := open(key, cred.EncryptedValue, cred.Nonce)
		if err != nil {
			zeroize(key)
			return ErrInvalidKey
		}
		decrypted[name] = pt
	}

	v.key = key
	v.unlocked = true
	for name, pt := range decrypted {
		v.credentials[name].Plaintext = pt
	}
	return nil
}

// Lock zeroizes every plaintext and drops the cipher key. After Lock
// returns, no plaintext remains reachable from the vault.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
}

func (v *Vault) lockLocked() {
	for _, c := range v.credentials {
		c.Plaintext = zeroizedSentinel
	}
	if v.key != nil {
		zeroize(v.key)
		v.key = nil
	}
	v.unlocked = false
}

// Close locks the vault and stops its background expiry sweep, if one was
// started. Mirrors original_source/src/vault.rs's Drop impl (locks on
// drop) since Go has no destructors.
func (v *Vault) Close() {
	v.Lock()
	if v.sweep != nil {
		v.sweep.stop()
	}
}

// Store encrypts value and inserts or overwrites the named credential.
// Requires the vault to be unlocked.
func (v *Vault) Store(name, value string, ctype types.CredentialType, metadata map[string]string, expiresAt *time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return wrapErr("store", types.ErrAuthentication, ErrLocked)
	}

	ciphertext, nonce, err := seal(v.key, value)
	if err != nil {
		return wrapErr("store", types.ErrInternal, err)
	}

	now := time.Now()
	existing, ok := v.credentials[name]
	createdAt := now
	if ok {
		createdAt = existing.CreatedAt
	}

	v.credentials[name] = &types.Credential{
		Name:           name,
		Type:           ctype,
		EncryptedValue: ciphertext,
		Nonce:          nonce,
		CreatedAt:      createdAt,
		UpdatedAt:      now,
		ExpiresAt:      expiresAt,
		Metadata:       metadata,
		Plaintext:      value,
	}
	return v.saveLocked()
}

// Get returns the named credential record (including its decrypted
// Plaintext, since Unlock already populated it), or ErrNotFound.
func (v *Vault) Get(name string) (*types.Credential, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.unlocked {
		return nil, wrapErr("get", types.ErrAuthentication, ErrLocked)
	}
	cred, ok := v.credentials[name]
	if !ok {
		return nil, wrapErr("get", types.ErrNotFound, ErrNotFound)
	}
	clone := *cred
	return &clone, nil
}

// GetValue returns just the named credential's plaintext value.
func (v *Vault) GetValue(name string) (string, error) {
	cred, err := v.Get(name)
	if err != nil {
		return "", err
	}
	return cred.Plaintext, nil
}

// Delete removes the named credential, requiring the vault to be
// unlocked.
func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return wrapErr("delete", types.ErrAuthentication, ErrLocked)
	}
	if _, ok := v.credentials[name]; !ok {
		return wrapErr("delete", types.ErrNotFound, ErrNotFound)
	}
	delete(v.credentials, name)
	return v.saveLocked()
}

// List returns every credential name, regardless of lock state (names are
// not secret).
func (v *Vault) List() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.credentials))
	for name := range v.credentials {
		names = append(names, name)
	}
	return names
}

// ListByType returns every credential of the given type.
func (v *Vault) ListByType(t types.CredentialType) []*types.Credential {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []*types.Credential
	for _, c := range v.credentials {
		if c.Type == t {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out
}

// Exists reports whether name is present, regardless of lock state.
func (v *Vault) Exists(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.credentials[name]
	return ok
}

// ExpiringSoon returns every credential whose ExpiresAt falls within the
// given window from now.
func (v *Vault) ExpiringSoon(within time.Duration) []*types.Credential {
	v.mu.RLock()
	defer v.mu.RUnlock()
	now := time.Now()
	var out []*types.Credential
	for _, c := range v.credentials {
		if c.ExpiringSoon(now, within) {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out
}

// saveLocked persists the vault atomically (write-temp, rename). Caller
// must hold v.mu for writing.
func (v *Vault) saveLocked() error {
	file := types.VaultFile{
		Version: vaultVersion,
		Salt:    v.salt,
	}
	for _, c := range v.credentials {
		file.Credentials = append(file.Credentials, types.VaultFileEntry{
			Name:           c.Name,
			CredentialType: c.Type,
			EncryptedValue: base64.StdEncoding.EncodeToString(c.EncryptedValue),
			Nonce:          base64.StdEncoding.EncodeToString(c.Nonce),
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
			ExpiresAt:      c.ExpiresAt,
			Metadata:       c.Metadata,
		})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return wrapErr("save", types.ErrInternal, err)
	}

	dir := filepath.Dir(v.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return wrapErr("save", types.ErrInternal, err)
		}
	}

	tmp := v.path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return wrapErr("save", types.ErrInternal, err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		os.Remove(tmp)
		return wrapErr("save", types.ErrInternal, err)
	}
	return nil
}
