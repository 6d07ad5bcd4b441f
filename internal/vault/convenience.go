package vault

import (
	"fmt"
	"time"

	"github.com/kaelvex/fabricd/internal/types"
)

// StoreAPIKey is a convenience wrapper over Store for CredentialAPIKey
// entries, grounded on original_source/src/vault.rs's store_api_key.
func (v *Vault) StoreAPIKey(name, value string) error {
	return v.Store(name, value, types.CredentialAPIKey, nil, nil)
}

// StoreToken stores a bearer/OAuth token, optionally with an expiry.
func (v *Vault) StoreToken(name, value string, expiresAt *time.Time) error {
	return v.Store(name, value, types.CredentialToken, nil, expiresAt)
}

// StoreSSHKey stores a private key's PEM contents under metadata noting
// its originating path, mirroring the original's path-tagged ssh entries.
func (v *Vault) StoreSSHKey(name, pemContents, sourcePath string) error {
	meta := map[string]string{}
	if sourcePath != "" {
		meta["source_path"] = sourcePath
	}
	return v.Store(name, pemContents, types.CredentialSSHKey, meta, nil)
}

// GetGithubToken is shorthand for GetValue("github_token").
func (v *Vault) GetGithubToken() (string, error) {
	return v.GetValue("github_token")
}

// GetAnthropicKey is shorthand for GetValue("anthropic_api_key").
func (v *Vault) GetAnthropicKey() (string, error) {
	return v.GetValue("anthropic_api_key")
}

// Export returns a redacted summary of every credential (name, type,
// expiry, age) without plaintext values, suitable for the preflight
// report and operator console.
type ExportEntry struct {
	Name      string             `json:"name"`
	Type      types.CredentialType `json:"credential_type"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	Expired   bool               `json:"expired"`
}

func (v *Vault) Export() []ExportEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	now := time.Now()
	out := make([]ExportEntry, 0, len(v.credentials))
	for _, c := range v.credentials {
		out = append(out, ExportEntry{
			Name:      c.Name,
			Type:      c.Type,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
			ExpiresAt: c.ExpiresAt,
			Expired:   c.IsExpired(now),
		})
	}
	return out
}

// String renders a one-line human summary.
func (e ExportEntry) String() string {
	status := "active"
	if e.Expired {
		status = "expired"
	}
	return fmt.Sprintf("%s (%s, %s)", e.Name, e.Type, status)
}
