package types

import "time"

// CredentialType tags the kind of secret a credential record holds.
type CredentialType string

const (
	CredentialAPIKey      CredentialType = "ApiKey"
	CredentialToken       CredentialType = "Token"
	CredentialSSHKey      CredentialType = "SshKey"
	CredentialPassword    CredentialType = "Password"
	CredentialCertificate CredentialType = "Certificate"
	CredentialCustom      CredentialType = "Custom"
)

// Credential is one entry in the vault. Plaintext is populated only while
// the vault is unlocked and is never serialized (see VaultFile).
type Credential struct {
	Name           string            `json:"name"`
	Type           CredentialType    `json:"credential_type"`
	CustomTypeName string            `json:"custom_type_name,omitempty"`
	EncryptedValue []byte            `json:"encrypted_value"` // base64 on the wire
	Nonce          []byte            `json:"nonce"`           // base64 on the wire, 12 bytes
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	Plaintext string `json:"-"` // present only while vault is unlocked
}

// IsExpired reports whether the credential's advisory expiry has passed.
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// ExpiringSoon reports whether the credential expires within window of now.
func (c *Credential) ExpiringSoon(now time.Time, window time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Sub(now) <= window && c.ExpiresAt.After(now)
}

// VaultFile is the on-disk representation. Plaintext never appears here.
type VaultFile struct {
	Version     int              `json:"version"`
	Salt        []byte           `json:"salt"` // base64 on the wire, 32 bytes
	Credentials []VaultFileEntry `json:"credentials"`
}

// VaultFileEntry is one persisted credential record.
type VaultFileEntry struct {
	Name           string            `json:"name"`
	CredentialType CredentialType    `json:"credential_type"`
	EncryptedValue string            `json:"encrypted_value"`
	Nonce          string            `json:"nonce"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
