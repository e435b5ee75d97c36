// Package tenant – credentials.go resolves the LLM API key for a tenant
// using the operating system's native keyring (Linux: Secret Service,
// macOS: Keychain, Windows: Credential Manager) and the encrypted vault.
//
// Priority for resolving a tenant credential:
//  1. Encrypted vault (.bia.vault — AES-256-GCM + Argon2, master password)
//  2. OS keyring (encrypted by the OS, requires user session)
//  3. Environment variable (BIA_API_KEY, OPENAI_API_KEY)
//  4. .env file (loaded by godotenv at startup)
package tenant

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "bia"

	// keyringAPIKey is the key name for the global LLM API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__bia_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// CredentialResolver resolve a chave de API efetiva por tenant.
// Tenants com CredentialRef usam a própria chave; os demais usam a
// credencial global do processo.
type CredentialResolver struct {
	vault     *Vault
	globalKey string
	logger    *slog.Logger
}

// NewCredentialResolver creates a resolver over an optional unlocked
// vault. globalKey is the process-wide fallback key.
func NewCredentialResolver(vault *Vault, globalKey string, logger *slog.Logger) *CredentialResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialResolver{vault: vault, globalKey: globalKey, logger: logger}
}

// Resolve returns the API key for the tenant. Never errors: a tenant
// without its own credential falls back to the global one, and an
// empty result means no key is configured anywhere.
func (r *CredentialResolver) Resolve(t *Tenant) string {
	if t != nil && t.CredentialRef != "" {
		// 1. Encrypted vault.
		if r.vault != nil && r.vault.IsUnlocked() {
			if val, err := r.vault.Get(t.CredentialRef); err == nil && val != "" {
				r.logger.Debug("credencial do tenant carregada do vault", "tenant", t.ID)
				return val
			}
		}
		// 2. OS keyring.
		if val := GetKeyring(t.CredentialRef); val != "" {
			r.logger.Debug("credencial do tenant carregada do keyring", "tenant", t.ID)
			return val
		}
		// 3. Environment variable named by the ref.
		if val := os.Getenv(t.CredentialRef); val != "" {
			return val
		}
		r.logger.Warn("credencial do tenant não encontrada, usando a global",
			"tenant", t.ID, "ref", t.CredentialRef)
	}
	return r.globalKey
}

// ResolveGlobalKey resolves the process-wide API key using the priority
// chain: vault → keyring → env. Returns the unlocked vault (or nil) so
// it can be reused by the CredentialResolver.
func ResolveGlobalKey(vaultPath string, logger *slog.Logger) (string, *Vault) {
	vault := NewVault(vaultPath)
	var unlocked *Vault
	if vault.Exists() {
		if envPass := os.Getenv("BIA_VAULT_PASSWORD"); envPass != "" {
			if err := vault.Unlock(envPass); err != nil {
				logger.Warn("failed to unlock vault with BIA_VAULT_PASSWORD", "error", err)
			}
		}
		if !vault.IsUnlocked() && term.IsTerminal(int(os.Stdin.Fd())) {
			password, err := ReadPassword("Vault password: ")
			if err == nil {
				if err := vault.Unlock(password); err != nil {
					logger.Warn("failed to unlock vault", "error", err)
				}
			}
		}
		if vault.IsUnlocked() {
			// Keep the unlocked vault even when it holds no global key:
			// per-tenant CredentialRef lookups still need it.
			unlocked = vault
			if val, err := vault.Get("OPENAI_API_KEY"); err == nil && val != "" {
				logger.Debug("API key loaded from encrypted vault")
				return val, unlocked
			}
		} else {
			logger.Info("vault exists but could not be unlocked, using keyring/env")
		}
	}

	if val := GetKeyring(keyringAPIKey); val != "" {
		logger.Debug("API key loaded from OS keyring")
		return val, unlocked
	}
	if val := os.Getenv("BIA_API_KEY"); val != "" {
		return val, unlocked
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		return val, unlocked
	}

	logger.Warn("no API key found. Set one with: bia config set-key or bia config vault-set")
	return "", unlocked
}
