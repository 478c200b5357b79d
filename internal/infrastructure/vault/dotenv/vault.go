// Package dotenv provides a dotenv-based vault implementation for development.
package dotenv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Scheme is the reference prefix handled by this vault.
const Scheme = "dotenv"

// Vault implements the vault.Vault interface using environment variables.
type Vault struct {
	// secrets stores in-memory secrets (for secrets not in env vars)
	secrets map[string]string
	mu      sync.RWMutex
}

// NewVault creates a new DotEnv vault instance.
func NewVault() *Vault {
	return &Vault{
		secrets: make(map[string]string),
	}
}

// Scheme returns "dotenv".
func (v *Vault) Scheme() string {
	return Scheme
}

// StoreSecret stores a secret in memory.
// Returns a URI in the format "dotenv://{key}".
func (v *Vault) StoreSecret(key, value string) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.secrets[key] = value
	return fmt.Sprintf("%s://%s", Scheme, key)
}

// GetSecret retrieves a secret from environment variables or the in-memory store.
func (v *Vault) GetSecret(ctx context.Context, uri string) (string, error) {
	key := strings.TrimPrefix(uri, Scheme+"://")
	if key == "" {
		return "", fmt.Errorf("secret key is required")
	}

	// First check environment variables
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if value, ok := v.secrets[key]; ok {
		return value, nil
	}

	return "", fmt.Errorf("secret not found: %s", key)
}

// Ping checks if the vault is available (always returns nil for dotenv).
func (v *Vault) Ping(ctx context.Context) error {
	return nil
}

// Close closes the vault (no-op for dotenv).
func (v *Vault) Close() error {
	return nil
}
