// Package vault defines how secrets referenced from configuration are resolved.
package vault

import (
	"context"
	"strings"
)

// Type represents the type of vault.
type Type string

const (
	// TypeDotEnv represents a DotEnv vault (for development).
	TypeDotEnv Type = "dotenv"
)

// Vault defines the interface for vault/secrets operations.
type Vault interface {
	// Scheme is the URI scheme of references this vault resolves, e.g. "dotenv".
	Scheme() string

	// GetSecret retrieves a secret by URI.
	// Returns the secret value or an error if not found.
	GetSecret(ctx context.Context, uri string) (string, error)

	// Ping checks if the vault connection is alive.
	Ping(ctx context.Context) error

	// Close closes the vault connection.
	Close() error
}

// IsReference reports whether value points into v rather than being a literal secret.
func IsReference(v Vault, value string) bool {
	return v != nil && strings.HasPrefix(value, v.Scheme()+"://")
}

// Resolve returns value itself, or the secret it references.
func Resolve(ctx context.Context, v Vault, value string) (string, error) {
	if !IsReference(v, value) {
		return value, nil
	}
	return v.GetSecret(ctx, value)
}
