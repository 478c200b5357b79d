// Package business defines how business contexts are looked up and stored.
package business

import (
	"context"
	"errors"

	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// ErrNotConfigured is returned when no active business context exists for an ID.
var ErrNotConfigured = errors.New("business context not configured")

// Resolver resolves the business context a session belongs to.
type Resolver interface {
	ResolveContext(ctx context.Context, businessContextID string) (*models.BusinessContext, error)
}

// Store persists business contexts.
type Store interface {
	// Get returns the context or ErrNotConfigured.
	Get(ctx context.Context, id string) (*models.BusinessContext, error)

	// List returns all contexts ordered by ID.
	List(ctx context.Context) ([]models.BusinessContext, error)

	// Save creates or replaces a context.
	Save(ctx context.Context, bc *models.BusinessContext) error

	// Delete removes a context. Returns false if it did not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// Ping checks the store connection.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
