// Package business resolves business contexts through a read-through cache.
package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	corebusiness "github.com/unifiedui/livechat-service/internal/core/business"
	"github.com/unifiedui/livechat-service/internal/core/cache"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

const (
	// DefaultCacheTTL is how long a resolved context stays cached.
	DefaultCacheTTL = 3 * time.Minute

	cacheKeyPrefix = "livechat:business:"
)

// Service resolves and manages business contexts.
type Service interface {
	corebusiness.Resolver

	// List returns every stored context.
	List(ctx context.Context) ([]models.BusinessContext, error)

	// Get returns a stored context regardless of its Active flag.
	Get(ctx context.Context, id string) (*models.BusinessContext, error)

	// Save stores a context and invalidates its cache entry.
	Save(ctx context.Context, bc *models.BusinessContext) error

	// Delete removes a context and invalidates its cache entry.
	Delete(ctx context.Context, id string) (bool, error)

	// InvalidateAll drops every cached context.
	InvalidateAll(ctx context.Context) (int64, error)
}

// Config holds the configuration for the business service.
type Config struct {
	Store       corebusiness.Store
	CacheClient cache.Client
	TTL         time.Duration
	Logger      *zerolog.Logger
}

type service struct {
	store       corebusiness.Store
	cacheClient cache.Client
	ttl         time.Duration
	logger      zerolog.Logger
}

// NewService creates a new business service. The cache client is optional.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &service{
		store:       cfg.Store,
		cacheClient: cfg.CacheClient,
		ttl:         ttl,
		logger:      logger.With().Str("component", "business").Logger(),
	}, nil
}

// ResolveContext returns the active context for id or corebusiness.ErrNotConfigured.
// Cache failures fall back to the store.
func (s *service) ResolveContext(ctx context.Context, id string) (*models.BusinessContext, error) {
	if id == "" {
		return nil, corebusiness.ErrNotConfigured
	}

	if bc := s.fromCache(ctx, id); bc != nil {
		return bc, nil
	}

	bc, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, corebusiness.ErrNotConfigured) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load business context: %w", err)
	}
	if !bc.Active {
		return nil, corebusiness.ErrNotConfigured
	}

	s.toCache(ctx, bc)
	return bc, nil
}

func (s *service) fromCache(ctx context.Context, id string) *models.BusinessContext {
	if s.cacheClient == nil {
		return nil
	}

	key := BuildCacheKey(id)
	data, err := s.cacheClient.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("business_context_id", id).Msg("business cache read failed")
		return nil
	}
	if data == nil {
		return nil
	}

	var bc models.BusinessContext
	if err := json.Unmarshal(data, &bc); err != nil {
		_, _ = s.cacheClient.Delete(ctx, key)
		return nil
	}
	return &bc
}

func (s *service) toCache(ctx context.Context, bc *models.BusinessContext) {
	if s.cacheClient == nil {
		return
	}

	data, err := json.Marshal(bc)
	if err != nil {
		return
	}
	if err := s.cacheClient.Set(ctx, BuildCacheKey(bc.ID), data, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("business_context_id", bc.ID).Msg("business cache write failed")
	}
}

func (s *service) invalidate(ctx context.Context, id string) {
	if s.cacheClient == nil {
		return
	}
	if _, err := s.cacheClient.Delete(ctx, BuildCacheKey(id)); err != nil {
		s.logger.Warn().Err(err).Str("business_context_id", id).Msg("business cache invalidation failed")
	}
}

func (s *service) List(ctx context.Context) ([]models.BusinessContext, error) {
	return s.store.List(ctx)
}

func (s *service) Get(ctx context.Context, id string) (*models.BusinessContext, error) {
	return s.store.Get(ctx, id)
}

func (s *service) Save(ctx context.Context, bc *models.BusinessContext) error {
	if err := s.store.Save(ctx, bc); err != nil {
		return err
	}
	s.invalidate(ctx, bc.ID)
	return nil
}

func (s *service) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.invalidate(ctx, id)
	return deleted, nil
}

func (s *service) InvalidateAll(ctx context.Context) (int64, error) {
	if s.cacheClient == nil {
		return 0, nil
	}
	n, err := s.cacheClient.DeletePattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return n, fmt.Errorf("failed to invalidate business cache: %w", err)
	}
	return n, nil
}

// BuildCacheKey generates the cache key for a business context.
func BuildCacheKey(id string) string {
	return cacheKeyPrefix + id
}
