package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/unifiedui/livechat-service/internal/core/business"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// Store implements business.Store with gorm.
type Store struct {
	db *gorm.DB
}

// Config holds the store connection settings.
type Config struct {
	Driver string
	DSN    string
}

// NewStore opens the database and migrates the schema.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	db, err := OpenGorm(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&models.BusinessContext{}); err != nil {
		return fmt.Errorf("migrate business contexts: %w", err)
	}
	return nil
}

// Get returns the business context or business.ErrNotConfigured.
func (s *Store) Get(ctx context.Context, id string) (*models.BusinessContext, error) {
	if id == "" {
		return nil, business.ErrNotConfigured
	}

	var bc models.BusinessContext
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&bc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, business.ErrNotConfigured
		}
		return nil, fmt.Errorf("get business context: %w", err)
	}
	return &bc, nil
}

// List returns all business contexts ordered by ID.
func (s *Store) List(ctx context.Context) ([]models.BusinessContext, error) {
	var out []models.BusinessContext
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list business contexts: %w", err)
	}
	return out, nil
}

// Save creates or replaces a business context.
func (s *Store) Save(ctx context.Context, bc *models.BusinessContext) error {
	if bc == nil || bc.ID == "" {
		return fmt.Errorf("business context ID is required")
	}

	now := time.Now().UTC()
	if bc.CreatedAt.IsZero() {
		var existing models.BusinessContext
		err := s.db.WithContext(ctx).Select("created_at").Where("id = ?", bc.ID).Take(&existing).Error
		switch {
		case err == nil:
			bc.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			bc.CreatedAt = now
		default:
			return fmt.Errorf("get business context: %w", err)
		}
	}
	bc.UpdatedAt = now

	if err := s.db.WithContext(ctx).Save(bc).Error; err != nil {
		return fmt.Errorf("save business context: %w", err)
	}
	return nil
}

// Delete removes a business context.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.BusinessContext{})
	if result.Error != nil {
		return false, fmt.Errorf("delete business context: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("business store ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sql db: %w", err)
	}
	return sqlDB.Close()
}
