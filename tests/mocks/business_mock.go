package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// MockBusinessStore is a mock implementation of business.Store.
type MockBusinessStore struct {
	mock.Mock
}

// Get returns a business context.
func (m *MockBusinessStore) Get(ctx context.Context, id string) (*models.BusinessContext, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BusinessContext), args.Error(1)
}

// List returns all business contexts.
func (m *MockBusinessStore) List(ctx context.Context) ([]models.BusinessContext, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BusinessContext), args.Error(1)
}

// Save stores a business context.
func (m *MockBusinessStore) Save(ctx context.Context, bc *models.BusinessContext) error {
	args := m.Called(ctx, bc)
	return args.Error(0)
}

// Delete removes a business context.
func (m *MockBusinessStore) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// Ping checks the store connection.
func (m *MockBusinessStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the store.
func (m *MockBusinessStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockResolver is a mock implementation of business.Resolver.
type MockResolver struct {
	mock.Mock
}

// ResolveContext resolves a business context.
func (m *MockResolver) ResolveContext(ctx context.Context, id string) (*models.BusinessContext, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BusinessContext), args.Error(1)
}
