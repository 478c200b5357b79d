// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/livechat-service/internal/core/docdb"
	"github.com/unifiedui/livechat-service/internal/domain/models"
)

// MockMessagesCollection is a mock implementation of docdb.MessagesCollection.
type MockMessagesCollection struct {
	mock.Mock
}

// Add archives a message.
func (m *MockMessagesCollection) Add(ctx context.Context, message *models.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// ListBySession lists archived messages.
func (m *MockMessagesCollection) ListBySession(ctx context.Context, opts *docdb.ListMessagesOptions) ([]models.Message, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// CountBySession counts archived messages.
func (m *MockMessagesCollection) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

// DeleteBySession removes archived messages.
func (m *MockMessagesCollection) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

// EnsureIndexes creates indexes.
func (m *MockMessagesCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDocDBClient is a mock implementation of docdb.Client.
type MockDocDBClient struct {
	mock.Mock
	MessagesCollection *MockMessagesCollection
}

// NewMockDocDBClient creates a client mock with a messages collection mock attached.
func NewMockDocDBClient() *MockDocDBClient {
	return &MockDocDBClient{MessagesCollection: &MockMessagesCollection{}}
}

// Messages returns the messages collection mock.
func (m *MockDocDBClient) Messages() docdb.MessagesCollection {
	return m.MessagesCollection
}

// EnsureIndexes creates indexes.
func (m *MockDocDBClient) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Ping checks the connection.
func (m *MockDocDBClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the connection.
func (m *MockDocDBClient) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
