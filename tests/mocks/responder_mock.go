package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/livechat-service/internal/core/responder"
)

// MockResponder is a mock implementation of responder.Responder.
type MockResponder struct {
	mock.Mock
}

// GenerateReply returns the configured reply.
func (m *MockResponder) GenerateReply(ctx context.Context, req *responder.ReplyRequest) (*responder.Reply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*responder.Reply), args.Error(1)
}
