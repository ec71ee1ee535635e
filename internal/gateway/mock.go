package gateway

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of Gateway for testing.
type MockGateway struct {
	mock.Mock
}

var _ Gateway = (*MockGateway)(nil)

func (m *MockGateway) Invoke(ctx context.Context, command string, args, reply any) error {
	return m.Called(ctx, command, args, reply).Error(0)
}

func (m *MockGateway) Listen(ctx context.Context, event string, handler Handler) (Unsubscribe, error) {
	ret := m.Called(ctx, event, handler)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(Unsubscribe), ret.Error(1)
}
