package presence

import (
	"context"
	"time"

	"github.com/castlinker/chatd/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Heartbeat(ctx context.Context, userId int, status types.PresenceStatus) error {
	args := m.Called(ctx, userId, status)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, userId int) (types.Presence, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(types.Presence), args.Error(1)
}

func (m *MockStore) SetTyping(ctx context.Context, userId int, roomId string, ttl time.Duration) error {
	args := m.Called(ctx, userId, roomId, ttl)
	return args.Error(0)
}

func (m *MockStore) ClearTyping(ctx context.Context, userId int) error {
	args := m.Called(ctx, userId)
	return args.Error(0)
}
