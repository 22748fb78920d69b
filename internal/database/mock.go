package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockChatStore) ListRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatStore) CreateRoom(ctx context.Context, name string) (Room, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatStore) GetRoom(ctx context.Context, id string) (Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatStore) DeleteRoom(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockChatStore) ListMessages(ctx context.Context, roomId string) ([]Message, error) {
	args := m.Called(ctx, roomId)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatStore) AddMessage(ctx context.Context, roomId, username, text string) (Message, error) {
	args := m.Called(ctx, roomId, username, text)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatStore) DeleteMessage(ctx context.Context, roomId, messageId, username string) error {
	args := m.Called(ctx, roomId, messageId, username)
	return args.Error(0)
}
func (m *MockChatStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
