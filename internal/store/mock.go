package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/npezzotti/go-whiteboard/internal/types"
)

type MockPermissionStore struct {
	mock.Mock
}

func (m *MockPermissionStore) IsParticipant(ctx context.Context, roomId string, userId int) (bool, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockPermissionStore) CanWrite(ctx context.Context, roomId string, userId int) (bool, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockPermissionStore) SetWrite(ctx context.Context, roomId string, actingUserId, targetUserId int, value bool) error {
	args := m.Called(ctx, roomId, actingUserId, targetUserId, value)
	return args.Error(0)
}
func (m *MockPermissionStore) AddParticipant(ctx context.Context, roomId string, userId int) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}

type MockBoardStore struct {
	mock.Mock
}

func (m *MockBoardStore) GetOrCreate(ctx context.Context, roomId string) (types.Board, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(types.Board), args.Error(1)
}
func (m *MockBoardStore) Append(ctx context.Context, roomId string, userId int, element types.Element) (types.Element, int, error) {
	args := m.Called(ctx, roomId, userId, element)
	return args.Get(0).(types.Element), args.Int(1), args.Error(2)
}
func (m *MockBoardStore) Clear(ctx context.Context, roomId string, userId int) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockBoardStore) ReplaceAll(ctx context.Context, roomId string, userId int, elements []types.Element) (types.Board, error) {
	args := m.Called(ctx, roomId, userId, elements)
	return args.Get(0).(types.Board), args.Error(1)
}
