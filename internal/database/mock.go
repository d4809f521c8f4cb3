package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockWhiteboardRepository struct {
	mock.Mock
}

func (m *MockWhiteboardRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockWhiteboardRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWhiteboardRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	args := m.Called(ctx, accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWhiteboardRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWhiteboardRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWhiteboardRepository) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	args := m.Called(ctx, externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWhiteboardRepository) GetRoomWithParticipants(ctx context.Context, roomId int) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWhiteboardRepository) ListRoomsForAccount(ctx context.Context, accountId int) ([]Room, error) {
	args := m.Called(ctx, accountId)
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockWhiteboardRepository) GetParticipant(ctx context.Context, roomId, accountId int) (Participant, error) {
	args := m.Called(ctx, roomId, accountId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockWhiteboardRepository) AddParticipant(ctx context.Context, roomId, accountId int) error {
	args := m.Called(ctx, roomId, accountId)
	return args.Error(0)
}
func (m *MockWhiteboardRepository) SetParticipantWrite(ctx context.Context, roomId, accountId int, canWrite bool) error {
	args := m.Called(ctx, roomId, accountId, canWrite)
	return args.Error(0)
}
func (m *MockWhiteboardRepository) GetOrCreateBoard(ctx context.Context, roomId int) (Board, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Board), args.Error(1)
}
func (m *MockWhiteboardRepository) GetBoardElements(ctx context.Context, boardId int) ([]BoardElement, error) {
	args := m.Called(ctx, boardId)
	if els, ok := args.Get(0).([]BoardElement); ok {
		return els, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockWhiteboardRepository) AppendElement(ctx context.Context, roomId, accountId int, elementId string, data []byte) (Board, BoardElement, error) {
	args := m.Called(ctx, roomId, accountId, elementId, data)
	return args.Get(0).(Board), args.Get(1).(BoardElement), args.Error(2)
}
func (m *MockWhiteboardRepository) ClearBoard(ctx context.Context, roomId, accountId int) (Board, error) {
	args := m.Called(ctx, roomId, accountId)
	return args.Get(0).(Board), args.Error(1)
}
func (m *MockWhiteboardRepository) ReplaceBoard(ctx context.Context, roomId, accountId int, elements [][]byte) (Board, error) {
	args := m.Called(ctx, roomId, accountId, elements)
	return args.Get(0).(Board), args.Error(1)
}
