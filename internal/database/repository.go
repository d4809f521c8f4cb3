package database

import "context"

// WhiteboardRepository is the persistence surface used by the stores and the
// HTTP API. Lookups of a single row return sql.ErrNoRows when nothing matches.
type WhiteboardRepository interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, accountId int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomByExternalId(ctx context.Context, externalId string) (Room, error)
	GetRoomWithParticipants(ctx context.Context, roomId int) (Room, error)
	ListRoomsForAccount(ctx context.Context, accountId int) ([]Room, error)

	GetParticipant(ctx context.Context, roomId, accountId int) (Participant, error)
	AddParticipant(ctx context.Context, roomId, accountId int) error
	SetParticipantWrite(ctx context.Context, roomId, accountId int, canWrite bool) error

	GetOrCreateBoard(ctx context.Context, roomId int) (Board, error)
	GetBoardElements(ctx context.Context, boardId int) ([]BoardElement, error)
	AppendElement(ctx context.Context, roomId, accountId int, elementId string, data []byte) (Board, BoardElement, error)
	ClearBoard(ctx context.Context, roomId, accountId int) (Board, error)
	ReplaceBoard(ctx context.Context, roomId, accountId int, elements [][]byte) (Board, error)
}
