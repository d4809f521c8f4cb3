package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

// BoardStore holds the ordered element log of each room. Rooms are addressed
// by their external id.
type BoardStore interface {
	GetOrCreate(ctx context.Context, roomId string) (types.Board, error)
	Append(ctx context.Context, roomId string, userId int, element types.Element) (types.Element, int, error)
	Clear(ctx context.Context, roomId string, userId int) error
	ReplaceAll(ctx context.Context, roomId string, userId int, elements []types.Element) (types.Board, error)
}

type Boards struct {
	log   *log.Logger
	repo  database.WhiteboardRepository
	retry RetryPolicy
}

func NewBoards(logger *log.Logger, repo database.WhiteboardRepository, retry RetryPolicy) *Boards {
	return &Boards{log: logger, repo: repo, retry: retry}
}

func (b *Boards) room(ctx context.Context, roomId string) (database.Room, error) {
	room, err := b.repo.GetRoomByExternalId(ctx, roomId)
	if err != nil {
		return database.Room{}, fmt.Errorf("room %q: %w", roomId, translate(err))
	}
	return room, nil
}

func encodeElement(el types.Element) ([]byte, error) {
	el.Seq = 0
	return json.Marshal(el)
}

func (b *Boards) decodeElements(roomId string, rows []database.BoardElement) []types.Element {
	elements := make([]types.Element, 0, len(rows))
	for _, row := range rows {
		var el types.Element
		if err := json.Unmarshal(row.Data, &el); err != nil {
			b.log.Printf("board %s: skipping undecodable element seq=%d: %v", roomId, row.SeqId, err)
			continue
		}
		el.Seq = row.SeqId
		elements = append(elements, el)
	}
	return elements
}

func toBoard(roomId string, board database.Board, elements []types.Element) types.Board {
	return types.Board{
		RoomId:        roomId,
		Elements:      elements,
		SeqId:         board.SeqId,
		LastUpdatedBy: int(board.LastUpdatedBy.Int64),
		CreatedAt:     board.CreatedAt,
		UpdatedAt:     board.UpdatedAt,
	}
}

// GetOrCreate returns the room's board, creating an empty one on first access.
func (b *Boards) GetOrCreate(ctx context.Context, roomId string) (types.Board, error) {
	var board types.Board
	err := b.retry.run(ctx, "get board", func(ctx context.Context) error {
		room, err := b.room(ctx, roomId)
		if err != nil {
			return err
		}

		dbBoard, err := b.repo.GetOrCreateBoard(ctx, room.Id)
		if err != nil {
			return fmt.Errorf("get or create board: %w", err)
		}

		rows, err := b.repo.GetBoardElements(ctx, dbBoard.Id)
		if err != nil {
			return fmt.Errorf("get board elements: %w", err)
		}

		board = toBoard(roomId, dbBoard, b.decodeElements(roomId, rows))
		return nil
	})

	return board, err
}

// Append validates element and adds it to the end of the log. It returns the
// stored element, carrying its sequence number, and the new log length.
// Retries reuse the element id, so an attempt that committed but failed to
// report back is not stored twice.
func (b *Boards) Append(ctx context.Context, roomId string, userId int, element types.Element) (types.Element, int, error) {
	element.Normalize()
	if err := element.Validate(); err != nil {
		return types.Element{}, 0, err
	}
	if element.Id == "" {
		element.Id = uuid.NewString()
	}

	data, err := encodeElement(element)
	if err != nil {
		return types.Element{}, 0, fmt.Errorf("%w: %v", types.ErrInvalidElement, err)
	}

	var length int
	err = b.retry.run(ctx, "append element", func(ctx context.Context) error {
		room, err := b.room(ctx, roomId)
		if err != nil {
			return err
		}

		board, stored, err := b.repo.AppendElement(ctx, room.Id, userId, element.Id, data)
		if err != nil {
			return fmt.Errorf("append element: %w", err)
		}

		element.Seq = stored.SeqId
		length = board.ElementCount
		return nil
	})
	if err != nil {
		return types.Element{}, 0, err
	}

	return element, length, nil
}

// Clear truncates the log. Sequence numbers keep counting from where they were.
func (b *Boards) Clear(ctx context.Context, roomId string, userId int) error {
	return b.retry.run(ctx, "clear board", func(ctx context.Context) error {
		room, err := b.room(ctx, roomId)
		if err != nil {
			return err
		}

		if _, err := b.repo.ClearBoard(ctx, room.Id, userId); err != nil {
			return fmt.Errorf("clear board: %w", err)
		}
		return nil
	})
}

// ReplaceAll overwrites the whole log. Either every element is valid and the
// board is replaced or nothing changes.
func (b *Boards) ReplaceAll(ctx context.Context, roomId string, userId int, elements []types.Element) (types.Board, error) {
	normalized := make([]types.Element, len(elements))
	encoded := make([][]byte, len(elements))
	for i, el := range elements {
		el.Normalize()
		if err := el.Validate(); err != nil {
			return types.Board{}, fmt.Errorf("element %d: %w", i, err)
		}
		data, err := encodeElement(el)
		if err != nil {
			return types.Board{}, fmt.Errorf("element %d: %w: %v", i, types.ErrInvalidElement, err)
		}
		normalized[i] = el
		encoded[i] = data
	}

	var board types.Board
	err := b.retry.run(ctx, "replace board", func(ctx context.Context) error {
		room, err := b.room(ctx, roomId)
		if err != nil {
			return err
		}

		dbBoard, err := b.repo.ReplaceBoard(ctx, room.Id, userId, encoded)
		if err != nil {
			return fmt.Errorf("replace board: %w", err)
		}

		first := dbBoard.SeqId - int64(len(normalized)) + 1
		stored := make([]types.Element, len(normalized))
		for i, el := range normalized {
			el.Seq = first + int64(i)
			stored[i] = el
		}

		board = toBoard(roomId, dbBoard, stored)
		return nil
	})

	return board, err
}
