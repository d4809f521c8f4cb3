package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/go-whiteboard/internal/database"
)

// PermissionStore answers who may see and who may draw on a room's board.
// Rooms are addressed by their external id.
type PermissionStore interface {
	IsParticipant(ctx context.Context, roomId string, userId int) (bool, error)
	CanWrite(ctx context.Context, roomId string, userId int) (bool, error)
	SetWrite(ctx context.Context, roomId string, actingUserId, targetUserId int, value bool) error
	AddParticipant(ctx context.Context, roomId string, userId int) error
}

type Permissions struct {
	repo  database.WhiteboardRepository
	retry RetryPolicy
}

func NewPermissions(repo database.WhiteboardRepository, retry RetryPolicy) *Permissions {
	return &Permissions{repo: repo, retry: retry}
}

func (p *Permissions) participant(ctx context.Context, roomId string, userId int) (database.Room, *database.Participant, error) {
	room, err := p.repo.GetRoomByExternalId(ctx, roomId)
	if err != nil {
		return database.Room{}, nil, fmt.Errorf("room %q: %w", roomId, translate(err))
	}

	part, err := p.repo.GetParticipant(ctx, room.Id, userId)
	if err != nil {
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return room, nil, nil
		}
		return room, nil, err
	}

	return room, &part, nil
}

func (p *Permissions) IsParticipant(ctx context.Context, roomId string, userId int) (bool, error) {
	var ok bool
	err := p.retry.run(ctx, "is participant", func(ctx context.Context) error {
		_, part, err := p.participant(ctx, roomId, userId)
		ok = part != nil
		return err
	})

	return ok, err
}

// CanWrite is false for non-participants. The creator can always write.
func (p *Permissions) CanWrite(ctx context.Context, roomId string, userId int) (bool, error) {
	var ok bool
	err := p.retry.run(ctx, "can write", func(ctx context.Context) error {
		room, part, err := p.participant(ctx, roomId, userId)
		if err != nil {
			return err
		}
		ok = room.CreatorId == userId || (part != nil && part.CanWrite)
		return nil
	})

	return ok, err
}

// SetWrite changes targetUserId's write flag. Only the creator may call it and
// the creator's own flag cannot be changed.
func (p *Permissions) SetWrite(ctx context.Context, roomId string, actingUserId, targetUserId int, value bool) error {
	return p.retry.run(ctx, "set write", func(ctx context.Context) error {
		room, err := p.repo.GetRoomByExternalId(ctx, roomId)
		if err != nil {
			return fmt.Errorf("room %q: %w", roomId, translate(err))
		}
		if room.CreatorId != actingUserId {
			return fmt.Errorf("%w: only the room creator can change permissions", ErrForbidden)
		}
		if targetUserId == room.CreatorId {
			return fmt.Errorf("%w: the creator's write access cannot be changed", ErrForbidden)
		}

		if err := p.repo.SetParticipantWrite(ctx, room.Id, targetUserId, value); err != nil {
			if err = translate(err); errors.Is(err, ErrNotFound) {
				return fmt.Errorf("user %d is not a participant: %w", targetUserId, err)
			}
			return err
		}

		return nil
	})
}

func (p *Permissions) AddParticipant(ctx context.Context, roomId string, userId int) error {
	return p.retry.run(ctx, "add participant", func(ctx context.Context) error {
		room, err := p.repo.GetRoomByExternalId(ctx, roomId)
		if err != nil {
			return fmt.Errorf("room %q: %w", roomId, translate(err))
		}

		return p.repo.AddParticipant(ctx, room.Id, userId)
	})
}
