package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Participant struct {
	User     User `json:"user"`
	CanWrite bool `json:"can_write"`
}

type Room struct {
	Id           int           `json:"id"`
	ExternalId   string        `json:"external_id"`
	Name         string        `json:"name"`
	Creator      User          `json:"creator"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"created_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}

// IsCreator reports whether userId created the room.
func (r Room) IsCreator(userId int) bool {
	return r.Creator.Id == userId
}

// Board is the ordered element log of a single room.
type Board struct {
	RoomId        string    `json:"room_id"`
	Elements      []Element `json:"elements"`
	SeqId         int64     `json:"seq_id"`
	LastUpdatedBy int       `json:"last_updated_by,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}
