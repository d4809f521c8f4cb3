package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int       `db:"id"`
	Username     string    `db:"username"`
	EmailAddress string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Room struct {
	Id              int       `db:"id"`
	ExternalId      string    `db:"external_id"`
	Name            string    `db:"name"`
	CreatorId       int       `db:"creator_id"`
	CreatorUsername string    `db:"creator_username"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	Participants    []Participant
}

type Participant struct {
	RoomId    int       `db:"room_id"`
	AccountId int       `db:"account_id"`
	Username  string    `db:"username"`
	CanWrite  bool      `db:"can_write"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Board struct {
	Id            int           `db:"id"`
	RoomId        int           `db:"room_id"`
	SeqId         int64         `db:"seq_id"`
	ElementCount  int           `db:"element_count"`
	LastUpdatedBy sql.NullInt64 `db:"last_updated_by"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

// BoardElement is one stored drawing element. Data holds the JSON encoded
// element without its sequence number, which lives in SeqId.
type BoardElement struct {
	Id        int            `db:"id"`
	BoardId   int            `db:"board_id"`
	SeqId     int64          `db:"seq_id"`
	ElementId sql.NullString `db:"element_id"`
	Data      []byte         `db:"data"`
	CreatedBy int            `db:"created_by"`
	CreatedAt time.Time      `db:"created_at"`
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name       string `json:"name"`
	CreatorId  int    `json:"-"`
	ExternalId string `json:"-"`
}
