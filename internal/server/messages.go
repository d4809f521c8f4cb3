package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/types"
)

const (
	EventJoinRoom         = "join-room"
	EventLoadBoard        = "load-board"
	EventUserJoined       = "user-joined"
	EventDraw             = "draw"
	EventClearBoard       = "clear-board"
	EventPermissionDenied = "permission-denied"
	EventBoardError       = "board-error"
)

// ClientMessage is an inbound event. Payload is decoded into Join or Draw by
// the read pump according to Event.
type ClientMessage struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Join      *JoinRoom       `json:"-"`
	Draw      *Draw           `json:"-"`
	UserId    int             `json:"-"`
	Timestamp time.Time       `json:"-"`
	client    *Client
	// joinGen orders the join requests of one connection.
	joinGen int64
}

type JoinRoom struct {
	RoomId string `json:"roomId"`
	UserId int    `json:"userId,omitempty"`
}

type Draw struct {
	UserId int           `json:"userId,omitempty"`
	Data   types.Element `json:"data"`
}

type LoadBoard struct {
	RoomId   string          `json:"roomId"`
	Elements []types.Element `json:"elements"`
	Seq      int64           `json:"seq"`
}

type UserJoined struct {
	UserId int    `json:"userId"`
	RoomId string `json:"roomId"`
}

type PermissionDenied struct {
	Message string `json:"message"`
	Event   string `json:"event"`
}

type BoardError struct {
	Message string `json:"message"`
}

type ServerMessage struct {
	Event      string    `json:"event"`
	Payload    any       `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	SkipClient *Client   `json:"-"`
}

func NewLoadBoard(board types.Board) *ServerMessage {
	elements := board.Elements
	if elements == nil {
		elements = []types.Element{}
	}

	return &ServerMessage{
		Event: EventLoadBoard,
		Payload: LoadBoard{
			RoomId:   board.RoomId,
			Elements: elements,
			Seq:      board.SeqId,
		},
		Timestamp: Now(),
	}
}

func NewUserJoined(userId int, roomId string, skip *Client) *ServerMessage {
	return &ServerMessage{
		Event:      EventUserJoined,
		Payload:    UserJoined{UserId: userId, RoomId: roomId},
		Timestamp:  Now(),
		SkipClient: skip,
	}
}

func NewDraw(userId int, el types.Element, skip *Client) *ServerMessage {
	return &ServerMessage{
		Event:      EventDraw,
		Payload:    Draw{UserId: userId, Data: el},
		Timestamp:  Now(),
		SkipClient: skip,
	}
}

func NewClearBoard() *ServerMessage {
	return &ServerMessage{
		Event:     EventClearBoard,
		Timestamp: Now(),
	}
}

func ErrPermissionDenied(event, message string) *ServerMessage {
	return &ServerMessage{
		Event:     EventPermissionDenied,
		Payload:   PermissionDenied{Message: message, Event: event},
		Timestamp: Now(),
	}
}

func ErrBoard(message string) *ServerMessage {
	return &ServerMessage{
		Event:     EventBoardError,
		Payload:   BoardError{Message: message},
		Timestamp: Now(),
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
