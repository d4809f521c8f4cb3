package server

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/npezzotti/go-whiteboard/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

type Client struct {
	id       string
	conn     *websocket.Conn
	srv      *WhiteboardServer
	log      *log.Logger
	user     types.User
	send     chan *ServerMessage
	room     *Room
	roomGen  int64
	roomLock sync.RWMutex
	// joinGen counts join requests. Only the latest one may take effect.
	joinGen  atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, srv *WhiteboardServer, l *log.Logger) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		srv:  srv,
		log:  l,
		user: user,
		send: make(chan *ServerMessage, sendBufferSize),
		stop: make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := c.serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		c.handleMessage(raw)
	}
}

// handleMessage decodes one inbound event and routes it.
func (c *Client) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Println("error parsing message:", err)
		c.queueMessage(ErrBoard("Invalid message format."))
		return
	}

	msg.client = c
	msg.UserId = c.user.Id
	msg.Timestamp = Now()

	switch msg.Event {
	case EventJoinRoom:
		var join JoinRoom
		if err := json.Unmarshal(msg.Payload, &join); err != nil || join.RoomId == "" {
			c.queueMessage(ErrBoard("join-room requires a roomId."))
			return
		}
		if join.UserId != 0 && join.UserId != c.user.Id {
			c.log.Printf("client %s sent userId %d, using authenticated user %d", c.id, join.UserId, c.user.Id)
		}
		msg.Join = &join
		c.joinRoom(&msg)
	case EventDraw:
		var draw Draw
		if err := json.Unmarshal(msg.Payload, &draw); err != nil {
			c.queueMessage(ErrBoard("Invalid drawing payload."))
			return
		}
		msg.Draw = &draw
		c.publish(&msg)
	case EventClearBoard:
		c.publish(&msg)
	default:
		c.queueMessage(ErrBoard("Unknown event."))
	}
}

// queueMessage never blocks. A client whose buffer is full is disconnected so
// that it resyncs on reconnect instead of silently missing events.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Printf("send buffer full for client %s, disconnecting", c.id)
		c.stopClient()
		return false
	}
}

func (c *Client) serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup runs once the read pump exits: the session is detached first so
// no further broadcast reaches the connection.
func (c *Client) cleanup() {
	c.srv.sessions.Detach(c.id)
	if r := c.currentRoom(); r != nil {
		select {
		case r.leaveChan <- c:
		default:
			c.log.Printf("leave channel full for room %q", r.externalId)
		}
	}
	c.srv.deregisterClient(c)
	c.stopClient()
}

func (c *Client) joinRoom(msg *ClientMessage) {
	msg.joinGen = c.joinGen.Add(1)
	select {
	case c.srv.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrBoard("Server is busy, try again."))
	}
}

// publish forwards a draw or clear to the client's current room.
func (c *Client) publish(msg *ClientMessage) {
	r := c.currentRoom()
	if r == nil {
		c.queueMessage(ErrBoard("Join a room first."))
		return
	}

	select {
	case r.clientMsgChan <- msg:
	default:
		c.log.Printf("clientMsgChan full for room %q", r.externalId)
		c.queueMessage(ErrBoard("Room is busy, try again."))
	}
}

// setRoom makes r the current room and returns the previous one. It reports
// false, leaving the room unchanged, when a newer join already took effect.
func (c *Client) setRoom(r *Room, gen int64) (*Room, bool) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if gen < c.roomGen {
		return nil, false
	}

	prev := c.room
	c.room = r
	c.roomGen = gen
	return prev, true
}

// staleJoin reports whether a newer join has been requested since msg.
func (c *Client) staleJoin(msg *ClientMessage) bool {
	return msg.joinGen < c.joinGen.Load()
}

// clearRoom unsets the current room if it is still r.
func (c *Client) clearRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room == r {
		c.room = nil
	}
}

func (c *Client) currentRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}
