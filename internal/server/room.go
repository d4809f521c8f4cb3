package server

import (
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/store"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

const idleRoomTimeout = time.Second * 5

const (
	msgDrawDenied  = "You do not have write access to this board."
	msgClearDenied = "You do not have write access to clear the board."
)

// Room serializes every event for one board. Only the room goroutine touches
// clients and seq.
type Room struct {
	externalId    string
	srv           *WhiteboardServer
	log           *log.Logger
	joinChan      chan *ClientMessage
	leaveChan     chan *Client
	clientMsgChan chan *ClientMessage
	saveChan      chan *saveRequest
	clients       map[*Client]struct{}
	// numClients and pending are read by the hub when deciding to unload.
	numClients atomic.Int32
	pending    atomic.Int32
	// seq is the highest element sequence number this room has seen.
	seq int64
	// killTimer unloads the room once it has been empty for a while
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(externalId string, srv *WhiteboardServer) *Room {
	return &Room{
		externalId:    externalId,
		srv:           srv,
		log:           srv.log,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *Client, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		saveChan:      make(chan *saveRequest, 16),
		clients:       make(map[*Client]struct{}),
		exit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(r.srv.idleRoomTimeout)
	r.killTimer.Stop()
	defer close(r.done)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.clientMsgChan:
			switch msg.Event {
			case EventDraw:
				r.handleDraw(msg)
			case EventClearBoard:
				r.handleClear(msg)
			}
		case req := <-r.saveChan:
			r.handleSave(req)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case <-r.exit:
			r.handleRoomExit()
			return
		}
	}
}

// handleJoin reads the snapshot and registers the client in one step of the
// room goroutine, so no draw can land between the two. Joins that a newer
// join of the same connection has overtaken are dropped.
func (r *Room) handleJoin(join *ClientMessage) {
	defer r.pending.Add(-1)
	r.killTimer.Stop()

	c := join.client
	if c.staleJoin(join) {
		r.log.Printf("client %s: dropping superseded join of room %q", c.id, r.externalId)
		r.resetTimerIfEmpty()
		return
	}

	ctx, cancel := r.srv.storeContext()
	board, err := r.srv.boards.GetOrCreate(ctx, r.externalId)
	cancel()
	if err != nil {
		r.log.Printf("load board for room %q: %v", r.externalId, err)
		c.queueMessage(r.errorMessage(err, "Failed to load board."))
		r.resetTimerIfEmpty()
		return
	}

	if board.SeqId > r.seq {
		r.seq = board.SeqId
	}

	prevRoom, joined := r.srv.sessions.JoinRoom(c.id, r.externalId, join.joinGen)
	if !joined {
		r.log.Printf("client %s left or moved on before joining room %q", c.id, r.externalId)
		r.resetTimerIfEmpty()
		return
	}
	if prevRoom != "" && prevRoom != r.externalId {
		r.log.Printf("client %s moved from room %q to %q", c.id, prevRoom, r.externalId)
	}

	_, rejoin := r.clients[c]
	prev, current := c.setRoom(r, join.joinGen)
	if !current {
		r.removeClient(c)
		return
	}
	r.addClient(c)
	if prev != nil && prev != r {
		select {
		case prev.leaveChan <- c:
		default:
			r.log.Printf("leave channel full on room %q", prev.externalId)
		}
	}

	// the read pump may have detached between JoinRoom and setRoom
	if _, ok := r.srv.sessions.UserOf(c.id); !ok {
		r.removeClient(c)
		c.clearRoom(r)
		return
	}

	c.queueMessage(NewLoadBoard(board))

	if !rejoin {
		r.broadcast(NewUserJoined(c.user.Id, r.externalId, c))
	}
}

func (r *Room) handleLeave(c *Client) {
	r.removeClient(c)
	c.clearRoom(r)
}

func (r *Room) handleDraw(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.clients[c]; !ok {
		c.queueMessage(ErrBoard("Join the room before drawing."))
		return
	}

	ctx, cancel := r.srv.storeContext()
	defer cancel()

	ok, err := r.srv.perms.CanWrite(ctx, r.externalId, c.user.Id)
	if err != nil {
		r.log.Printf("check write access in room %q: %v", r.externalId, err)
		c.queueMessage(r.errorMessage(err, "Failed to process drawing."))
		return
	}
	if !ok {
		r.srv.stats.Incr(NumPermissionDenied)
		c.queueMessage(ErrPermissionDenied(EventDraw, msgDrawDenied))
		return
	}

	el := msg.Draw.Data
	el.Normalize()
	if err := el.Validate(); err != nil {
		c.queueMessage(ErrBoard(err.Error()))
		return
	}

	stored, _, err := r.srv.boards.Append(ctx, r.externalId, c.user.Id, el)
	if err != nil {
		r.log.Printf("append element in room %q: %v", r.externalId, err)
		c.queueMessage(r.errorMessage(err, "Failed to process drawing."))
		return
	}

	r.seq = stored.Seq
	r.srv.stats.Incr(NumElementsAppended)
	r.broadcast(NewDraw(c.user.Id, stored, c))
}

func (r *Room) handleClear(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.clients[c]; !ok {
		c.queueMessage(ErrBoard("Join the room before clearing the board."))
		return
	}

	ctx, cancel := r.srv.storeContext()
	defer cancel()

	ok, err := r.srv.perms.CanWrite(ctx, r.externalId, c.user.Id)
	if err != nil {
		r.log.Printf("check write access in room %q: %v", r.externalId, err)
		c.queueMessage(r.errorMessage(err, "Failed to clear board."))
		return
	}
	if !ok {
		r.srv.stats.Incr(NumPermissionDenied)
		c.queueMessage(ErrPermissionDenied(EventClearBoard, msgClearDenied))
		return
	}

	if err := r.srv.boards.Clear(ctx, r.externalId, c.user.Id); err != nil {
		r.log.Printf("clear board in room %q: %v", r.externalId, err)
		c.queueMessage(r.errorMessage(err, "Failed to clear board."))
		return
	}

	r.broadcast(NewClearBoard())
}

func (r *Room) handleSave(req *saveRequest) {
	defer r.pending.Add(-1)
	defer r.resetTimerIfEmpty()

	ctx, cancel := r.srv.storeContext()
	defer cancel()

	ok, err := r.srv.perms.CanWrite(ctx, r.externalId, req.userId)
	if err != nil {
		req.result <- saveResult{err: err}
		return
	}
	if !ok {
		r.srv.stats.Incr(NumPermissionDenied)
		req.result <- saveResult{err: store.ErrForbidden}
		return
	}

	board, err := r.srv.boards.ReplaceAll(ctx, r.externalId, req.userId, req.elements)
	if err != nil {
		req.result <- saveResult{err: err}
		return
	}

	if board.SeqId > r.seq {
		r.seq = board.SeqId
	}
	req.result <- saveResult{board: board}
	r.broadcast(NewLoadBoard(board))
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.srv.unloadRoomChan <- r:
	default:
		r.killTimer.Reset(r.srv.idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit() {
	r.log.Printf("room %q is exiting", r.externalId)
	r.killTimer.Stop()

	for c := range r.clients {
		c.clearRoom(r)
	}

	for {
		select {
		case msg := <-r.clientMsgChan:
			msg.client.queueMessage(ErrBoard("Room is closed."))
		case req := <-r.saveChan:
			req.result <- saveResult{err: ErrServerBusy}
		default:
			return
		}
	}
}

func (r *Room) addClient(c *Client) {
	if _, ok := r.clients[c]; ok {
		return
	}
	r.clients[c] = struct{}{}
	r.numClients.Add(1)
}

func (r *Room) removeClient(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	r.log.Printf("removing client %s from room %q", c.id, r.externalId)
	delete(r.clients, c)
	r.numClients.Add(-1)
	r.resetTimerIfEmpty()
}

func (r *Room) resetTimerIfEmpty() {
	if len(r.clients) == 0 {
		r.killTimer.Reset(r.srv.idleRoomTimeout)
	}
}

// broadcast queues msg for every client whose session is still in this room.
// Clients that cannot keep up are dropped from the room; their connection is
// closed and they rejoin to resync.
func (r *Room) broadcast(msg *ServerMessage) {
	for c := range r.clients {
		if c == msg.SkipClient {
			continue
		}
		if roomId, ok := r.srv.sessions.RoomOf(c.id); !ok || roomId != r.externalId {
			continue
		}

		if !c.queueMessage(msg) {
			r.removeClient(c)
			c.clearRoom(r)
		}
	}
}

func (r *Room) errorMessage(err error, fallback string) *ServerMessage {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrBoard("Room not found.")
	case errors.Is(err, types.ErrInvalidElement):
		return ErrBoard(err.Error())
	default:
		return ErrBoard(fallback)
	}
}
