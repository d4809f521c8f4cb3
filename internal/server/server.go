package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/stats"
	"github.com/npezzotti/go-whiteboard/internal/store"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

const (
	NumActiveRooms      = "NumActiveRooms"
	NumActiveClients    = "NumActiveClients"
	NumElementsAppended = "NumElementsAppended"
	NumPermissionDenied = "NumPermissionDenied"
)

var ErrServerBusy = errors.New("server busy")

type stopRequest struct {
	done chan struct{}
}

type saveRequest struct {
	roomId   string
	userId   int
	elements []types.Element
	result   chan saveResult
}

type saveResult struct {
	board types.Board
	err   error
}

// WhiteboardServer is the hub. Its Run loop owns the set of loaded rooms and
// registered clients; each loaded room runs in its own goroutine.
type WhiteboardServer struct {
	log             *log.Logger
	boards          store.BoardStore
	perms           store.PermissionStore
	sessions        *SessionRegistry
	stats           stats.StatsProvider
	storeTimeout    time.Duration
	idleRoomTimeout time.Duration
	clients         map[*Client]struct{}
	rooms           map[string]*Room
	joinChan        chan *ClientMessage
	saveChan        chan *saveRequest
	registerChan    chan *Client
	deregisterChan  chan *Client
	unloadRoomChan  chan *Room
	stop            chan stopRequest
	done            chan struct{}
}

func NewWhiteboardServer(logger *log.Logger, boards store.BoardStore, perms store.PermissionStore, su stats.StatsProvider, storeTimeout time.Duration) (*WhiteboardServer, error) {
	if boards == nil || perms == nil {
		return nil, errors.New("board and permission stores are required")
	}

	su.RegisterMetric(NumActiveRooms)
	su.RegisterMetric(NumActiveClients)
	su.RegisterMetric(NumElementsAppended)
	su.RegisterMetric(NumPermissionDenied)

	return &WhiteboardServer{
		log:             logger,
		boards:          boards,
		perms:           perms,
		sessions:        NewSessionRegistry(),
		stats:           su,
		storeTimeout:    storeTimeout,
		idleRoomTimeout: idleRoomTimeout,
		clients:         make(map[*Client]struct{}),
		rooms:           make(map[string]*Room),
		joinChan:        make(chan *ClientMessage, 256),
		saveChan:        make(chan *saveRequest, 64),
		registerChan:    make(chan *Client),
		deregisterChan:  make(chan *Client),
		unloadRoomChan:  make(chan *Room, 64),
		stop:            make(chan stopRequest),
		done:            make(chan struct{}),
	}, nil
}

func (s *WhiteboardServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *WhiteboardServer) Run() {
	for {
		select {
		case join := <-s.joinChan:
			r := s.getOrLoadRoom(join.Join.RoomId)
			r.pending.Add(1)
			select {
			case r.joinChan <- join:
			default:
				r.pending.Add(-1)
				s.log.Printf("join channel full on room %q", r.externalId)
				join.client.queueMessage(ErrBoard("Server is busy, try again."))
			}
		case req := <-s.saveChan:
			r := s.getOrLoadRoom(req.roomId)
			r.pending.Add(1)
			select {
			case r.saveChan <- req:
			default:
				r.pending.Add(-1)
				req.result <- saveResult{err: ErrServerBusy}
			}
		case c := <-s.registerChan:
			s.log.Printf("adding connection %s from %q", c.id, c.user.Username)
			s.clients[c] = struct{}{}
			s.stats.Incr(NumActiveClients)
		case c := <-s.deregisterChan:
			if _, ok := s.clients[c]; ok {
				s.log.Printf("removing connection %s from %q", c.id, c.user.Username)
				delete(s.clients, c)
				s.stats.Decr(NumActiveClients)
			}
		case r := <-s.unloadRoomChan:
			s.unloadRoom(r)
		case req := <-s.stop:
			s.log.Println("shutting down rooms")
			for _, r := range s.rooms {
				close(r.exit)
				<-r.done
				delete(s.rooms, r.externalId)
				s.stats.Decr(NumActiveRooms)
			}
			for c := range s.clients {
				c.stopClient()
			}

			close(s.done)
			close(req.done)
			return
		}
	}
}

func (s *WhiteboardServer) getOrLoadRoom(roomId string) *Room {
	if r, ok := s.rooms[roomId]; ok {
		return r
	}

	r := newRoom(roomId, s)
	s.rooms[roomId] = r
	s.stats.Incr(NumActiveRooms)
	go r.start()

	return r
}

// unloadRoom stops r unless work was forwarded to it after it asked to be
// unloaded or it picked up a client in the meantime.
func (s *WhiteboardServer) unloadRoom(r *Room) {
	cur, ok := s.rooms[r.externalId]
	if !ok || cur != r {
		return
	}
	if r.pending.Load() > 0 || r.numClients.Load() > 0 {
		s.log.Printf("room %q is busy, not unloading", r.externalId)
		return
	}

	s.log.Printf("unloading room %q", r.externalId)
	delete(s.rooms, r.externalId)
	close(r.exit)
	s.stats.Decr(NumActiveRooms)
}

// RegisterClient attaches c to the session registry and hands it to the hub.
func (s *WhiteboardServer) RegisterClient(c *Client) {
	s.sessions.Attach(c.id, c.user.Id)
	select {
	case s.registerChan <- c:
	case <-s.done:
		c.stopClient()
	}
}

func (s *WhiteboardServer) deregisterClient(c *Client) {
	select {
	case s.deregisterChan <- c:
	case <-s.done:
	}
}

// SaveBoard replaces a room's board through the room's goroutine, so it is
// ordered with live draws. Connected clients receive the new board.
func (s *WhiteboardServer) SaveBoard(ctx context.Context, roomId string, userId int, elements []types.Element) (types.Board, error) {
	req := &saveRequest{
		roomId:   roomId,
		userId:   userId,
		elements: elements,
		result:   make(chan saveResult, 1),
	}

	select {
	case s.saveChan <- req:
	case <-s.done:
		return types.Board{}, ErrServerBusy
	case <-ctx.Done():
		return types.Board{}, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.board, res.err
	case <-ctx.Done():
		return types.Board{}, ctx.Err()
	}
}

func (s *WhiteboardServer) Shutdown(ctx context.Context) error {
	s.log.Println("received shutdown signal")
	req := stopRequest{done: make(chan struct{})}

	select {
	case s.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WhiteboardServer) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.storeTimeout)
}
