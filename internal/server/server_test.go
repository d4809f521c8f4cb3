package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/npezzotti/go-whiteboard/internal/stats"
	"github.com/npezzotti/go-whiteboard/internal/store"
	"github.com/npezzotti/go-whiteboard/internal/testutil"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

// memStore is an in-memory BoardStore and PermissionStore.
type memStore struct {
	mu       sync.Mutex
	creators map[string]int
	writers  map[string]map[int]bool
	elements map[string][]types.Element
	seq      map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		creators: make(map[string]int),
		writers:  make(map[string]map[int]bool),
		elements: make(map[string][]types.Element),
		seq:      make(map[string]int64),
	}
}

func (m *memStore) createRoom(roomId string, creator int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creators[roomId] = creator
	m.writers[roomId] = map[int]bool{creator: true}
}

func (m *memStore) snapshot(roomId string) []types.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Element(nil), m.elements[roomId]...)
}

func (m *memStore) IsParticipant(_ context.Context, roomId string, userId int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writers[roomId]
	if !ok {
		return false, store.ErrNotFound
	}
	_, ok = w[userId]
	return ok, nil
}

func (m *memStore) CanWrite(_ context.Context, roomId string, userId int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writers[roomId]
	if !ok {
		return false, store.ErrNotFound
	}
	return w[userId], nil
}

func (m *memStore) SetWrite(_ context.Context, roomId string, acting, target int, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writers[roomId]
	if !ok {
		return store.ErrNotFound
	}
	if m.creators[roomId] != acting || target == acting {
		return store.ErrForbidden
	}
	if _, ok := w[target]; !ok {
		return store.ErrNotFound
	}
	w[target] = value
	return nil
}

func (m *memStore) AddParticipant(_ context.Context, roomId string, userId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writers[roomId]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := w[userId]; !ok {
		w[userId] = false
	}
	return nil
}

func (m *memStore) GetOrCreate(_ context.Context, roomId string) (types.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creators[roomId]; !ok {
		return types.Board{}, store.ErrNotFound
	}
	return types.Board{
		RoomId:   roomId,
		Elements: append([]types.Element(nil), m.elements[roomId]...),
		SeqId:    m.seq[roomId],
	}, nil
}

func (m *memStore) Append(_ context.Context, roomId string, userId int, el types.Element) (types.Element, int, error) {
	el.Normalize()
	if err := el.Validate(); err != nil {
		return types.Element{}, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creators[roomId]; !ok {
		return types.Element{}, 0, store.ErrNotFound
	}
	m.seq[roomId]++
	el.Seq = m.seq[roomId]
	m.elements[roomId] = append(m.elements[roomId], el)
	return el, len(m.elements[roomId]), nil
}

func (m *memStore) Clear(_ context.Context, roomId string, userId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creators[roomId]; !ok {
		return store.ErrNotFound
	}
	m.elements[roomId] = nil
	return nil
}

func (m *memStore) ReplaceAll(_ context.Context, roomId string, userId int, elements []types.Element) (types.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creators[roomId]; !ok {
		return types.Board{}, store.ErrNotFound
	}
	stored := make([]types.Element, len(elements))
	for i, el := range elements {
		m.seq[roomId]++
		el.Seq = m.seq[roomId]
		stored[i] = el
	}
	m.elements[roomId] = stored
	return types.Board{RoomId: roomId, Elements: stored, SeqId: m.seq[roomId]}, nil
}

func newStatsMock() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

// newTestServer creates a WhiteboardServer whose stores are backed by memory.
func newTestServer(t *testing.T, ms *memStore) *WhiteboardServer {
	srv, err := NewWhiteboardServer(testutil.TestLogger(t), ms, ms, newStatsMock(), time.Second)
	if err != nil {
		t.Fatalf("failed to create test WhiteboardServer: %v", err)
	}
	return srv
}

func runTestServer(t *testing.T, ms *memStore) *WhiteboardServer {
	srv := newTestServer(t, ms)
	go srv.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

// newTestClient builds a client without a websocket; tests drive it through
// handleMessage and read what it would have written from its send channel.
func newTestClient(t *testing.T, srv *WhiteboardServer, userId int) *Client {
	c := NewClient(types.User{Id: userId, Username: fmt.Sprintf("user%d", userId)}, nil, srv, testutil.TestLogger(t))
	return c
}

func connect(t *testing.T, srv *WhiteboardServer, userId int) *Client {
	c := newTestClient(t, srv, userId)
	srv.RegisterClient(c)
	return c
}

func send(c *Client, event string, payload string) {
	if payload == "" {
		c.handleMessage([]byte(fmt.Sprintf(`{"event":%q}`, event)))
		return
	}
	c.handleMessage([]byte(fmt.Sprintf(`{"event":%q,"payload":%s}`, event, payload)))
}

func expectEvent(t *testing.T, c *Client, event string) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		if !assert.Equal(t, event, msg.Event, "unexpected event for user %d: %+v", c.user.Id, msg.Payload) {
			t.FailNow()
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("user %d: timed out waiting for %s", c.user.Id, event)
		return nil
	}
}

func expectNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("user %d: unexpected %s %+v", c.user.Id, msg.Event, msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func join(t *testing.T, c *Client, roomId string) LoadBoard {
	t.Helper()
	send(c, EventJoinRoom, fmt.Sprintf(`{"roomId":%q}`, roomId))
	return expectEvent(t, c, EventLoadBoard).Payload.(LoadBoard)
}

const segment = `{"data":{"type":"path","points":[0,0,10,10],"color":"#000000","thickness":2}}`

func TestNewWhiteboardServer(t *testing.T) {
	ms := newMemStore()
	su := newStatsMock()
	defer su.AssertExpectations(t)

	logger := testutil.TestLogger(t)
	srv, err := NewWhiteboardServer(logger, ms, ms, su, time.Second)
	assert.NoError(t, err)
	assert.NotNil(t, srv)
	assert.Equal(t, logger, srv.log)
	assert.NotNil(t, srv.sessions)
	assert.NotNil(t, srv.joinChan)
	assert.NotNil(t, srv.saveChan)
	assert.NotNil(t, srv.unloadRoomChan)
	assert.NotNil(t, srv.rooms)
	assert.NotNil(t, srv.clients)
	assert.Equal(t, idleRoomTimeout, srv.idleRoomTimeout)

	_, err = NewWhiteboardServer(logger, nil, ms, su, time.Second)
	assert.Error(t, err)
}

func TestWhiteboardServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		srv := newTestServer(t, newMemStore())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-srv.stop:
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		assert.NoError(t, srv.Shutdown(ctx))
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		srv := newTestServer(t, newMemStore())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		go func() {
			<-srv.stop
		}()

		err := srv.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("shutdown stops rooms and clients", func(t *testing.T) {
		ms := newMemStore()
		ms.createRoom("R", 1)
		srv := newTestServer(t, ms)
		go srv.Run()

		a := connect(t, srv, 1)
		join(t, a, "R")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))

		select {
		case <-a.stop:
		default:
			t.Error("expected client to be stopped")
		}
		assert.Nil(t, a.currentRoom())
	})
}

// A creates R, B joins without write access, B is denied, A grants write,
// B draws and only A sees it, C joins later and replays exactly that element.
func TestCollaborationScenario(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("R", 1)
	ms.AddParticipant(context.Background(), "R", 2)
	ms.AddParticipant(context.Background(), "R", 3)
	srv := runTestServer(t, ms)

	a := connect(t, srv, 1)
	b := connect(t, srv, 2)

	lb := join(t, a, "R")
	assert.Empty(t, lb.Elements)

	join(t, b, "R")
	joined := expectEvent(t, a, EventUserJoined).Payload.(UserJoined)
	assert.Equal(t, UserJoined{UserId: 2, RoomId: "R"}, joined)

	send(b, EventDraw, segment)
	denied := expectEvent(t, b, EventPermissionDenied).Payload.(PermissionDenied)
	assert.Equal(t, EventDraw, denied.Event)
	expectNoMessage(t, a)
	assert.Empty(t, ms.snapshot("R"))

	assert.NoError(t, ms.SetWrite(context.Background(), "R", 1, 2, true))

	send(b, EventDraw, segment)
	drawn := expectEvent(t, a, EventDraw).Payload.(Draw)
	assert.Equal(t, 2, drawn.UserId)
	assert.Equal(t, []float64{0, 0, 10, 10}, drawn.Data.Points)
	assert.Equal(t, int64(1), drawn.Data.Seq)
	expectNoMessage(t, b)

	stored := ms.snapshot("R")
	if assert.Len(t, stored, 1) {
		assert.Equal(t, drawn.Data, stored[0])
	}

	c := connect(t, srv, 3)
	replay := join(t, c, "R")
	assert.Equal(t, stored, replay.Elements)
	assert.Equal(t, int64(1), replay.Seq)
	expectEvent(t, a, EventUserJoined)
	expectEvent(t, b, EventUserJoined)
}

func TestClearReachesEveryone(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("R", 1)
	ms.AddParticipant(context.Background(), "R", 2)
	srv := runTestServer(t, ms)

	a := connect(t, srv, 1)
	b := connect(t, srv, 2)
	join(t, a, "R")
	join(t, b, "R")
	expectEvent(t, a, EventUserJoined)

	send(a, EventDraw, segment)
	expectEvent(t, b, EventDraw)

	send(b, EventClearBoard, "")
	expectEvent(t, b, EventPermissionDenied)
	expectNoMessage(t, a)
	assert.Len(t, ms.snapshot("R"), 1)

	send(a, EventClearBoard, "")
	expectEvent(t, a, EventClearBoard)
	expectEvent(t, b, EventClearBoard)
	assert.Empty(t, ms.snapshot("R"))

	// seq keeps counting after a clear
	send(a, EventDraw, segment)
	assert.Equal(t, int64(2), expectEvent(t, b, EventDraw).Payload.(Draw).Data.Seq)
}

func TestRoomIsolation(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("A", 1)
	ms.createRoom("B", 2)
	srv := runTestServer(t, ms)

	a := connect(t, srv, 1)
	b := connect(t, srv, 2)
	join(t, a, "A")
	join(t, b, "B")

	send(a, EventDraw, segment)
	send(a, EventClearBoard, "")
	expectEvent(t, a, EventClearBoard)
	expectNoMessage(t, b)

	// moving to another room leaves the previous one
	ms.AddParticipant(context.Background(), "B", 1)
	join(t, a, "B")
	expectEvent(t, b, EventUserJoined)

	ms.createRoom("C", 3)
	c := connect(t, srv, 3)
	join(t, c, "C")
	send(c, EventDraw, segment)
	expectNoMessage(t, a)
	expectNoMessage(t, b)

	room, ok := srv.sessions.RoomOf(a.id)
	assert.True(t, ok)
	assert.Equal(t, "B", room)
}

func TestJoinUnknownRoom(t *testing.T) {
	srv := runTestServer(t, newMemStore())

	a := connect(t, srv, 1)
	send(a, EventJoinRoom, `{"roomId":"nope"}`)
	msg := expectEvent(t, a, EventBoardError)
	assert.Equal(t, "Room not found.", msg.Payload.(BoardError).Message)
	assert.Nil(t, a.currentRoom())
}

func TestDrawWithoutJoin(t *testing.T) {
	srv := runTestServer(t, newMemStore())

	a := connect(t, srv, 1)
	send(a, EventDraw, segment)
	expectEvent(t, a, EventBoardError)
}

func TestInvalidDrawIsDropped(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("R", 1)
	ms.AddParticipant(context.Background(), "R", 2)
	srv := runTestServer(t, ms)

	a := connect(t, srv, 1)
	b := connect(t, srv, 2)
	join(t, a, "R")
	join(t, b, "R")
	expectEvent(t, a, EventUserJoined)

	for _, payload := range []string{
		`{"data":{"type":"path","points":[0,0,10]}}`,
		`{"data":{"type":"hexagon"}}`,
		`{"data":"nonsense"}`,
	} {
		send(a, EventDraw, payload)
		expectEvent(t, a, EventBoardError)
	}
	expectNoMessage(t, b)
	assert.Empty(t, ms.snapshot("R"))
}

// Draws racing with a join are either in the joiner's snapshot or delivered
// live afterwards, never both and never neither.
func TestReplayIsExactlyOnce(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("R", 1)
	ms.AddParticipant(context.Background(), "R", 2)
	srv := runTestServer(t, ms)

	a := connect(t, srv, 1)
	join(t, a, "R")

	const n = 100
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			send(a, EventDraw, segment)
		}
	}()

	c := connect(t, srv, 2)
	replay := join(t, c, "R")
	wg.Wait()

	assert.Eventually(t, func() bool { return len(ms.snapshot("R")) == n }, 2*time.Second, 10*time.Millisecond)

	seen := make(map[int64]int)
	for _, el := range replay.Elements {
		seen[el.Seq]++
	}
	for live := n - len(replay.Elements); live > 0; live-- {
		msg := expectEvent(t, c, EventDraw)
		seen[msg.Payload.(Draw).Data.Seq]++
	}
	expectNoMessage(t, c)

	assert.Len(t, seen, n)
	for seq := int64(1); seq <= n; seq++ {
		assert.Equal(t, 1, seen[seq], "seq %d", seq)
	}
}

func TestDisconnectDetaches(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("R", 1)
	ms.AddParticipant(context.Background(), "R", 2)
	srv := runTestServer(t, ms)

	a := connect(t, srv, 1)
	b := connect(t, srv, 2)
	join(t, a, "R")
	join(t, b, "R")
	expectEvent(t, a, EventUserJoined)

	b.cleanup()
	_, ok := srv.sessions.UserOf(b.id)
	assert.False(t, ok)
	b.cleanup()

	send(a, EventDraw, segment)
	expectNoMessage(t, b)
	expectNoMessage(t, a)
}

func TestIdleRoomUnloads(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("R", 1)

	unloaded := make(chan struct{})
	var once sync.Once
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
	su.On("Decr", NumActiveRooms).Run(func(mock.Arguments) {
		once.Do(func() { close(unloaded) })
	}).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	srv, err := NewWhiteboardServer(testutil.TestLogger(t), ms, ms, su, time.Second)
	assert.NoError(t, err)
	srv.idleRoomTimeout = 20 * time.Millisecond
	go srv.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	a := connect(t, srv, 1)
	join(t, a, "R")
	a.cleanup()

	select {
	case <-unloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the idle room to unload")
	}

	// the room loads again on the next join
	b := connect(t, srv, 1)
	join(t, b, "R")
}

func TestSaveBoard(t *testing.T) {
	ms := newMemStore()
	ms.createRoom("R", 1)
	ms.AddParticipant(context.Background(), "R", 2)
	srv := runTestServer(t, ms)

	b := connect(t, srv, 2)
	join(t, b, "R")

	elements := []types.Element{
		{Type: types.ElementPath, Points: []float64{0, 0, 5, 5}},
		{Type: types.ElementPath, Points: []float64{1, 1, 2, 2}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := srv.SaveBoard(ctx, "R", 2, elements)
	assert.ErrorIs(t, err, store.ErrForbidden)
	expectNoMessage(t, b)

	board, err := srv.SaveBoard(ctx, "R", 1, elements)
	assert.NoError(t, err)
	assert.Len(t, board.Elements, 2)

	lb := expectEvent(t, b, EventLoadBoard).Payload.(LoadBoard)
	assert.Equal(t, board.Elements, lb.Elements)
	assert.Equal(t, int64(2), lb.Seq)

	_, err = srv.SaveBoard(ctx, "missing", 1, elements)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
