package server

import "sync"

type session struct {
	userId  int
	roomId  string
	joinGen int64
}

// SessionRegistry maps live connection ids to the authenticated user and the
// single room the connection is currently in.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*session)}
}

func (s *SessionRegistry) Attach(connId string, userId int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[connId] = &session{userId: userId}
}

// JoinRoom records roomId as the connection's room and returns the room it
// was in before, if any. gen is the connection's join counter: a join older
// than the last one applied is ignored. It reports false for unknown
// connections and ignored joins.
func (s *SessionRegistry) JoinRoom(connId, roomId string, gen int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[connId]
	if !ok || gen < sess.joinGen {
		return "", false
	}

	prev := sess.roomId
	sess.roomId = roomId
	sess.joinGen = gen
	return prev, true
}

// LeaveRoom clears the connection's room only if it is still roomId.
func (s *SessionRegistry) LeaveRoom(connId, roomId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[connId]
	if !ok || sess.roomId != roomId {
		return false
	}
	sess.roomId = ""
	return true
}

// Detach forgets the connection and returns the room it was in. Calling it
// more than once is harmless.
func (s *SessionRegistry) Detach(connId string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[connId]
	if !ok {
		return ""
	}
	delete(s.sessions, connId)
	return sess.roomId
}

func (s *SessionRegistry) RoomOf(connId string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[connId]
	if !ok || sess.roomId == "" {
		return "", false
	}
	return sess.roomId, true
}

func (s *SessionRegistry) UserOf(connId string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[connId]
	if !ok {
		return 0, false
	}
	return sess.userId, true
}

func (s *SessionRegistry) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
