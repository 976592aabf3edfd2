// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/zaledjen/gameserver/network"
)

// Session ties one live websocket connection to a player and a room. The
// PlayerID/RoomCode pair is the gateway's connection mapping: empty values
// mean the connection has not joined a game yet.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time

	mutex    sync.RWMutex
	playerID string
	roomCode string
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Bind records which player and room this connection belongs to.
func (s *Session) Bind(playerID, roomCode string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.playerID = playerID
	s.roomCode = roomCode
}

// Unbind clears the player/room mapping. Safe to call when never bound.
func (s *Session) Unbind() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.playerID = ""
	s.roomCode = ""
}

// Mapping returns the bound (playerID, roomCode) pair.
func (s *Session) Mapping() (playerID, roomCode string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.playerID, s.roomCode
}

func (s *Session) Send(event string, payload any) error {
	s.LastActive = time.Now()
	return s.Conn.Send(event, payload)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// GetByRoom returns every session currently bound to the room code.
func (m *Manager) GetByRoom(roomCode string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if _, code := session.Mapping(); code == roomCode {
			result = append(result, session)
		}
	}
	return result
}

// GetByPlayerID returns every session bound to the player. A player can
// hold more than one (phone reconnects before the stale socket times out).
func (m *Manager) GetByPlayerID(playerID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if id, _ := session.Mapping(); id == playerID {
			result = append(result, session)
		}
	}
	return result
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
