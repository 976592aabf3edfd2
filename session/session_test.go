package session

import (
	"net"
	"testing"
	"time"

	"github.com/zaledjen/gameserver/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(event string, payload any) error      { return nil }
func (m *MockConnection) Close() error                              { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                      { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)       {}
func (m *MockConnection) ReadEnvelope() (*network.Envelope, error)  { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	// Test Add
	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	// Test Get
	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	// Test Remove
	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestSession_Bind_Mapping_Unbind(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})

	playerID, roomCode := sess.Mapping()
	if playerID != "" || roomCode != "" {
		t.Errorf("A fresh session should be unbound, got (%q, %q)", playerID, roomCode)
	}

	sess.Bind("player1", "ABC123")
	playerID, roomCode = sess.Mapping()
	if playerID != "player1" || roomCode != "ABC123" {
		t.Errorf("Expected mapping (player1, ABC123), got (%q, %q)", playerID, roomCode)
	}

	sess.Unbind()
	playerID, roomCode = sess.Mapping()
	if playerID != "" || roomCode != "" {
		t.Errorf("Unbind should clear the mapping, got (%q, %q)", playerID, roomCode)
	}

	// Unbind on an already unbound session is a no-op.
	sess.Unbind()
}

func TestManager_GetByRoom(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.Bind("player1", "ROOM01")

	sess2 := NewSession("session2", &MockConnection{})
	sess2.Bind("player2", "ROOM02")

	sess3 := NewSession("session3", &MockConnection{})
	sess3.Bind("player3", "ROOM01")

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	room1Sessions := manager.GetByRoom("ROOM01")
	if len(room1Sessions) != 2 {
		t.Errorf("Expected 2 sessions in ROOM01, got %d", len(room1Sessions))
	}

	room2Sessions := manager.GetByRoom("ROOM02")
	if len(room2Sessions) != 1 {
		t.Errorf("Expected 1 session in ROOM02, got %d", len(room2Sessions))
	}

	emptySessions := manager.GetByRoom("ROOM99")
	if len(emptySessions) != 0 {
		t.Errorf("Expected 0 sessions in ROOM99, got %d", len(emptySessions))
	}
}

func TestManager_GetByPlayerID(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.Bind("player1", "ROOM01")

	// The same player reconnecting gets a fresh session before the stale
	// one is removed.
	sess2 := NewSession("session2", &MockConnection{})
	sess2.Bind("player1", "ROOM01")

	manager.Add(sess1)
	manager.Add(sess2)

	player1Sessions := manager.GetByPlayerID("player1")
	if len(player1Sessions) != 2 {
		t.Errorf("Expected 2 sessions for player1, got %d", len(player1Sessions))
	}

	unknownSessions := manager.GetByPlayerID("ghost")
	if len(unknownSessions) != 0 {
		t.Errorf("Expected 0 sessions for an unknown player, got %d", len(unknownSessions))
	}
}
