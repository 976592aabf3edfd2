package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/zaledjen/gameserver/network"
	"github.com/zaledjen/gameserver/session"
)

// MockConnection records delivered events and can be told to fail.
type MockConnection struct {
	mutex  sync.Mutex
	events []string
	fail   bool
}

func (m *MockConnection) Send(event string, payload any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.fail {
		return errors.New("connection closed")
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockConnection) Close() error                             { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                     { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)      {}
func (m *MockConnection) ReadEnvelope() (*network.Envelope, error) { return nil, nil }

func (m *MockConnection) received() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

func addSession(manager *session.Manager, id, playerID, roomCode string, conn *MockConnection) {
	sess := session.NewSession(id, conn)
	sess.Bind(playerID, roomCode)
	manager.Add(sess)
}

func TestBroadcastToRoom(t *testing.T) {
	manager := session.NewManager()
	conn1 := &MockConnection{}
	conn2 := &MockConnection{}
	other := &MockConnection{}
	addSession(manager, "s1", "p1", "ROOM01", conn1)
	addSession(manager, "s2", "p2", "ROOM01", conn2)
	addSession(manager, "s3", "p3", "ROOM02", other)

	b := NewRoomBroadcaster(manager)
	if err := b.BroadcastToRoom("ROOM01", "player_joined", map[string]string{"player_id": "p2"}); err != nil {
		t.Fatalf("BroadcastToRoom failed: %v", err)
	}

	if got := conn1.received(); len(got) != 1 || got[0] != "player_joined" {
		t.Errorf("conn1 should have received player_joined, got %v", got)
	}
	if got := conn2.received(); len(got) != 1 {
		t.Errorf("conn2 should have received 1 event, got %v", got)
	}
	if got := other.received(); len(got) != 0 {
		t.Errorf("A session in another room must not receive the event, got %v", got)
	}
}

func TestBroadcastToRoom_SkipsDeadConnection(t *testing.T) {
	manager := session.NewManager()
	dead := &MockConnection{fail: true}
	alive := &MockConnection{}
	addSession(manager, "s1", "p1", "ROOM01", dead)
	addSession(manager, "s2", "p2", "ROOM01", alive)

	b := NewRoomBroadcaster(manager)
	if err := b.BroadcastToRoom("ROOM01", "game_started", nil); err != nil {
		t.Fatalf("A dead subscriber must not fail the broadcast: %v", err)
	}
	if got := alive.received(); len(got) != 1 {
		t.Errorf("The live connection should still receive the event, got %v", got)
	}
}

func TestBroadcastToRoom_PreservesOrder(t *testing.T) {
	manager := session.NewManager()
	conn := &MockConnection{}
	addSession(manager, "s1", "p1", "ROOM01", conn)

	b := NewRoomBroadcaster(manager)
	events := []string{"game_started", "player_frozen", "player_unfrozen", "game_over"}
	for _, event := range events {
		b.BroadcastToRoom("ROOM01", event, nil)
	}

	got := conn.received()
	if len(got) != len(events) {
		t.Fatalf("Expected %d events, got %d", len(events), len(got))
	}
	for i, event := range events {
		if got[i] != event {
			t.Errorf("Event %d: expected %q, got %q", i, event, got[i])
		}
	}
}

func TestBroadcastToPlayers(t *testing.T) {
	manager := session.NewManager()
	conn1 := &MockConnection{}
	conn2 := &MockConnection{}
	addSession(manager, "s1", "p1", "ROOM01", conn1)
	addSession(manager, "s2", "p2", "ROOM01", conn2)

	b := NewRoomBroadcaster(manager)
	if err := b.BroadcastToPlayers([]string{"p1"}, "inventory_update", nil); err != nil {
		t.Fatalf("BroadcastToPlayers failed: %v", err)
	}
	if got := conn1.received(); len(got) != 1 {
		t.Errorf("p1 should have received the event, got %v", got)
	}
	if got := conn2.received(); len(got) != 0 {
		t.Errorf("p2 must not receive a targeted event, got %v", got)
	}
}

func TestSendHook(t *testing.T) {
	manager := session.NewManager()
	addSession(manager, "s1", "p1", "ROOM01", &MockConnection{})
	addSession(manager, "s2", "p2", "ROOM01", &MockConnection{fail: true})

	b := NewRoomBroadcaster(manager)
	delivered := 0
	b.SetSendHook(func() { delivered++ })

	b.BroadcastToRoom("ROOM01", "player_joined", nil)
	if delivered != 1 {
		t.Errorf("The hook counts delivered events only, expected 1, got %d", delivered)
	}
}
