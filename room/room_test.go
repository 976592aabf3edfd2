package room

import (
	"strings"
	"sync"
	"testing"

	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/models"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	m.Run()
}

// MockBroadcaster records every event fanned out to a room.
type MockBroadcaster struct {
	mutex  sync.Mutex
	events []string
}

func (m *MockBroadcaster) BroadcastToRoom(roomCode, event string, payload any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockBroadcaster) count(event string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, e := range m.events {
		if e == event {
			n++
		}
	}
	return n
}

// MockSink counts snapshot flushes and remembers saved records.
type MockSink struct {
	mutex     sync.Mutex
	records   []*models.GameRecord
	snapshots int
}

func (m *MockSink) SaveSnapshot(snapshot *models.RoomSnapshot) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.snapshots++
}

func (m *MockSink) DeleteSnapshot(code string) {}

func (m *MockSink) SaveRecord(record *models.GameRecord) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.records = append(m.records, record)
}

func (m *MockSink) recordCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.records)
}

func (m *MockSink) snapshotCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.snapshots
}

func player(id string) models.PlayerSnapshot {
	return models.PlayerSnapshot{ID: id, Username: "user_" + id}
}

func newTestManager() (*Manager, *MockBroadcaster, *MockSink) {
	broadcaster := &MockBroadcaster{}
	sink := &MockSink{}
	manager := NewManager(ManagerConfig{CodeLength: 6, DefaultMaxPlayers: 10}, broadcaster, sink, nil)
	return manager, broadcaster, sink
}

// newPlayingRoom creates a room with the given players, starts a round and
// rigs the mraz to be the first player so tests are deterministic.
func newPlayingRoom(t *testing.T, ids ...string) (*Room, *MockBroadcaster, *MockSink) {
	t.Helper()
	broadcaster := &MockBroadcaster{}
	sink := &MockSink{}
	r := NewRoom("TEST01", "Test Room", player(ids[0]), 10, false, models.RoomSettings{}, broadcaster, sink)
	for _, id := range ids[1:] {
		if err := r.Join(player(id)); err != nil {
			t.Fatalf("Join(%s) failed: %v", id, err)
		}
	}
	if _, err := r.StartRound(); err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	r.mutex.Lock()
	r.currentMraz = ids[0]
	r.mutex.Unlock()
	return r, broadcaster, sink
}

func TestManager_CreateAndGetRoom(t *testing.T) {
	manager, _, _ := newTestManager()

	room, err := manager.CreateRoom(player("host"), "Test Room", 4, false)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if len(room.Code) != 6 {
		t.Errorf("Expected a 6-character room code, got %q", room.Code)
	}
	if room.HostID != "host" {
		t.Errorf("Expected host ID 'host', got %q", room.HostID)
	}
	if !room.HasPlayer("host") {
		t.Error("The host should be a member of the new room")
	}

	retrieved, exists := manager.GetRoom(room.Code)
	if !exists {
		t.Fatal("GetRoom should find the created room")
	}
	if retrieved != room {
		t.Error("GetRoom should return the same room instance")
	}

	// Codes are case-insensitive on input.
	if _, exists := manager.GetRoom(strings.ToLower(room.Code)); !exists {
		t.Error("GetRoom should be case-insensitive")
	}
}

func TestManager_JoinRoom(t *testing.T) {
	manager, _, _ := newTestManager()
	room, _ := manager.CreateRoom(player("host"), "Join Test", 2, false)

	if _, err := manager.JoinRoom(room.Code, player("p2")); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if room.PlayerCount() != 2 {
		t.Errorf("Expected 2 players, got %d", room.PlayerCount())
	}

	// Full room rejects a third player.
	if _, err := manager.JoinRoom(room.Code, player("p3")); err != ErrRoomFull {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}

	// Unknown code.
	if _, err := manager.JoinRoom("NOPE99", player("p4")); err != ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoom_Join_Idempotent(t *testing.T) {
	manager, broadcaster, _ := newTestManager()
	room, _ := manager.CreateRoom(player("host"), "Rejoin Test", 4, false)

	if _, err := manager.JoinRoom(room.Code, player("p2")); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	// A reconnecting client joins again with the same ID.
	if _, err := manager.JoinRoom(room.Code, player("p2")); err != nil {
		t.Fatalf("Rejoin should succeed, got %v", err)
	}
	if room.PlayerCount() != 2 {
		t.Errorf("Rejoin must not duplicate membership, got %d players", room.PlayerCount())
	}
	// Both joins are announced.
	if got := broadcaster.count("player_joined"); got != 2 {
		t.Errorf("Expected 2 player_joined events, got %d", got)
	}
}

func TestRoom_Join_NotJoinableWhilePlaying(t *testing.T) {
	r, _, _ := newPlayingRoom(t, "a", "b")

	if err := r.Join(player("late")); err != ErrRoomNotJoinable {
		t.Errorf("Expected ErrRoomNotJoinable mid-round, got %v", err)
	}
}

func TestManager_RemovePlayer_EvictsEmptyRoom(t *testing.T) {
	manager, _, _ := newTestManager()
	room, _ := manager.CreateRoom(player("host"), "Evict Test", 4, false)

	manager.RemovePlayer(room.Code, "host")
	if _, exists := manager.GetRoom(room.Code); exists {
		t.Error("An empty room should be evicted from the registry")
	}

	// Removing from an unknown room or an unknown player is a no-op.
	manager.RemovePlayer("NOPE99", "host")
	manager.RemovePlayer(room.Code, "ghost")
}

func TestRoom_SetReady(t *testing.T) {
	manager, broadcaster, _ := newTestManager()
	room, _ := manager.CreateRoom(player("host"), "Ready Test", 4, false)
	manager.JoinRoom(room.Code, player("p2"))

	if err := room.SetReady("p2", true); err != nil {
		t.Fatalf("SetReady failed: %v", err)
	}
	if got := broadcaster.count("player_ready_update"); got != 1 {
		t.Errorf("Expected 1 player_ready_update event, got %d", got)
	}
	if err := room.SetReady("ghost", true); err != ErrNotInRoom {
		t.Errorf("Expected ErrNotInRoom, got %v", err)
	}
}

func TestRoom_StartRound(t *testing.T) {
	manager, broadcaster, _ := newTestManager()
	room, _ := manager.CreateRoom(player("host"), "Start Test", 4, false)
	manager.JoinRoom(room.Code, player("p2"))
	manager.JoinRoom(room.Code, player("p3"))

	result, err := room.StartRound()
	if err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	if room.Status() != StatusPlaying {
		t.Errorf("Expected status playing, got %v", room.Status())
	}
	if result.RoundNumber != 1 {
		t.Errorf("Expected round number 1, got %d", result.RoundNumber)
	}
	if !room.HasPlayer(result.MrazID) {
		t.Errorf("The mraz %q must be a room member", result.MrazID)
	}
	if len(room.FrozenPlayers()) != 0 {
		t.Error("A fresh round must start with an empty frozen set")
	}

	// Exactly one mraz in the status map, everyone else active.
	mrazCount := 0
	for id, status := range result.PlayerStatuses {
		switch status {
		case "mraz":
			mrazCount++
			if id != result.MrazID {
				t.Errorf("Status map marks %q as mraz but MrazID is %q", id, result.MrazID)
			}
		case "active":
		default:
			t.Errorf("Unexpected player status %q", status)
		}
	}
	if mrazCount != 1 {
		t.Errorf("Expected exactly 1 mraz, got %d", mrazCount)
	}

	if got := broadcaster.count("game_started"); got != 1 {
		t.Errorf("Expected 1 game_started event, got %d", got)
	}

	// A second start while playing is rejected.
	if _, err := room.StartRound(); err != ErrInvalidTransition {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestRoom_Freeze_Preconditions(t *testing.T) {
	r, _, _ := newPlayingRoom(t, "mraz", "b", "c")

	// Only the mraz may freeze.
	if _, err := r.Freeze("c", "b"); err != ErrInvalidTransition {
		t.Errorf("Non-mraz freeze: expected ErrInvalidTransition, got %v", err)
	}
	// The mraz cannot freeze itself.
	if _, err := r.Freeze("mraz", "mraz"); err != ErrInvalidTransition {
		t.Errorf("Self freeze: expected ErrInvalidTransition, got %v", err)
	}
	// The target must be a member.
	if _, err := r.Freeze("ghost", "mraz"); err != ErrInvalidTransition {
		t.Errorf("Unknown target: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := r.Freeze("b", "mraz"); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	// Double freeze of the same target.
	if _, err := r.Freeze("b", "mraz"); err != ErrInvalidTransition {
		t.Errorf("Double freeze: expected ErrInvalidTransition, got %v", err)
	}
}

func TestRoom_Freeze_BeforeStart(t *testing.T) {
	broadcaster := &MockBroadcaster{}
	r := NewRoom("TEST02", "Lobby", player("a"), 4, false, models.RoomSettings{}, broadcaster, &MockSink{})
	r.Join(player("b"))

	if _, err := r.Freeze("b", "a"); err != ErrRoundNotActive {
		t.Errorf("Expected ErrRoundNotActive before start, got %v", err)
	}
}

func TestRoom_Unfreeze(t *testing.T) {
	r, broadcaster, _ := newPlayingRoom(t, "mraz", "b", "c")

	if _, err := r.Freeze("b", "mraz"); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}

	// The mraz may not thaw.
	if err := r.Unfreeze("b", "mraz"); err != ErrInvalidTransition {
		t.Errorf("Mraz unfreeze: expected ErrInvalidTransition, got %v", err)
	}
	// The rescuer must be a member.
	if err := r.Unfreeze("b", "ghost"); err != ErrInvalidTransition {
		t.Errorf("Unknown rescuer: expected ErrInvalidTransition, got %v", err)
	}
	// The target must actually be frozen.
	if err := r.Unfreeze("c", "b"); err != ErrInvalidTransition {
		t.Errorf("Unfrozen target: expected ErrInvalidTransition, got %v", err)
	}

	if err := r.Unfreeze("b", "c"); err != nil {
		t.Fatalf("Unfreeze failed: %v", err)
	}
	if len(r.FrozenPlayers()) != 0 {
		t.Errorf("Expected empty frozen set after thaw, got %v", r.FrozenPlayers())
	}
	if got := broadcaster.count("player_unfrozen"); got != 1 {
		t.Errorf("Expected 1 player_unfrozen event, got %d", got)
	}
}

func TestRoom_Freeze_WinCondition(t *testing.T) {
	r, broadcaster, sink := newPlayingRoom(t, "mraz", "b", "c")

	result, err := r.Freeze("b", "mraz")
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if result.GameOver {
		t.Fatal("The round must not end while a runner is still unfrozen")
	}

	result, err = r.Freeze("c", "mraz")
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if !result.GameOver {
		t.Fatal("Freezing the last runner must end the round")
	}
	if result.Winner != "mraz" {
		t.Errorf("Expected winner 'mraz', got %q", result.Winner)
	}
	if r.Status() != StatusFinished {
		t.Errorf("Expected status finished, got %v", r.Status())
	}

	// Outside a running round the room holds no chaser and no frozen set.
	if r.CurrentMraz() != "" {
		t.Errorf("Expected no mraz after the round, got %q", r.CurrentMraz())
	}
	if len(r.FrozenPlayers()) != 0 {
		t.Errorf("Expected empty frozen set after the round, got %v", r.FrozenPlayers())
	}

	if got := broadcaster.count("game_over"); got != 1 {
		t.Errorf("Expected exactly 1 game_over event, got %d", got)
	}
	if sink.recordCount() != 1 {
		t.Errorf("Expected 1 game record, got %d", sink.recordCount())
	}
}

func TestRoom_ConcurrentFreezes_SingleGameOver(t *testing.T) {
	for i := 0; i < 50; i++ {
		r, broadcaster, _ := newPlayingRoom(t, "mraz", "b", "c")

		var wg sync.WaitGroup
		wg.Add(2)
		for _, target := range []string{"b", "c"} {
			go func(target string) {
				defer wg.Done()
				r.Freeze(target, "mraz")
			}(target)
		}
		wg.Wait()

		if r.Status() != StatusFinished {
			t.Fatalf("Both freezes applied, the round must be finished, got %v", r.Status())
		}
		if got := broadcaster.count("game_over"); got != 1 {
			t.Fatalf("Expected exactly 1 game_over event, got %d", got)
		}
	}
}

func TestRoom_MrazLeaves_Reassigned(t *testing.T) {
	r, broadcaster, _ := newPlayingRoom(t, "mraz", "b", "c")

	if _, err := r.Remove("mraz"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if r.Status() != StatusPlaying {
		t.Errorf("The round should continue with a new mraz, got status %v", r.Status())
	}
	newMraz := r.CurrentMraz()
	if newMraz != "b" && newMraz != "c" {
		t.Errorf("The new mraz must be a remaining unfrozen player, got %q", newMraz)
	}
	if got := broadcaster.count("mraz_changed"); got != 1 {
		t.Errorf("Expected 1 mraz_changed event, got %d", got)
	}
}

func TestRoom_MrazLeaves_PromotedPlayerWinsImmediately(t *testing.T) {
	// Mraz plus two runners, one frozen. When the mraz leaves, the frozen
	// runner must not be picked as the replacement — and the promoted
	// player inherits a board where everyone else is already on ice, so
	// the round ends in their favor right away.
	r, broadcaster, sink := newPlayingRoom(t, "mraz", "b", "c")
	if _, err := r.Freeze("b", "mraz"); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if _, err := r.Remove("mraz"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if got := broadcaster.count("mraz_changed"); got != 1 {
		t.Errorf("Expected 1 mraz_changed event, got %d", got)
	}
	if r.Status() != StatusFinished {
		t.Fatalf("Expected status finished, got %v", r.Status())
	}
	if got := broadcaster.count("game_over"); got != 1 {
		t.Errorf("Expected 1 game_over event, got %d", got)
	}
	if sink.recordCount() != 1 || sink.records[0].Winner != "c" {
		t.Error("The promoted unfrozen player should be recorded as the winner")
	}
}

func TestRoom_LastRunnerLeaves_MrazWins(t *testing.T) {
	r, broadcaster, sink := newPlayingRoom(t, "mraz", "b", "c")

	if _, err := r.Freeze("b", "mraz"); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	// The only unfrozen runner walks out: the mraz has no one left to catch.
	if _, err := r.Remove("c"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if r.Status() != StatusFinished {
		t.Errorf("Expected status finished, got %v", r.Status())
	}
	if got := broadcaster.count("game_over"); got != 1 {
		t.Errorf("Expected 1 game_over event, got %d", got)
	}
	if sink.recordCount() != 1 || sink.records[0].Winner != "mraz" {
		t.Error("The mraz should be recorded as the winner")
	}
}

func TestRoom_ResetToWaiting(t *testing.T) {
	r, _, _ := newPlayingRoom(t, "mraz", "b")

	if err := r.ResetToWaiting(); err != ErrInvalidTransition {
		t.Errorf("Reset while playing: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := r.Freeze("b", "mraz"); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if r.Status() != StatusFinished {
		t.Fatalf("Expected status finished, got %v", r.Status())
	}

	if err := r.ResetToWaiting(); err != nil {
		t.Fatalf("ResetToWaiting failed: %v", err)
	}
	if r.Status() != StatusWaiting {
		t.Errorf("Expected status waiting, got %v", r.Status())
	}

	// The next round runs again from the lobby.
	result, err := r.StartRound()
	if err != nil {
		t.Fatalf("StartRound after reset failed: %v", err)
	}
	if result.RoundNumber != 2 {
		t.Errorf("Expected round number 2, got %d", result.RoundNumber)
	}
}

func TestRoom_StartRound_FromFinished(t *testing.T) {
	r, broadcaster, _ := newPlayingRoom(t, "mraz", "b")

	if _, err := r.Freeze("b", "mraz"); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if r.Status() != StatusFinished {
		t.Fatalf("Expected status finished, got %v", r.Status())
	}

	// A finished room starts its next round without a lobby round-trip.
	result, err := r.StartRound()
	if err != nil {
		t.Fatalf("StartRound from finished failed: %v", err)
	}
	if result.RoundNumber != 2 {
		t.Errorf("Expected round number 2, got %d", result.RoundNumber)
	}
	if r.Status() != StatusPlaying {
		t.Errorf("Expected status playing, got %v", r.Status())
	}
	if len(r.FrozenPlayers()) != 0 {
		t.Errorf("The new round must start with an empty frozen set, got %v", r.FrozenPlayers())
	}
	if got := broadcaster.count("game_started"); got != 2 {
		t.Errorf("Expected 2 game_started events, got %d", got)
	}
}

func TestRoom_Rejoin_FlushesSnapshot(t *testing.T) {
	sink := &MockSink{}
	r := NewRoom("TEST03", "Rejoin Flush", player("a"), 4, false, models.RoomSettings{}, &MockBroadcaster{}, sink)

	if err := r.Join(player("b")); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	before := sink.snapshotCount()

	// The rejoin path mirrors the room like every other mutation.
	if err := r.Join(player("b")); err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	if got := sink.snapshotCount(); got != before+1 {
		t.Errorf("Expected a snapshot flush on rejoin, got %d -> %d", before, got)
	}
}

func TestManager_ListPublicWaiting(t *testing.T) {
	manager, _, _ := newTestManager()

	public, _ := manager.CreateRoom(player("h1"), "Public", 4, false)
	manager.CreateRoom(player("h2"), "Private", 4, true)
	playing, _ := manager.CreateRoom(player("h3"), "Playing", 4, false)
	playing.StartRound()

	list := manager.ListPublicWaiting(10)
	if len(list) != 1 {
		t.Fatalf("Expected 1 public waiting room, got %d", len(list))
	}
	if list[0].Code != public.Code {
		t.Errorf("Expected room %s in the listing, got %s", public.Code, list[0].Code)
	}
}

func TestRoom_Snapshot(t *testing.T) {
	r, _, _ := newPlayingRoom(t, "mraz", "b")

	snapshot := r.Snapshot()
	if snapshot.Code != "TEST01" {
		t.Errorf("Expected code TEST01, got %s", snapshot.Code)
	}
	if snapshot.Status != "playing" {
		t.Errorf("Expected status 'playing', got %q", snapshot.Status)
	}
	if snapshot.CurrentMraz != "mraz" {
		t.Errorf("Expected current mraz 'mraz', got %q", snapshot.CurrentMraz)
	}
	if len(snapshot.Players) != 2 {
		t.Errorf("Expected 2 players in the snapshot, got %d", len(snapshot.Players))
	}
}
