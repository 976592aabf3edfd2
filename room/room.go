// room/room.go
package room

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/models"
	"github.com/zaledjen/gameserver/network"
)

// Status 表示房间的业务状态
type Status int

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	}
	return "unknown"
}

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrRoomNotJoinable   = errors.New("room is not joinable")
	ErrNotEnoughPlayers  = errors.New("not enough players to start")
	ErrRoundNotActive    = errors.New("round is not active")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotInRoom         = errors.New("player is not in the room")
	ErrCorruptState      = errors.New("room state is corrupt")
)

// Room 是游戏房间的核心结构. Every mutating operation takes r.mutex, so all
// joins, leaves, ready flips, round starts and freeze/unfreeze calls on one
// room run on a single serialized lane. Different rooms share nothing.
type Room struct {
	Code       string
	Name       string
	HostID     string
	MaxPlayers int
	IsPrivate  bool
	Settings   models.RoomSettings
	CreatedAt  time.Time

	mutex        sync.Mutex
	status       Status
	players      []*models.PlayerSnapshot // join order
	currentMraz  string
	frozen       map[string]struct{}
	roundNumber  int
	roundStarted time.Time
	lastActive   time.Time
	dead         bool  // set on invariant violation, evicted by the sweep
	gameTimerID  int64 // pending game-duration task, 0 = none

	broadcaster Broadcaster
	sink        Sink
	scheduleFn  func(delay time.Duration, fn func()) int64
	cancelTimer func(id int64)
}

// SetScheduler wires the registry's timer manager into the room so rounds
// can arm a game-duration timeout. Must be called before StartRound.
func (r *Room) SetScheduler(schedule func(delay time.Duration, fn func()) int64, cancel func(id int64)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.scheduleFn = schedule
	r.cancelTimer = cancel
}

// NewRoom 创建一个新房间 with the host as its only, host-flagged player.
func NewRoom(code, name string, host models.PlayerSnapshot, maxPlayers int, isPrivate bool, settings models.RoomSettings, broadcaster Broadcaster, sink Sink) *Room {
	host.IsHost = true
	now := time.Now()
	r := &Room{
		Code:        code,
		Name:        name,
		HostID:      host.ID,
		MaxPlayers:  maxPlayers,
		IsPrivate:   isPrivate,
		Settings:    settings,
		CreatedAt:   now,
		status:      StatusWaiting,
		players:     []*models.PlayerSnapshot{&host},
		frozen:      make(map[string]struct{}),
		lastActive:  now,
		broadcaster: broadcaster,
		sink:        sink,
	}
	return r
}

// Join adds a player snapshot to the room. Rejoining with an ID already in
// the room is a no-op success so a reconnecting client never duplicates its
// membership entry.
func (r *Room) Join(p models.PlayerSnapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing := r.findLocked(p.ID); existing != nil {
		// Rejoin: announce the (re)connection but keep the one membership.
		r.touchLocked()
		r.broadcast(network.EventPlayerJoined, map[string]any{
			"player_id": existing.ID,
			"username":  existing.Username,
		})
		r.flushLocked()
		return nil
	}
	if r.status != StatusWaiting {
		return ErrRoomNotJoinable
	}
	if len(r.players) >= r.MaxPlayers {
		return ErrRoomFull
	}

	p.IsHost = false
	p.IsReady = false
	r.players = append(r.players, &p)
	r.touchLocked()

	r.broadcast(network.EventPlayerJoined, map[string]any{
		"player_id": p.ID,
		"username":  p.Username,
	})
	r.flushLocked()
	return nil
}

// Remove takes a player out of the room. If the departing player was the
// mraz the round is handed to a random unfrozen player, or finished with no
// winner when nobody is left to chase. Returns true when the room is empty.
func (r *Room) Remove(playerID string) (empty bool, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.findLocked(playerID) == nil {
		return len(r.players) == 0, ErrNotInRoom
	}

	for i, p := range r.players {
		if p.ID == playerID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}
	delete(r.frozen, playerID)
	r.touchLocked()

	r.broadcast(network.EventPlayerLeft, map[string]any{"player_id": playerID})

	if r.status == StatusPlaying {
		if playerID == r.currentMraz {
			r.reassignMrazLocked()
		} else if r.allFrozenLocked() {
			// The last unfrozen runner left; the mraz has no one left to catch.
			r.finishLocked(r.currentMraz)
		}
	}

	if err := r.verifyLocked(); err != nil {
		return len(r.players) == 0, err
	}
	r.flushLocked()
	return len(r.players) == 0, nil
}

// SetReady flips the ready flag. Only meaningful while waiting.
func (r *Room) SetReady(playerID string, ready bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p := r.findLocked(playerID)
	if p == nil {
		return ErrNotInRoom
	}
	if r.status != StatusWaiting {
		return ErrInvalidTransition
	}

	p.IsReady = ready
	r.touchLocked()

	r.broadcast(network.EventPlayerReadyUpdate, map[string]any{
		"player_id": playerID,
		"is_ready":  ready,
	})
	r.flushLocked()
	return nil
}

// StartResult describes a freshly started round.
type StartResult struct {
	MrazID         string
	MrazUsername   string
	PlayerStatuses map[string]string
	RoundNumber    int
	PlayerIDs      []string
}

// StartRound picks a mraz uniformly at random, clears the frozen set and
// moves the room to playing. A finished room starts its next round directly,
// without a trip back through the lobby.
func (r *Room) StartRound() (*StartResult, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status == StatusPlaying {
		return nil, ErrInvalidTransition
	}
	if len(r.players) < 1 {
		return nil, ErrNotEnoughPlayers
	}

	mraz := r.players[rand.Intn(len(r.players))]
	r.currentMraz = mraz.ID
	r.frozen = make(map[string]struct{})
	r.status = StatusPlaying
	r.roundNumber++
	r.roundStarted = time.Now()
	r.touchLocked()

	statuses := make(map[string]string, len(r.players))
	ids := make([]string, 0, len(r.players))
	for _, p := range r.players {
		ids = append(ids, p.ID)
		if p.ID == mraz.ID {
			statuses[p.ID] = "mraz"
		} else {
			statuses[p.ID] = "active"
		}
	}

	r.scheduleTimeUpLocked()

	r.broadcast(network.EventGameStarted, map[string]any{
		"mraz_id":         mraz.ID,
		"mraz_username":   mraz.Username,
		"player_statuses": statuses,
		"round_number":    r.roundNumber,
	})
	r.flushLocked()

	return &StartResult{
		MrazID:         mraz.ID,
		MrazUsername:   mraz.Username,
		PlayerStatuses: statuses,
		RoundNumber:    r.roundNumber,
		PlayerIDs:      ids,
	}, nil
}

// FreezeResult reports what a successful freeze did to the round.
type FreezeResult struct {
	GameOver bool
	Winner   string
	Frozen   []string
}

// Freeze marks target as frozen. Only the current mraz may freeze, never
// itself, never an already-frozen player. The win check runs here, inside
// the same locked step that applied the mutation, so two racing freezes can
// never both observe a stale frozen set.
func (r *Room) Freeze(targetID, actorID string) (*FreezeResult, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status != StatusPlaying {
		return nil, ErrRoundNotActive
	}
	if actorID != r.currentMraz {
		return nil, ErrInvalidTransition
	}
	if targetID == r.currentMraz {
		return nil, ErrInvalidTransition
	}
	if r.findLocked(targetID) == nil {
		return nil, ErrInvalidTransition
	}
	if _, alreadyFrozen := r.frozen[targetID]; alreadyFrozen {
		return nil, ErrInvalidTransition
	}

	r.frozen[targetID] = struct{}{}
	r.touchLocked()

	r.broadcast(network.EventPlayerFrozen, map[string]any{
		"frozen_player_id": targetID,
		"mraz_id":          actorID,
	})

	result := &FreezeResult{Frozen: r.frozenLocked()}
	if r.allFrozenLocked() {
		result.GameOver = true
		result.Winner = r.currentMraz
		r.finishLocked(r.currentMraz)
	}

	if err := r.verifyLocked(); err != nil {
		return nil, err
	}
	r.flushLocked()
	return result, nil
}

// Unfreeze thaws a frozen player. Any teammate may thaw, the mraz may not.
func (r *Room) Unfreeze(targetID, actorID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status != StatusPlaying {
		return ErrRoundNotActive
	}
	if actorID == r.currentMraz {
		return ErrInvalidTransition
	}
	if r.findLocked(actorID) == nil {
		return ErrInvalidTransition
	}
	if _, frozen := r.frozen[targetID]; !frozen {
		return ErrInvalidTransition
	}

	delete(r.frozen, targetID)
	r.touchLocked()

	r.broadcast(network.EventPlayerUnfrozen, map[string]any{
		"unfrozen_player_id": targetID,
		"unfreezer_id":       actorID,
	})

	if err := r.verifyLocked(); err != nil {
		return err
	}
	r.flushLocked()
	return nil
}

// Relay re-broadcasts an auxiliary event (powers, proximity, location) to
// the room without touching game state.
func (r *Room) Relay(event string, payload any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.touchLocked()
	r.broadcast(event, payload)
}

// Snapshot returns a durable copy of the room's current state.
func (r *Room) Snapshot() *models.RoomSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshotLocked()
}

// Status returns the room's lifecycle status.
func (r *Room) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status
}

// HasPlayer reports membership by player ID.
func (r *Room) HasPlayer(playerID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.findLocked(playerID) != nil
}

// PlayerCount returns the current membership size.
func (r *Room) PlayerCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.players)
}

// CurrentMraz returns the chaser's player ID, empty while not playing.
func (r *Room) CurrentMraz() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.currentMraz
}

// FrozenPlayers returns the frozen player IDs.
func (r *Room) FrozenPlayers() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.frozenLocked()
}

// IdleFor reports how long ago the room last saw a mutating event.
func (r *Room) IdleFor() time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return time.Since(r.lastActive)
}

// Dead reports whether the room was condemned after an invariant violation.
func (r *Room) Dead() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.dead
}

// ResetToWaiting returns a finished room to the lobby for another round.
func (r *Room) ResetToWaiting() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status != StatusFinished {
		return ErrInvalidTransition
	}
	r.status = StatusWaiting
	r.currentMraz = ""
	r.frozen = make(map[string]struct{})
	for _, p := range r.players {
		p.IsReady = false
	}
	r.touchLocked()
	r.flushLocked()
	return nil
}

// --- internals, all called with r.mutex held ---

func (r *Room) findLocked(playerID string) *models.PlayerSnapshot {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) frozenLocked() []string {
	out := make([]string, 0, len(r.frozen))
	for _, p := range r.players {
		if _, ok := r.frozen[p.ID]; ok {
			out = append(out, p.ID)
		}
	}
	return out
}

// allFrozenLocked is the win predicate: every non-mraz member is frozen.
func (r *Room) allFrozenLocked() bool {
	for _, p := range r.players {
		if p.ID == r.currentMraz {
			continue
		}
		if _, ok := r.frozen[p.ID]; !ok {
			return false
		}
	}
	return true
}

// reassignMrazLocked hands the round to a random unfrozen player after the
// mraz left mid-round, or finishes with no winner if nobody qualifies.
func (r *Room) reassignMrazLocked() {
	var candidates []*models.PlayerSnapshot
	for _, p := range r.players {
		if _, frozen := r.frozen[p.ID]; !frozen {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		r.currentMraz = ""
		r.finishLocked("")
		return
	}

	next := candidates[rand.Intn(len(candidates))]
	r.currentMraz = next.ID
	r.broadcast(network.EventMrazChanged, map[string]any{
		"mraz_id":       next.ID,
		"mraz_username": next.Username,
	})

	// The promoted player may already have everyone else on ice.
	if r.allFrozenLocked() {
		r.finishLocked(next.ID)
	}
}

// finishLocked ends the round exactly once and emits the terminal event.
func (r *Room) finishLocked(winner string) {
	if r.status != StatusPlaying {
		return
	}
	r.status = StatusFinished
	if r.gameTimerID != 0 && r.cancelTimer != nil {
		r.cancelTimer(r.gameTimerID)
	}
	r.gameTimerID = 0

	frozen := r.frozenLocked()
	r.broadcast(network.EventGameOver, map[string]any{
		"winner":         winner,
		"frozen_players": frozen,
	})

	players := make([]string, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p.ID)
	}
	r.sink.SaveRecord(&models.GameRecord{
		RoomCode:      r.Code,
		RoundNumber:   r.roundNumber,
		Winner:        winner,
		FrozenPlayers: frozen,
		Players:       players,
		Duration:      int(time.Since(r.roundStarted).Seconds()),
		CreatedAt:     time.Now(),
	})

	// Outside a running round the room holds no chaser and no frozen set;
	// the winner lives on in the game record.
	r.currentMraz = ""
	r.frozen = make(map[string]struct{})
}

// scheduleTimeUpLocked arms the game-duration timeout for this round. When
// it fires and the same round is still running, the round ends with no
// winner: the mraz failed to freeze everyone in time.
func (r *Room) scheduleTimeUpLocked() {
	if r.Settings.GameDuration <= 0 || r.scheduleFn == nil {
		return
	}
	round := r.roundNumber
	r.gameTimerID = r.scheduleFn(time.Duration(r.Settings.GameDuration)*time.Second, func() {
		r.timeUp(round)
	})
}

func (r *Room) timeUp(round int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.status != StatusPlaying || r.roundNumber != round {
		return
	}
	logger.Log.Infof("room %s round %d ran out of time", r.Code, round)
	r.finishLocked("")
	r.flushLocked()
}

// verifyLocked guards the structural invariants. A violation condemns the
// room: its players are told and the registry sweep evicts it.
func (r *Room) verifyLocked() error {
	corrupt := false
	if _, ok := r.frozen[r.currentMraz]; ok && r.currentMraz != "" {
		corrupt = true
	}
	for id := range r.frozen {
		if r.findLocked(id) == nil {
			corrupt = true
		}
	}
	if r.status != StatusPlaying && (len(r.frozen) > 0 || r.currentMraz != "") {
		corrupt = true
	}
	if !corrupt {
		return nil
	}

	r.dead = true
	logger.Log.Errorf("room %s state is corrupt, tearing it down", r.Code)
	r.broadcast(network.EventRoomClosed, map[string]any{"reason": "internal error"})
	return ErrCorruptState
}

func (r *Room) touchLocked() {
	r.lastActive = time.Now()
}

// broadcast fans out one event. Called inside the room's lane so events
// reach the dispatcher in the order they were applied.
func (r *Room) broadcast(event string, payload any) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.BroadcastToRoom(r.Code, event, payload); err != nil {
		logger.Log.Warnf("broadcast %s to room %s failed: %v", event, r.Code, err)
	}
}

// flushLocked mirrors the room to the persistent store, best effort.
func (r *Room) flushLocked() {
	if r.sink == nil {
		return
	}
	r.sink.SaveSnapshot(r.snapshotLocked())
}

func (r *Room) snapshotLocked() *models.RoomSnapshot {
	players := make([]models.PlayerSnapshot, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, *p)
	}
	return &models.RoomSnapshot{
		Code:          r.Code,
		Name:          r.Name,
		HostID:        r.HostID,
		Players:       players,
		Status:        r.status.String(),
		CurrentMraz:   r.currentMraz,
		FrozenPlayers: r.frozenLocked(),
		RoundNumber:   r.roundNumber,
		MaxPlayers:    r.MaxPlayers,
		IsPrivate:     r.IsPrivate,
		Settings:      r.Settings,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     time.Now(),
	}
}
