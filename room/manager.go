// room/manager.go
package room

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/models"
	"github.com/zaledjen/gameserver/timer"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ManagerConfig carries the registry's tunables from the config file.
type ManagerConfig struct {
	DefaultMaxPlayers int
	CodeLength        int
	IdleTimeout       time.Duration
	GameDuration      time.Duration
	FreezeDuration    time.Duration
	PowersEnabled     bool
}

// Manager 管理所有房间. It owns the authoritative in-memory room map; the
// persistent store only mirrors it. The manager's lock guards the map, the
// per-room mutex guards each room's state.
type Manager struct {
	rooms       map[string]*Room
	mutex       sync.RWMutex
	broadcaster Broadcaster
	sink        Sink
	timers      *timer.Manager
	cfg         ManagerConfig
	sweepID     int64
}

// NewManager 创建一个新的房间管理器 and arms the periodic idle sweep.
func NewManager(cfg ManagerConfig, broadcaster Broadcaster, sink Sink, timers *timer.Manager) *Manager {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.DefaultMaxPlayers <= 0 {
		cfg.DefaultMaxPlayers = 10
	}
	m := &Manager{
		rooms:       make(map[string]*Room),
		broadcaster: broadcaster,
		sink:        sink,
		timers:      timers,
		cfg:         cfg,
	}
	if timers != nil && cfg.IdleTimeout > 0 {
		m.sweepID = timers.Schedule(time.Minute, time.Minute, m.sweep)
	}
	return m
}

// CreateRoom registers a new room with a freshly generated code and the
// host as its only player.
func (m *Manager) CreateRoom(host models.PlayerSnapshot, name string, maxPlayers int, isPrivate bool) (*Room, error) {
	if maxPlayers <= 0 {
		maxPlayers = m.cfg.DefaultMaxPlayers
	}
	settings := models.RoomSettings{
		FreezeDuration: int(m.cfg.FreezeDuration.Seconds()),
		GameDuration:   int(m.cfg.GameDuration.Seconds()),
		PowersEnabled:  m.cfg.PowersEnabled,
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	code, err := m.generateCodeLocked()
	if err != nil {
		return nil, err
	}

	room := NewRoom(code, name, host, maxPlayers, isPrivate, settings, m.broadcaster, m.sink)
	if m.timers != nil {
		room.SetScheduler(
			func(delay time.Duration, fn func()) int64 { return m.timers.Schedule(delay, 0, fn) },
			m.timers.Cancel,
		)
	}
	m.rooms[code] = room

	logger.Log.Infof("room %s created by %s (max %d, private %v)", code, host.ID, maxPlayers, isPrivate)
	room.flushNew()
	return room, nil
}

// GetRoom looks a room up by code. Codes are case-insensitive on input.
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room, exists := m.rooms[strings.ToUpper(code)]
	return room, exists
}

// JoinRoom adds a player snapshot to the room behind the code. Join errors
// come straight from the room: ErrRoomNotFound, ErrRoomFull,
// ErrRoomNotJoinable. Rejoining is idempotent.
func (m *Manager) JoinRoom(code string, p models.PlayerSnapshot) (*Room, error) {
	room, exists := m.GetRoom(code)
	if !exists {
		return nil, ErrRoomNotFound
	}
	if err := room.Join(p); err != nil {
		return nil, err
	}
	return room, nil
}

// RemovePlayer removes the player from the room and evicts the room once
// empty. A missing room or membership is a no-op: disconnects race with
// explicit leaves and both paths funnel through here.
func (m *Manager) RemovePlayer(code, playerID string) {
	room, exists := m.GetRoom(code)
	if !exists {
		return
	}
	empty, err := room.Remove(playerID)
	if err != nil && err != ErrNotInRoom {
		logger.Log.Errorf("removing %s from room %s: %v", playerID, code, err)
	}
	if empty || room.Dead() {
		m.RemoveRoom(room.Code)
	}
}

// RemoveRoom evicts a room from the registry and deletes its mirror.
func (m *Manager) RemoveRoom(code string) {
	code = strings.ToUpper(code)

	m.mutex.Lock()
	_, exists := m.rooms[code]
	delete(m.rooms, code)
	m.mutex.Unlock()

	if exists {
		logger.Log.Infof("room %s removed", code)
		if m.sink != nil {
			m.sink.DeleteSnapshot(code)
		}
	}
}

// ListPublicWaiting returns snapshots of public rooms still in the lobby.
// The listing reads room snapshots outside any global lock, so it may
// observe a room mid-transition; that is fine for a browse list.
func (m *Manager) ListPublicWaiting(limit int) []*models.RoomSnapshot {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	out := make([]*models.RoomSnapshot, 0, limit)
	for _, r := range rooms {
		if r.IsPrivate || r.Status() != StatusWaiting {
			continue
		}
		out = append(out, r.Snapshot())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Count returns the number of active rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Stop cancels the idle sweep.
func (m *Manager) Stop() {
	if m.timers != nil && m.sweepID != 0 {
		m.timers.Cancel(m.sweepID)
	}
}

// sweep evicts rooms that are empty, condemned, or idle past the timeout.
func (m *Manager) sweep() {
	m.mutex.RLock()
	candidates := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		candidates = append(candidates, r)
	}
	m.mutex.RUnlock()

	for _, r := range candidates {
		switch {
		case r.Dead():
			m.RemoveRoom(r.Code)
		case r.PlayerCount() == 0:
			m.RemoveRoom(r.Code)
		case r.IdleFor() > m.cfg.IdleTimeout:
			logger.Log.Infof("room %s idle for %v, evicting", r.Code, r.IdleFor().Round(time.Second))
			m.RemoveRoom(r.Code)
		}
	}
}

// generateCodeLocked draws short codes until one is free. The space is
// 36^6; a handful of retries only ever matters in tests with tiny lengths.
func (m *Manager) generateCodeLocked() (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		b := make([]byte, m.cfg.CodeLength)
		for i := range b {
			b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique room code")
}

// flushNew mirrors a freshly created room without taking the manager lock.
func (r *Room) flushNew() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.flushLocked()
}
