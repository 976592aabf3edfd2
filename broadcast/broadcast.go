// broadcast/broadcast.go
package broadcast

import (
	"github.com/zaledjen/gameserver/session"
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomCode, event string, payload any) error
	BroadcastToPlayers(playerIDs []string, event string, payload any) error
}

// RoomBroadcaster fans events out to every session bound to a room code.
// Callers invoke it from inside a room's serialized lane, so per-room
// delivery order matches the order events were applied. Delivery is best
// effort per connection: a dead subscriber is skipped, never retried.
type RoomBroadcaster struct {
	sessionManager *session.Manager
	onSend         func() // optional metrics hook
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{sessionManager: sessionManager}
}

// SetSendHook installs a callback fired once per delivered event.
func (b *RoomBroadcaster) SetSendHook(hook func()) {
	b.onSend = hook
}

func (b *RoomBroadcaster) BroadcastToRoom(roomCode, event string, payload any) error {
	sessions := b.sessionManager.GetByRoom(roomCode)

	for _, s := range sessions {
		if err := s.Send(event, payload); err != nil {
			// 发送失败则跳过该连接
			continue
		}
		if b.onSend != nil {
			b.onSend()
		}
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToPlayers(playerIDs []string, event string, payload any) error {
	for _, playerID := range playerIDs {
		sessions := b.sessionManager.GetByPlayerID(playerID)
		for _, s := range sessions {
			if err := s.Send(event, payload); err != nil {
				continue
			}
			if b.onSend != nil {
				b.onSend()
			}
		}
	}
	return nil
}
