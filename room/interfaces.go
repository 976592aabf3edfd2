package room

import (
	"github.com/zaledjen/gameserver/models"
)

// Broadcaster defines the interface for broadcasting events to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomCode, event string, payload any) error
}

// Sink receives the durable mirror of room state. Every state-affecting
// transition hands a fresh snapshot to the sink; implementations queue the
// write and must not block the room's lane on the database.
type Sink interface {
	SaveSnapshot(snap *models.RoomSnapshot)
	SaveRecord(rec *models.GameRecord)
	DeleteSnapshot(code string)
}
