package network

// Inbound event names.
const (
	EventJoinGame          = "join_game"
	EventLeaveGame         = "leave_game"
	EventPlayerReady       = "player_ready"
	EventStartGame         = "start_game"
	EventFreezePlayer      = "freeze_player"
	EventUnfreezePlayer    = "unfreeze_player"
	EventUsePower          = "use_power"
	EventProximityDetected = "proximity_detected"
	EventUpdateLocation    = "update_location"
)

// Outbound event names, mirrored per inbound action.
const (
	EventPlayerJoined      = "player_joined"
	EventPlayerLeft        = "player_left"
	EventPlayerReadyUpdate = "player_ready_update"
	EventGameStarted       = "game_started"
	EventPlayerFrozen      = "player_frozen"
	EventPlayerUnfrozen    = "player_unfrozen"
	EventPowerUsed         = "power_used"
	EventProximityEvent    = "proximity_event"
	EventLocationUpdate    = "location_update"
	EventGameOver          = "game_over"
	EventMrazChanged       = "mraz_changed"
	EventRoomClosed        = "room_closed"
	EventError             = "error"
)
