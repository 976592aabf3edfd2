// models/models.go
package models

import (
	"time"
)

// PlayerSnapshot is the in-room view of a player, captured from the user
// directory at join time. It does not track live user-document changes.
type PlayerSnapshot struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	EquippedSkin string `json:"equipped_skin"`
	IsHost       bool   `json:"is_host"`
	IsReady      bool   `json:"is_ready"`
}

// RoomSettings are fixed at creation and immutable during a round.
type RoomSettings struct {
	FreezeDuration int  `json:"freeze_duration"` // seconds, 0 = until unfrozen
	GameDuration   int  `json:"game_duration"`   // seconds
	PowersEnabled  bool `json:"powers_enabled"`
}

// RoomSnapshot is the durable mirror of an in-memory room. The in-memory
// state stays authoritative; this is what gets flushed to the store.
type RoomSnapshot struct {
	Code          string           `json:"code"`
	Name          string           `json:"name"`
	HostID        string           `json:"host_id"`
	Players       []PlayerSnapshot `json:"players"`
	Status        string           `json:"status"`
	CurrentMraz   string           `json:"current_mraz,omitempty"`
	FrozenPlayers []string         `json:"frozen_players"`
	RoundNumber   int              `json:"round_number"`
	MaxPlayers    int              `json:"max_players"`
	IsPrivate     bool             `json:"is_private"`
	Settings      RoomSettings     `json:"settings"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// GameRecord is the per-round history entry written when a round finishes.
type GameRecord struct {
	RoomCode      string    `json:"room_code"`
	RoundNumber   int       `json:"round_number"`
	Winner        string    `json:"winner"` // mraz ID, empty if the round ended with no winner
	FrozenPlayers []string  `json:"frozen_players"`
	Players       []string  `json:"players"`
	Duration      int       `json:"duration"` // seconds
	CreatedAt     time.Time `json:"created_at"`
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Value    int    `json:"value"`
	Level    int    `json:"level"`
}

// ShopItem is a purchasable power or skin from the static catalog.
type ShopItem struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Type        string         `json:"type"` // power, skin
	PriceCoins  int            `json:"price_coins"`
	PriceGems   int            `json:"price_gems"`
	Icon        string         `json:"icon"`
	Rarity      string         `json:"rarity"` // common, rare, epic, legendary
	Effect      map[string]any `json:"effect,omitempty"`
}

// BLEDevice is the bluetooth glove bookkeeping entry on a user profile.
type BLEDevice struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	ConnectedAt time.Time `json:"connected_at"`
}
