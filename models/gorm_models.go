// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormUser 用户模型
type GormUser struct {
	gorm.Model
	UserID           string         `gorm:"uniqueIndex;not null"`
	Username         string         `gorm:"uniqueIndex;not null"`
	Email            string         `gorm:"uniqueIndex;not null"`
	Password         string         `gorm:"not null"` // bcrypt hash
	Coins            int64          `gorm:"default:100"`
	Gems             int64          `gorm:"default:10"`
	IsPremium        bool           `gorm:"default:false"`
	SubscriptionType string         `gorm:"default:''"`
	OwnedPowers      []string       `gorm:"type:jsonb;serializer:json"`
	OwnedSkins       []string       `gorm:"type:jsonb;serializer:json"`
	EquippedSkin     string         `gorm:"default:'default'"`
	Stats            map[string]int `gorm:"type:jsonb;serializer:json"`
	BLEDevice        map[string]any `gorm:"type:jsonb;serializer:json"`
}

// GormRoom 房间快照模型
type GormRoom struct {
	gorm.Model
	Code          string         `gorm:"uniqueIndex;not null"`
	Name          string         `gorm:"not null"`
	HostID        string         `gorm:"index;not null"`
	Status        string         `gorm:"not null"`
	CurrentMraz   string         `gorm:"default:''"`
	RoundNumber   int            `gorm:"default:0"`
	MaxPlayers    int            `gorm:"default:10"`
	IsPrivate     bool           `gorm:"default:false;index"`
	Players       []string       `gorm:"type:jsonb;serializer:json"` // kept for queries; full detail lives in Snapshot
	Snapshot      map[string]any `gorm:"type:jsonb;serializer:json"`
	FrozenPlayers []string       `gorm:"type:jsonb;serializer:json"`
}

// GormGameRecord 对局记录模型
type GormGameRecord struct {
	gorm.Model
	RoomCode      string   `gorm:"index;not null"`
	RoundNumber   int      `gorm:"not null"`
	Winner        string   `gorm:"index"`
	Players       []string `gorm:"type:jsonb;serializer:json;not null"`
	FrozenPlayers []string `gorm:"type:jsonb;serializer:json"`
	Duration      int      `gorm:"default:0"` // 游戏时长(秒)
}

// DefaultStats is the zeroed stats document every new user starts with.
func DefaultStats() map[string]int {
	return map[string]int{
		"games_played":          0,
		"games_won":             0,
		"times_frozen":          0,
		"times_unfrozen_others": 0,
		"times_as_mraz":         0,
		"total_play_time":       0,
		"longest_survival":      0,
		"xp":                    0,
		"level":                 1,
	}
}
