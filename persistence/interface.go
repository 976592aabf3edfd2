// persistence/interface.go
package persistence

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zaledjen/gameserver/models"
)

// RoomStore is the durable-but-eventually-applied mirror of room state.
// In-memory registry state stays authoritative for live decisions; these
// writes are a best-effort shadow for listings and recovery.
type RoomStore interface {
	UpsertRoom(snap *models.RoomSnapshot) error
	FindRoom(code string) (*models.RoomSnapshot, error)
	ListPublicWaitingRooms(limit int) ([]*models.RoomSnapshot, error)
	DeleteRoom(code string) error
	SaveGameRecord(rec *models.GameRecord) error
}

// Database 数据库接口: the full store, rooms plus the user directory.
type Database interface {
	RoomStore

	CreateUser(user *models.GormUser) error
	FindUserByEmail(email string) (*models.GormUser, error)
	FindUserByUsernameOrEmail(username, email string) (*models.GormUser, error)
	FindUserByID(userID string) (*models.GormUser, error)
	SaveUser(user *models.GormUser) error
	IncrementStat(userID, stat string, delta int) error
	Leaderboard(category string, limit int) ([]models.LeaderboardEntry, error)
	Transaction(fn func(tx *gorm.DB) error) error
	Ping() error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrDuplicate      = fmt.Errorf("record already exists")
)
