// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zaledjen/gameserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormUser{},
		&models.GormRoom{},
		&models.GormGameRecord{},
	)
}

// --- room store ---

// UpsertRoom mirrors a room snapshot, insert-or-update keyed by code.
func (p *GormPostgreSQL) UpsertRoom(snap *models.RoomSnapshot) error {
	row, err := roomSnapshotToModel(snap)
	if err != nil {
		return err
	}

	var existing models.GormRoom
	result := p.db.Where("code = ?", snap.Code).First(&existing)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return p.db.Create(row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	return p.db.Save(row).Error
}

// FindRoom loads a mirrored snapshot by code.
func (p *GormPostgreSQL) FindRoom(code string) (*models.RoomSnapshot, error) {
	var row models.GormRoom
	if err := p.db.Where("code = ?", code).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return roomModelToSnapshot(&row)
}

// ListPublicWaitingRooms returns the browse list for the lobby screen.
func (p *GormPostgreSQL) ListPublicWaitingRooms(limit int) ([]*models.RoomSnapshot, error) {
	var rows []models.GormRoom
	err := p.db.
		Where("is_private = ? AND status = ?", false, "waiting").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*models.RoomSnapshot, 0, len(rows))
	for i := range rows {
		snap, err := roomModelToSnapshot(&rows[i])
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// DeleteRoom drops the mirror of an evicted room.
func (p *GormPostgreSQL) DeleteRoom(code string) error {
	return p.db.Where("code = ?", code).Delete(&models.GormRoom{}).Error
}

// SaveGameRecord 保存对局记录
func (p *GormPostgreSQL) SaveGameRecord(rec *models.GameRecord) error {
	row := models.GormGameRecord{
		RoomCode:      rec.RoomCode,
		RoundNumber:   rec.RoundNumber,
		Winner:        rec.Winner,
		Players:       rec.Players,
		FrozenPlayers: rec.FrozenPlayers,
		Duration:      rec.Duration,
	}
	return p.db.Create(&row).Error
}

// --- user directory ---

func (p *GormPostgreSQL) CreateUser(user *models.GormUser) error {
	return p.db.Create(user).Error
}

func (p *GormPostgreSQL) FindUserByEmail(email string) (*models.GormUser, error) {
	var user models.GormUser
	if err := p.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (p *GormPostgreSQL) FindUserByUsernameOrEmail(username, email string) (*models.GormUser, error) {
	var user models.GormUser
	if err := p.db.Where("username = ? OR email = ?", username, email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (p *GormPostgreSQL) FindUserByID(userID string) (*models.GormUser, error) {
	var user models.GormUser
	if err := p.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (p *GormPostgreSQL) SaveUser(user *models.GormUser) error {
	return p.db.Save(user).Error
}

// IncrementStat bumps one counter inside the user's stats document.
func (p *GormPostgreSQL) IncrementStat(userID, stat string, delta int) error {
	return p.db.Model(&models.GormUser{}).
		Where("user_id = ?", userID).
		Update("stats", gorm.Expr(`
            jsonb_set(
                COALESCE(stats, '{}'::jsonb),
                ?,
                to_jsonb(COALESCE((stats->>?)::int, 0) + ?)
            )
        `, "{"+stat+"}", stat, delta)).Error
}

// Leaderboard 排行榜: top users ordered by one stats counter.
func (p *GormPostgreSQL) Leaderboard(category string, limit int) ([]models.LeaderboardEntry, error) {
	type row struct {
		Username string
		Value    int
		Level    int
	}

	var rows []row
	err := p.db.Raw(`
        SELECT
            username,
            COALESCE((stats->>?)::int, 0) AS value,
            COALESCE((stats->>'level')::int, 1) AS level
        FROM gorm_users
        WHERE deleted_at IS NULL
        ORDER BY value DESC
        LIMIT ?`,
		category, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		out = append(out, models.LeaderboardEntry{
			Rank:     i + 1,
			Username: r.Username,
			Value:    r.Value,
			Level:    r.Level,
		})
	}
	return out, nil
}

// 添加事务支持
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}

// Ping 测试连接
func (p *GormPostgreSQL) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- snapshot <-> row mapping ---

func roomSnapshotToModel(snap *models.RoomSnapshot) (*models.GormRoom, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(snap.Players))
	for _, p := range snap.Players {
		ids = append(ids, p.ID)
	}

	return &models.GormRoom{
		Code:          snap.Code,
		Name:          snap.Name,
		HostID:        snap.HostID,
		Status:        snap.Status,
		CurrentMraz:   snap.CurrentMraz,
		RoundNumber:   snap.RoundNumber,
		MaxPlayers:    snap.MaxPlayers,
		IsPrivate:     snap.IsPrivate,
		Players:       ids,
		FrozenPlayers: snap.FrozenPlayers,
		Snapshot:      doc,
	}, nil
}

func roomModelToSnapshot(row *models.GormRoom) (*models.RoomSnapshot, error) {
	raw, err := json.Marshal(row.Snapshot)
	if err != nil {
		return nil, err
	}
	var snap models.RoomSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
