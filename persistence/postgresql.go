// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/zaledjen/gameserver/models"
)

// PostgreSQL is the plain database/sql room store. It mirrors rooms and
// game records only; the user directory always goes through GORM. Kept for
// deployments that want the snapshot writer off the ORM path.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS room_snapshots (
            id SERIAL PRIMARY KEY,
            code VARCHAR(16) UNIQUE NOT NULL,
            status VARCHAR(50) NOT NULL,
            is_private BOOLEAN NOT NULL DEFAULT FALSE,
            snapshot JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS round_records (
            id SERIAL PRIMARY KEY,
            room_code VARCHAR(16) NOT NULL,
            round_number INT NOT NULL,
            winner VARCHAR(64),
            players JSONB NOT NULL,
            frozen_players JSONB NOT NULL,
            duration INT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_room_snapshots_code ON room_snapshots(code);
        CREATE INDEX IF NOT EXISTS idx_room_snapshots_browse ON room_snapshots(is_private, status);
        CREATE INDEX IF NOT EXISTS idx_round_records_room_code ON round_records(room_code);
    `)

	return err
}

// UpsertRoom 保存房间快照 (PostgreSQL 9.5+ UPSERT)
func (p *PostgreSQL) UpsertRoom(snap *models.RoomSnapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO room_snapshots (code, status, is_private, snapshot)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (code)
        DO UPDATE SET status = $2, snapshot = $4, updated_at = CURRENT_TIMESTAMP
    `

	_, err = p.db.ExecContext(ctx, query, snap.Code, snap.Status, snap.IsPrivate, jsonData)
	return err
}

// FindRoom 加载房间快照
func (p *PostgreSQL) FindRoom(code string) (*models.RoomSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var data []byte
	query := `SELECT snapshot FROM room_snapshots WHERE code = $1`
	err := p.db.QueryRowContext(ctx, query, code).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	var snap models.RoomSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListPublicWaitingRooms 查询可加入的公开房间
func (p *PostgreSQL) ListPublicWaitingRooms(limit int) ([]*models.RoomSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        SELECT snapshot FROM room_snapshots
        WHERE is_private = FALSE AND status = 'waiting'
        ORDER BY created_at DESC
        LIMIT $1
    `
	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RoomSnapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var snap models.RoomSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// DeleteRoom 删除房间快照
func (p *PostgreSQL) DeleteRoom(code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `DELETE FROM room_snapshots WHERE code = $1`, code)
	return err
}

// SaveGameRecord 保存对局记录
func (p *PostgreSQL) SaveGameRecord(rec *models.GameRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	frozen, err := json.Marshal(rec.FrozenPlayers)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO round_records (room_code, round_number, winner, players, frozen_players, duration)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	_, err = p.db.ExecContext(ctx, query,
		rec.RoomCode, rec.RoundNumber, rec.Winner, players, frozen, rec.Duration)
	return err
}

// Ping 测试连接
func (p *PostgreSQL) Ping() error {
	return p.db.Ping()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
