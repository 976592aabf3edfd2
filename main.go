package main

import (
	"github.com/joho/godotenv"
	"github.com/zaledjen/gameserver/config"
	"github.com/zaledjen/gameserver/logger"
	"github.com/zaledjen/gameserver/persistence"
	"github.com/zaledjen/gameserver/server"
)

func main() {
	// .env is optional, real deployments inject the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger.Init(cfg.Server.Development)
	defer logger.Sync()

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Room snapshots can be mirrored through either store implementation.
	var roomStore persistence.RoomStore = db
	if cfg.Database.RawRoomStore {
		raw, err := persistence.NewPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
		if err != nil {
			logger.Log.Fatalf("Failed to connect room store: %v", err)
		}
		roomStore = raw
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, db, roomStore)

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
