package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	Development    bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	// RawRoomStore switches the room-snapshot mirror to the plain
	// database/sql implementation instead of the GORM one.
	RawRoomStore bool `mapstructure:"raw_room_store"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type GameConfig struct {
	DefaultMaxPlayers int           `mapstructure:"default_max_players"`
	RoomCodeLength    int           `mapstructure:"room_code_length"`
	RoomIdleTimeout   time.Duration `mapstructure:"room_idle_timeout"`
	GameDuration      time.Duration `mapstructure:"game_duration"`
	FreezeDuration    time.Duration `mapstructure:"freeze_duration"`
	PowersEnabled     bool          `mapstructure:"powers_enabled"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_address", ":8001")
	viper.SetDefault("server.rpc_address", ":8002")
	viper.SetDefault("server.metrics_address", ":9090")
	viper.SetDefault("game.default_max_players", 10)
	viper.SetDefault("game.room_code_length", 6)
	viper.SetDefault("game.room_idle_timeout", 30*time.Minute)
	viper.SetDefault("game.game_duration", 5*time.Minute)
	viper.SetDefault("game.freeze_duration", 0)
	viper.SetDefault("game.powers_enabled", true)
	viper.SetDefault("auth.token_ttl", 30*24*time.Hour)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
