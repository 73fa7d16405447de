package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all configurable server and game parameters.
type Config struct {
	HTTPPort      int `json:"http_port" env:"HTTP_PORT"`
	MaxNameLength int `json:"max_name_length" env:"MAX_NAME_LENGTH"`
	MaxRooms      int `json:"max_rooms" env:"MAX_ROOMS"`

	// Game rules.
	MaxPlayers      int    `json:"max_players" env:"MAX_PLAYERS"`
	InitialVitality int    `json:"initial_vitality" env:"INITIAL_VITALITY"`
	HandSize        int    `json:"hand_size" env:"HAND_SIZE"`
	OpeningDraw     int    `json:"opening_draw" env:"OPENING_DRAW"`
	DrawPerTurn     int    `json:"draw_per_turn" env:"DRAW_PER_TURN"`
	LateJoin        string `json:"late_join" env:"LATE_JOIN"` // reject, bench or rotate

	// ResponseTimeoutSec bounds how long a target may take to answer an attack. 0 waits forever.
	ResponseTimeoutSec int `json:"response_timeout_sec" env:"RESPONSE_TIMEOUT_SEC"`

	// ShuffleSeed fixes deck shuffles for every room when non-zero (tests, replays).
	ShuffleSeed int64 `json:"shuffle_seed" env:"SHUFFLE_SEED"`

	// Inbound message rate limit per connection.
	RateLimitPerSec float64 `json:"rate_limit_per_sec" env:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int     `json:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// Match history. DatabaseURL wins over SQLitePath; both empty disables history.
	DatabaseURL string `json:"-" env:"DATABASE_URL"`
	SQLitePath  string `json:"sqlite_path" env:"SQLITE_PATH"`

	// AuthBaseURL enables JWT auth on /ws when set (JWKS at <base>/.well-known/jwks.json).
	AuthBaseURL string `json:"auth_base_url" env:"AUTH_BASE_URL"`

	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `json:"log_level" env:"LOG_LEVEL"`
}

// Defaults returns a Config with the standard two-player rules.
func Defaults() *Config {
	return &Config{
		HTTPPort:           8000,
		MaxNameLength:      24,
		MaxRooms:           1000,
		MaxPlayers:         2,
		InitialVitality:    4,
		HandSize:           4,
		OpeningDraw:        2,
		DrawPerTurn:        2,
		LateJoin:           "bench",
		ResponseTimeoutSec: 0,
		RateLimitPerSec:    10,
		RateLimitBurst:     20,
		LogLevel:           "info",
	}
}

// Load reads configuration from an optional config.json file, then applies
// environment variable overrides. Fields not set in either source retain
// their default values. If any environment value is malformed, the whole
// environment layer is ignored and the error is logged.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("failed to parse config.json", "tag", "config", "err", err)
		}
	}

	fromFile := *cfg
	if err := env.Parse(cfg); err != nil {
		slog.Warn("invalid environment overrides, ignoring them", "tag", "config", "err", err)
		*cfg = fromFile
	}
	return cfg
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
