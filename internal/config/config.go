// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Auth     AuthConfig     `yaml:"auth"`
	Rules    RulesConfig    `yaml:"rules"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// PostgresConfig holds Postgres configuration for the round archive.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// APIKeyHash is the argon2id hash the bot's API key is checked against.
	// Empty disables API-key auth (local development).
	APIKeyHash string        `yaml:"api_key_hash"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// PointsConfig maps distance-to-target bands to points awarded.
type PointsConfig struct {
	ExactPoints  int `yaml:"exact_points"`
	NearDistance int `yaml:"near_distance"`
	NearPoints   int `yaml:"near_points"`
	FarDistance  int `yaml:"far_distance"`
	FarPoints    int `yaml:"far_points"`
}

// RulesConfig holds the countdown game rules. Zero fields are filled with
// the classical defaults by LoadConfig.
type RulesConfig struct {
	TargetMin int `yaml:"target_min"`
	TargetMax int `yaml:"target_max"`

	LargeSet   []int `yaml:"large_set"`
	LargeCount int   `yaml:"large_count"`
	SmallMin   int   `yaml:"small_min"`
	SmallMax   int   `yaml:"small_max"`
	SmallCount int   `yaml:"small_count"`

	DefaultRounds int `yaml:"default_rounds"`
	MaxRounds     int `yaml:"max_rounds"`

	DefaultDuration int   `yaml:"default_duration"` // seconds
	Durations       []int `yaml:"durations"`        // allowed per-round durations

	LobbyTTL    time.Duration `yaml:"lobby_ttl"`
	RecordGrace time.Duration `yaml:"record_grace"` // TTL slack beyond the round deadline

	Points PointsConfig `yaml:"points"`
}

// DefaultRules returns the classical countdown rules: a 100-999 target,
// two large numbers from {25,50,75,100} and three small ones from 1-10,
// three rounds of sixty seconds.
func DefaultRules() RulesConfig {
	return RulesConfig{
		TargetMin:       100,
		TargetMax:       999,
		LargeSet:        []int{25, 50, 75, 100},
		LargeCount:      2,
		SmallMin:        1,
		SmallMax:        10,
		SmallCount:      3,
		DefaultRounds:   3,
		MaxRounds:       5,
		DefaultDuration: 60,
		Durations:       []int{30, 60, 120},
		LobbyTTL:        5 * time.Minute,
		RecordGrace:     2 * time.Minute,
		Points: PointsConfig{
			ExactPoints:  10,
			NearDistance: 10,
			NearPoints:   5,
			FarDistance:  25,
			FarPoints:    2,
		},
	}
}

// LoadConfig loads the configuration from a YAML file, falling back to
// environment variables when the file is absent. Environment variables
// override file values either way.
func LoadConfig(filename string) (*Config, error) {
	var cfg Config

	if data, err := os.ReadFile(filename); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// --- OVERRIDE WITH ENV VARS IF PRESENT ---
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("API_KEY_HASH"); v != "" {
		cfg.Auth.APIKeyHash = v
	}
	if v := os.Getenv("TOKEN_EXPIRE_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
	if v := os.Getenv("COUNTDOWN_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rules.DefaultRounds = n
		}
	}
	if v := os.Getenv("COUNTDOWN_DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rules.DefaultDuration = n
		}
	}
	if v := os.Getenv("LOBBY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Rules.LobbyTTL = d
		}
	}

	cfg.applyDefaults()
	if err := cfg.Rules.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 15 * time.Minute
	}

	def := DefaultRules()
	r := &c.Rules
	if r.TargetMin == 0 {
		r.TargetMin = def.TargetMin
	}
	if r.TargetMax == 0 {
		r.TargetMax = def.TargetMax
	}
	if len(r.LargeSet) == 0 {
		r.LargeSet = def.LargeSet
	}
	if r.LargeCount == 0 {
		r.LargeCount = def.LargeCount
	}
	if r.SmallMin == 0 {
		r.SmallMin = def.SmallMin
	}
	if r.SmallMax == 0 {
		r.SmallMax = def.SmallMax
	}
	if r.SmallCount == 0 {
		r.SmallCount = def.SmallCount
	}
	if r.DefaultRounds == 0 {
		r.DefaultRounds = def.DefaultRounds
	}
	if r.MaxRounds == 0 {
		r.MaxRounds = def.MaxRounds
	}
	if r.DefaultDuration == 0 {
		r.DefaultDuration = def.DefaultDuration
	}
	if len(r.Durations) == 0 {
		r.Durations = def.Durations
	}
	if r.LobbyTTL == 0 {
		r.LobbyTTL = def.LobbyTTL
	}
	if r.RecordGrace == 0 {
		r.RecordGrace = def.RecordGrace
	}
	if r.Points == (PointsConfig{}) {
		r.Points = def.Points
	}
}

func (r *RulesConfig) validate() error {
	if r.TargetMin > r.TargetMax {
		return fmt.Errorf("invalid rules: target_min %d exceeds target_max %d", r.TargetMin, r.TargetMax)
	}
	if r.SmallMin > r.SmallMax {
		return fmt.Errorf("invalid rules: small_min %d exceeds small_max %d", r.SmallMin, r.SmallMax)
	}
	if r.LargeCount > len(r.LargeSet) {
		return fmt.Errorf("invalid rules: large_count %d exceeds large set size %d", r.LargeCount, len(r.LargeSet))
	}
	if r.DefaultRounds < 1 || r.DefaultRounds > r.MaxRounds {
		return fmt.Errorf("invalid rules: default_rounds %d outside 1..%d", r.DefaultRounds, r.MaxRounds)
	}
	if !slices.Contains(r.Durations, r.DefaultDuration) {
		return fmt.Errorf("invalid rules: default_duration %d not in allowed durations %v", r.DefaultDuration, r.Durations)
	}
	return nil
}

// ValidRounds reports whether rounds is an acceptable round count.
func (r *RulesConfig) ValidRounds(rounds int) bool {
	return rounds >= 1 && rounds <= r.MaxRounds
}

// ValidDuration reports whether seconds is an allowed round duration.
func (r *RulesConfig) ValidDuration(seconds int) bool {
	return slices.Contains(r.Durations, seconds)
}
