package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName               string
	AppEnv                string
	AppPort               string
	DatabaseURL           string
	RedisURL              string
	RealtimeChannel       string
	NATSURL               string
	JWTSecret             string
	PaperCacheTTL         time.Duration
	SweepInterval         time.Duration
	SweepBatchSize        int
	SocketTick            time.Duration
	FocusLossLimit        int
	ClipboardKeyLimit     int
	NotificationKeepAlive time.Duration
	SeedEnabled           bool
	SeedToken             string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	cfg, err := load()
	if err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	return cfg, nil
}

// LoadTooling reads the same settings as Load without requiring HTTP secrets.
func LoadTooling() (Config, error) {
	return load()
}

func load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RECRUIT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Recruitment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("redis.channel", "recruitment")
	v.SetDefault("assessment.paper_cache_ttl", "10m")
	v.SetDefault("assessment.sweep_interval", "30s")
	v.SetDefault("assessment.sweep_batch", 100)
	v.SetDefault("assessment.socket_tick", "5s")
	v.SetDefault("integrity.focus_loss_limit", 2)
	v.SetDefault("integrity.clipboard_key_limit", 3)
	v.SetDefault("notifications.keepalive", "30s")
	v.SetDefault("seed.enabled", false)

	paperTTL, err := parseDuration(v, "assessment.paper_cache_ttl", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}

	sweepInterval, err := parseDuration(v, "assessment.sweep_interval", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	socketTick, err := parseDuration(v, "assessment.socket_tick", 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	keepAlive, err := parseDuration(v, "notifications.keepalive", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		RealtimeChannel:       v.GetString("redis.channel"),
		NATSURL:               v.GetString("nats.url"),
		JWTSecret:             v.GetString("jwt.secret"),
		PaperCacheTTL:         paperTTL,
		SweepInterval:         sweepInterval,
		SweepBatchSize:        v.GetInt("assessment.sweep_batch"),
		SocketTick:            socketTick,
		FocusLossLimit:        v.GetInt("integrity.focus_loss_limit"),
		ClipboardKeyLimit:     v.GetInt("integrity.clipboard_key_limit"),
		NotificationKeepAlive: keepAlive,
		SeedEnabled:           v.GetBool("seed.enabled"),
		SeedToken:             v.GetString("seed.token"),
	}

	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}

	if cfg.FocusLossLimit <= 0 {
		cfg.FocusLossLimit = 2
	}

	if cfg.ClipboardKeyLimit <= 0 {
		cfg.ClipboardKeyLimit = 3
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
