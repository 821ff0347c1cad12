package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DBDriver     string // sqlite | pgx
	DBDSN        string
	LogFile      string
	LogLevel     string
	TemplatesDir string
	PollInterval time.Duration
	LockTTL      time.Duration
	SweepSpec    string
	AMQPURL      string
	CookieSecure bool
	SeedDemo     bool
}

func Load() Config {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	cfg := Config{
		Port:         getString("PORT", "8080"),
		DBDriver:     getString("DB_DRIVER", "sqlite"),
		DBDSN:        getString("DB_DSN", "productdesk.db"), // sqlite file in project root
		LogFile:      getString("LOG_FILE", "./productdesk.log"),
		LogLevel:     getString("LOG_LEVEL", "info"),
		TemplatesDir: getString("TEMPLATES_DIR", "./web/templates"),
		PollInterval: getDuration("POLL_INTERVAL", 5*time.Second),
		LockTTL:      getDuration("LOCK_TTL", 30*time.Second),
		SweepSpec:    getString("LOCK_SWEEP_SPEC", "@every 10s"),
		AMQPURL:      getString("AMQP_URL", ""),
		CookieSecure: getBool("COOKIE_SECURE", false),
		SeedDemo:     getBool("SEED_DEMO", true),
	}
	log.Printf("[config] PORT=%s DB_DRIVER=%s DB_DSN=%s LOG_FILE=%s POLL_INTERVAL=%s LOCK_TTL=%s AMQP=%t",
		cfg.Port, cfg.DBDriver, cfg.DBDSN, cfg.LogFile, cfg.PollInterval, cfg.LockTTL, cfg.AMQPURL != "")
	return cfg
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
