// Package config loads and validates the process configuration from the
// environment. Required credentials fail startup with a clear error instead
// of surfacing later as mysterious 401s.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	Port string

	// WhatsApp Cloud API credentials.
	VerifyToken     string
	AppSecret       string
	WhatsAppToken   string
	PhoneNumberID   string
	GraphAPIVersion string
	SendTimeout     time.Duration

	// Storage backend selection.
	StorageBackend string
	MySQLDSN       string
	RedisAddr      string
	SQLitePath     string

	// Guard policy.
	AdminIDs          []string
	RequireMembership bool
	HistoryLimit      int
}

func Load() (Config, error) {
	cfg := Config{
		Port:            env("PORT", "8080"),
		VerifyToken:     os.Getenv("VERIFY_TOKEN"),
		AppSecret:       os.Getenv("APP_SECRET"),
		WhatsAppToken:   os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID:   os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		GraphAPIVersion: env("GRAPH_API_VERSION", "v18.0"),
		SendTimeout:     envDuration("SEND_TIMEOUT", 10*time.Second),

		StorageBackend: strings.ToLower(env("STORAGE_BACKEND", BackendMemory)),
		MySQLDSN:       env("MYSQL_DSN", "root:root@tcp(localhost:3306)/whatstock?parseTime=true"),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		SQLitePath:     env("SQLITE_PATH", "whatstock.db"),

		AdminIDs:          splitList(os.Getenv("ADMIN_IDS")),
		RequireMembership: envBool("REQUIRE_MEMBERSHIP", false),
		HistoryLimit:      envInt("HISTORY_LIMIT", 10),
	}

	var missing []string
	if cfg.VerifyToken == "" {
		missing = append(missing, "VERIFY_TOKEN")
	}
	if cfg.WhatsAppToken == "" {
		missing = append(missing, "WHATSAPP_TOKEN")
	}
	if cfg.PhoneNumberID == "" {
		missing = append(missing, "WHATSAPP_PHONE_NUMBER_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s",
			strings.Join(missing, ", "))
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendMySQL, BackendRedis, BackendSQLite:
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_BACKEND %q (want memory, mysql, redis or sqlite)",
			cfg.StorageBackend)
	}

	return cfg, nil
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
