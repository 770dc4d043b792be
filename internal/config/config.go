package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Mode        string // "serve", "migrate" or "cron"
	DBDriver    string
	DBDSN       string
	AutoMigrate bool
	AuthEnabled bool

	// CronInterval is either a number of seconds or a cron expression.
	CronInterval string
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	cfg := Config{
		Port:         getenv("PORT", "8000"),
		Mode:         getenv("BACKOFFICE_MODE", "serve"),
		DBDriver:     getenv("BACKOFFICE_DB_DRIVER", "sqlite"),
		DBDSN:        getenv("BACKOFFICE_DB_DSN", "backoffice.db"),
		CronInterval: getenv("BACKOFFICE_CRON_INTERVAL_SECONDS", "3600"),
	}
	cfg.AutoMigrate = boolEnv("BACKOFFICE_AUTO_MIGRATE")
	cfg.AuthEnabled = boolEnv("BACKOFFICE_AUTH_ENABLED")
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "yes" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
