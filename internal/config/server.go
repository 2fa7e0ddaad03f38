package config

import (
	"os"
	"strconv"
	"time"
)

// Server holds host process settings read from the environment.
type Server struct {
	Port            string
	DatabaseURL     string // remote save backend (PostgreSQL)
	SQLitePath      string // local save backend
	RedisURL        string // read-through cache in front of the primary backend
	BalanceFile     string
	ClickRate       float64 // sustained clicks per second per identity
	ClickBurst      int
	SaveCompression string        // "zstd" or "none"
	SessionIdleTTL  time.Duration // idle sessions are saved and unloaded after this; 0 keeps them
}

// FromEnv loads server settings, falling back to defaults for anything unset.
func FromEnv() Server {
	s := Server{
		Port:            os.Getenv("PORT"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      os.Getenv("SQLITE_PATH"),
		RedisURL:        os.Getenv("REDIS_URL"),
		BalanceFile:     os.Getenv("BALANCE_FILE"),
		ClickRate:       20,
		ClickBurst:      40,
		SaveCompression: "zstd",
		SessionIdleTTL:  30 * time.Minute,
	}
	if s.Port == "" {
		s.Port = "8080"
	}
	if val := getEnvFloat("CLICK_RATE"); val > 0 {
		s.ClickRate = val
	}
	if val := getEnvInt("CLICK_BURST"); val > 0 {
		s.ClickBurst = val
	}
	if val := os.Getenv("SAVE_COMPRESSION"); val == "none" || val == "zstd" {
		s.SaveCompression = val
	}
	if val, err := time.ParseDuration(os.Getenv("SESSION_IDLE_TTL")); err == nil && val >= 0 {
		s.SessionIdleTTL = val
	}
	return s
}

func getEnvInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func getEnvFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}
