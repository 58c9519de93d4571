package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI   string
	TelegramToken string
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	SnoozeMinutes []int // snooze button offsets on delivered reminders
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	return &Config{
		DatabaseURI:   os.Getenv("DATABASE_URI"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		AIAPIKey:      os.Getenv("AI_API_KEY"),
		AIBaseURL:     getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:       getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),
		SnoozeMinutes: parseSnoozeMinutes(os.Getenv("SNOOZE_MINUTES")),
	}, nil
}

// parseSnoozeMinutes parses a comma-separated minute list ("10,30").
// Malformed or non-positive entries are dropped; an empty result falls back
// to the defaults.
func parseSnoozeMinutes(raw string) []int {
	var minutes []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			continue
		}
		minutes = append(minutes, n)
	}
	if len(minutes) == 0 {
		return []int{10, 30}
	}
	return minutes
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
