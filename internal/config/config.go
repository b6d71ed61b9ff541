package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application's runtime configuration.
type Config struct {
	DBPath     string
	Port       string
	CORSOrigin string

	// Owner restricts repository reads to rows carrying this owner key.
	// Empty means unscoped reads: every caller sees every record.
	Owner string

	PredictURL     string
	PredictTimeout time.Duration

	DashboardTodayWindow int
	DashboardWeekWindow  int
	DashboardCalendar    bool
}

// Load reads configuration from a .env file and the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system environment variables")
	}

	return Config{
		DBPath:     getenv("SIRAMIFY_DB", "siramify.db"),
		Port:       getenv("SIRAMIFY_PORT", "8080"),
		CORSOrigin: getenv("SIRAMIFY_CORS_ORIGIN", "http://localhost:5173"),
		Owner:      os.Getenv("SIRAMIFY_OWNER"),

		PredictURL:     os.Getenv("PREDICT_URL"),
		PredictTimeout: getduration("PREDICT_TIMEOUT", 5*time.Second),

		DashboardTodayWindow: getint("DASHBOARD_TODAY_WINDOW", 3),
		DashboardWeekWindow:  getint("DASHBOARD_WEEK_WINDOW", 7),
		DashboardCalendar:    os.Getenv("DASHBOARD_CALENDAR") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
