package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the report gateway.
type Config struct {
	Port    string
	GinMode string

	// Upstream analysis backend (the event producer).
	UpstreamBaseURL string
	UpstreamTimeout int // in seconds, 0 means no timeout

	// Report storage. When DatabaseURL is empty the in-memory store is used.
	DatabaseURL      string
	ReportRetention  int    // in days, 0 disables the retention sweep
	RetentionCron    string // cron expression for the sweep schedule

	// Database Connection Pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Chart layout tuning, optionally overridden by a YAML file.
	ChartTuningPath string
	ChartTuning     *ChartTuning `yaml:"chart_tuning"`

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string
}

// ChartTuning overrides the chart resolver's layout constants.
// Zero values mean "use the built-in default".
type ChartTuning struct {
	BarCategoryCap int     `yaml:"bar_category_cap"`
	LineSampleCap  int     `yaml:"line_sample_cap"`
	PieSliceCap    int     `yaml:"pie_slice_cap"`
	AxisHeadroom   float64 `yaml:"axis_headroom"`
	TickCount      int     `yaml:"tick_count"`
}

// AppConfig is the global configuration instance.
var AppConfig *Config

// LoadConfig loads configuration from .env and the environment.
func LoadConfig() {
	// Load .env file if it exists (ignore error in production).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:8000"),
		UpstreamTimeout: getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 600),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ReportRetention: getEnvInt("REPORT_RETENTION_DAYS", 0),
		RetentionCron:   getEnv("RETENTION_CRON", "0 3 * * *"),

		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 5),
		DBConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		ChartTuningPath: getEnv("CHART_TUNING_PATH", ""),

		ServerShutdownTimeoutSeconds: getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 10),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),
	}

	if AppConfig.ChartTuningPath != "" {
		tuning, err := loadChartTuning(AppConfig.ChartTuningPath)
		if err != nil {
			log.Printf("Failed to load chart tuning from %s: %v", AppConfig.ChartTuningPath, err)
		} else {
			AppConfig.ChartTuning = tuning
		}
	}
}

// loadChartTuning parses the chart tuning YAML file.
func loadChartTuning(path string) (*ChartTuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	var wrapper struct {
		ChartTuning ChartTuning `yaml:"chart_tuning"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse tuning file: %w", err)
	}

	return &wrapper.ChartTuning, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
