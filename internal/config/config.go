package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string // development, production

	// Security
	AdminPasswordHash string
	RunRatePerMinute  int

	// Uploads
	MaxUploadSizeMB int
	UploadDir       string

	// Dispatch
	SendPace         time.Duration
	ProgressInterval time.Duration
}

// Load reads .env (if present), the environment and command-line flags, in
// that order of increasing precedence.
func Load(args []string) (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	// Define flags with env var fallbacks
	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port")
	fs.StringVar(&cfg.Env, "env", getEnv("ENV", "development"), "Environment (development, production)")
	fs.StringVar(&cfg.UploadDir, "upload-dir", getEnv("UPLOAD_DIR", os.TempDir()), "Directory for uploaded recipient lists and attachments")

	cfg.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", "")
	cfg.RunRatePerMinute = getEnvInt("RUN_RATE_PER_MINUTE", 6)
	cfg.MaxUploadSizeMB = getEnvInt("MAX_UPLOAD_SIZE_MB", 25)
	cfg.SendPace = getEnvDuration("SEND_PACE", time.Second)
	cfg.ProgressInterval = getEnvDuration("PROGRESS_INTERVAL", time.Second)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be development or production, got %q", c.Env)
	}

	if c.IsProduction() && c.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required in production")
	}

	if c.RunRatePerMinute <= 0 {
		return fmt.Errorf("RUN_RATE_PER_MINUTE must be positive")
	}

	if c.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be positive")
	}

	if c.SendPace < 0 {
		return fmt.Errorf("SEND_PACE must not be negative")
	}

	if c.ProgressInterval <= 0 {
		return fmt.Errorf("PROGRESS_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
