package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the commands need. Values come from, in increasing
// priority: built-in defaults, the YAML file named by WALLETSYNC_CONFIG, and
// environment variables (a .env file is loaded first when present).
type Config struct {
	// Account is the remote account identifier snapshots are stored under.
	// Only its digest ever reaches disk.
	Account  string `yaml:"account"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	// StorageMode is "local" (sqlite) or "cloud" (mysql).
	StorageMode  string `yaml:"storage_mode"`
	DatabasePath string `yaml:"database_path"`
	MySQLDSN     string `yaml:"mysql_dsn"`

	GCSBucket          string `yaml:"gcs_bucket"`
	GCSPrefix          string `yaml:"gcs_prefix"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`

	RemoteAttempts int           `yaml:"remote_attempts"`
	RemoteBackoff  time.Duration `yaml:"remote_backoff"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
	BackupInterval time.Duration `yaml:"backup_interval"`

	HTTPAddr         string `yaml:"http_addr"`
	DiscordBotToken  string `yaml:"discord_bot_token"`
	DiscordChannelId string `yaml:"discord_channel_id"`
}

func defaults() *Config {
	return &Config{
		DataDir:        "data",
		LogLevel:       "info",
		StorageMode:    "local",
		RemoteAttempts: 3,
		RemoteBackoff:  500 * time.Millisecond,
		UploadTimeout:  time.Minute,
		BackupInterval: 5 * time.Second,
		HTTPAddr:       ":8080",
	}
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("WALLETSYNC_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Account = getEnv("WALLETSYNC_ACCOUNT", c.Account)
	c.DataDir = getEnv("WALLETSYNC_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.StorageMode = strings.ToLower(getEnv("STORAGE_MODE", c.StorageMode))
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.MySQLDSN = getEnv("MYSQL_DSN", c.MySQLDSN)

	c.GCSBucket = getEnv("GCS_BUCKET", c.GCSBucket)
	c.GCSPrefix = getEnv("GCS_PREFIX", c.GCSPrefix)
	c.GCSCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GCSCredentialsFile)

	c.RemoteAttempts = getEnvAsInt("REMOTE_ATTEMPTS", c.RemoteAttempts)
	c.RemoteBackoff = getEnvAsDuration("REMOTE_BACKOFF", c.RemoteBackoff)
	c.UploadTimeout = getEnvAsDuration("UPLOAD_TIMEOUT", c.UploadTimeout)
	c.BackupInterval = getEnvAsDuration("BACKUP_INTERVAL", c.BackupInterval)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.DiscordBotToken = getEnv("DISCORD_BOT_TOKEN", c.DiscordBotToken)
	c.DiscordChannelId = getEnv("DISCORD_CHANNEL_ID", c.DiscordChannelId)
}

func (c *Config) validate() error {
	if c.Account == "" {
		return errors.New("account is not set")
	}
	switch c.StorageMode {
	case "local":
	case "cloud":
		if c.MySQLDSN == "" {
			return errors.New("MySQL DSN is required in cloud storage mode")
		}
	default:
		return fmt.Errorf("unknown storage mode %q", c.StorageMode)
	}
	if c.RemoteAttempts < 1 {
		return fmt.Errorf("remote attempts must be at least 1, got %d", c.RemoteAttempts)
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "transaction.db")
	}
	return nil
}

// RequireDiscord reports whether the settings the bot needs are present.
func (c *Config) RequireDiscord() error {
	if c.DiscordBotToken == "" {
		return errors.New("Bot token is not set")
	}
	if c.DiscordChannelId == "" {
		return errors.New("Channel ID is not set")
	}
	return nil
}

// CloudBackup reports whether snapshots are also written to GCS.
func (c *Config) CloudBackup() bool {
	return c.GCSBucket != ""
}

func (c *Config) SettingsDir() string {
	return filepath.Join(c.DataDir, "settings")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
