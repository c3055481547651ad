// Package config reads linkkeeper's runtime settings from the environment.
//
// A .env file in the working directory is loaded first when present; values
// already set in the process environment win over the file.
package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultDatabasePath          = "linkkeeper.db"
	DefaultRSSPollingInterval    = 60 * time.Minute
	DefaultArchiveInterval       = 10 * time.Second
	DefaultArchiveTakeCount      = 5
	DefaultManualRefreshCooldown = 20 * time.Minute
	DefaultMaxLinksPerUser       = 30000
	DefaultArchiveTimeout        = 40 * time.Second
	DefaultStorageFolder         = "data"
)

// Config is read once at startup and passed by value to constructors.
type Config struct {
	DatabasePath string

	RSSPollingInterval    time.Duration
	ArchiveInterval       time.Duration
	ArchiveTakeCount      int
	ManualRefreshCooldown time.Duration

	// IgnoreUnauthorizedCA disables TLS certificate verification for feed fetches.
	IgnoreUnauthorizedCA bool

	// MaxLinksPerUser is the per-owner quota; 0 disables the limit.
	MaxLinksPerUser int

	ArchiveTimeout time.Duration
	ChromePath     string

	StorageFolder string
	S3            S3Config

	SessionSecret string
}

// S3Config selects S3-compatible artifact storage when Bucket is set.
type S3Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Load reads .env (if any) and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
// Missing or unparseable numbers fall back to their defaults.
func FromEnv() Config {
	return Config{
		DatabasePath:          envString("DATABASE_PATH", DefaultDatabasePath),
		RSSPollingInterval:    time.Duration(envPositiveInt("RSS_POLLING_INTERVAL_MINUTES", int(DefaultRSSPollingInterval/time.Minute))) * time.Minute,
		ArchiveInterval:       time.Duration(envPositiveInt("ARCHIVE_SCRIPT_INTERVAL", int(DefaultArchiveInterval/time.Second))) * time.Second,
		ArchiveTakeCount:      envPositiveInt("ARCHIVE_TAKE_COUNT", DefaultArchiveTakeCount),
		ManualRefreshCooldown: time.Duration(envPositiveInt("MANUAL_RSS_REFRESH_MINUTES", int(DefaultManualRefreshCooldown/time.Minute))) * time.Minute,
		IgnoreUnauthorizedCA:  os.Getenv("IGNORE_UNAUTHORIZED_CA") == "true",
		MaxLinksPerUser:       envNonNegativeInt("MAX_LINKS_PER_USER", DefaultMaxLinksPerUser),
		ArchiveTimeout:        time.Duration(envPositiveInt("ARCHIVE_TIMEOUT_SECONDS", int(DefaultArchiveTimeout/time.Second))) * time.Second,
		ChromePath:            os.Getenv("CHROME_PATH"),
		StorageFolder:         envString("STORAGE_FOLDER", DefaultStorageFolder),
		S3: S3Config{
			Bucket:         os.Getenv("SPACES_BUCKET_NAME"),
			Region:         os.Getenv("SPACES_REGION"),
			Endpoint:       os.Getenv("SPACES_ENDPOINT"),
			ForcePathStyle: os.Getenv("SPACES_FORCE_PATH_STYLE") == "true",
		},
		SessionSecret: os.Getenv("SESSION_SECRET"),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envPositiveInt treats zero like a missing value.
func envPositiveInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envNonNegativeInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n < 0 {
		return def
	}
	return n
}
