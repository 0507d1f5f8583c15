// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerPort string
	APIToken   string

	// Upstream live log stream
	UpstreamURL       string
	LiveLogPath       string
	LogCacheSize      int
	ClosedDelay       time.Duration
	ErrorDelay        time.Duration
	LegacyContentType bool
	Autostart         bool

	// Credential sources for the upstream bearer token
	CredentialsFile      string
	CredentialsSecret    string
	CredentialsNamespace string

	// Persistence configuration
	StatePath       string
	DataStoreDriver string
	DataStoreDSN    string
	ArchiveKeep     int
	PruneInterval   time.Duration

	// Redis / events configuration
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	EventsChannel    string
	RedisLogStream   string
	RedisLogGroup    string
	RedisStreamMax   int
	RedisClaimIdle   time.Duration
	WorkerName       string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	statePath := getEnv("STATE_PATH", "/app/state")
	dataStoreDriver := getEnv("DATASTORE_DRIVER", "sqlite")
	dataStoreDSN := getEnv("DATASTORE_DSN", "")
	if dataStoreDSN == "" && dataStoreDriver == "postgres" {
		dataStoreDSN = os.Getenv("POSTGRES_DSN")
	}
	if dataStoreDSN == "" && dataStoreDriver == "sqlite" {
		dataStoreDSN = filepath.Join(statePath, "bot-console.db")
	}
	return &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		APIToken:             os.Getenv("API_TOKEN"),
		UpstreamURL:          strings.TrimRight(getEnv("UPSTREAM_URL", "http://localhost:6185"), "/"),
		LiveLogPath:          getEnv("LIVE_LOG_PATH", "/api/live-log"),
		LogCacheSize:         getEnvInt("LOG_CACHE_SIZE", 1000),
		ClosedDelay:          getEnvDuration("RECONNECT_CLOSED_DELAY", 2*time.Second),
		ErrorDelay:           getEnvDuration("RECONNECT_ERROR_DELAY", time.Second),
		LegacyContentType:    getEnvBool("LEGACY_CONTENT_TYPE", false),
		Autostart:            getEnvBool("AUTOSTART", true),
		CredentialsFile:      getEnv("CREDENTIALS_FILE", ""),
		CredentialsSecret:    getEnv("CREDENTIALS_SECRET", ""),
		CredentialsNamespace: getEnv("CREDENTIALS_NAMESPACE", "default"),
		StatePath:            statePath,
		DataStoreDriver:      dataStoreDriver,
		DataStoreDSN:         dataStoreDSN,
		ArchiveKeep:          getEnvInt("ARCHIVE_KEEP", 100000),
		PruneInterval:        getEnvDuration("ARCHIVE_PRUNE_INTERVAL", 5*time.Minute),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisUsername:        getEnv("REDIS_USERNAME", ""),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:      getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure:     getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		EventsChannel:        getEnv("EVENTS_CHANNEL", "bot-console-live-log"),
		RedisLogStream:       getEnv("REDIS_LOG_STREAM", "bot-console:live-log"),
		RedisLogGroup:        getEnv("REDIS_LOG_GROUP", "archive-workers"),
		RedisStreamMax:       getEnvInt("REDIS_LOG_STREAM_MAXLEN", 50000),
		RedisClaimIdle:       getEnvDuration("REDIS_LOG_CLAIM_IDLE", time.Minute),
		WorkerName:           getEnv("WORKER_NAME", hostname()),
	}
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker"
	}
	return host
}

// LiveLogURL joins the upstream base URL and the live log path.
func (c *Config) LiveLogURL() string {
	path := c.LiveLogPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.UpstreamURL + path
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare integers are read as milliseconds.
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
