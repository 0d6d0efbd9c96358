// Package config loads gateway settings and the model catalog.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Usage store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds application configuration loaded from environment and file.
// Priority: Env vars → config.toml → defaults
type Config struct {
	// ServerPort is the address to bind the server to (e.g., ":8080")
	ServerPort string

	// Logging
	LogLevel  string
	LogFormat string // text or json
	LogFile   string // optional rotated file sink

	// UsageBackend selects the usage store (sqlite or redis)
	UsageBackend  string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ModelsFile is an optional YAML model catalog; the built-in catalog is used when empty
	ModelsFile string

	// BlobRoot confines file:// and bare-path attachment URIs
	BlobRoot string

	// BlobAllowedHosts lists the hosts http(s) attachment URIs may point at.
	// Remote attachments are disabled when it is empty.
	BlobAllowedHosts []string

	OpenAI    UpstreamConfig
	Anthropic UpstreamConfig
	Vertex    VertexConfig
}

// UpstreamConfig holds the endpoint and key of an API-key provider.
type UpstreamConfig struct {
	APIKey  string
	BaseURL string
}

// VertexConfig holds Vertex AI project settings.
// AccessToken is optional; Application Default Credentials are used without it.
type VertexConfig struct {
	ProjectID   string
	Location    string
	AccessToken string
}

// Load reads configuration from file and environment variables.
// Environment variables override file config values.
func Load() *Config {
	fileConfig, err := LoadFile()
	if err != nil || fileConfig == nil {
		fileConfig = &FileConfig{}
	}

	return &Config{
		ServerPort:    getEnvOrFile("SERVER_PORT", fileConfig.ServerPort, ":8080"),
		LogLevel:      getEnvOrFile("LOG_LEVEL", fileConfig.LogLevel, "info"),
		LogFormat:     getEnvOrFile("LOG_FORMAT", fileConfig.LogFormat, "text"),
		LogFile:       getEnvOrFile("LOG_FILE", fileConfig.LogFile, ""),
		UsageBackend:  getEnvOrFile("USAGE_BACKEND", fileConfig.UsageBackend, BackendSQLite),
		DBPath:        getEnvOrFile("DB_PATH", fileConfig.DBPath, DBPath()),
		RedisAddr:     getEnvOrFile("REDIS_ADDR", fileConfig.Redis.Addr, "localhost:6379"),
		RedisPassword: getEnvOrFile("REDIS_PASSWORD", fileConfig.Redis.Password, ""),
		RedisDB:       getEnvIntOrFile("REDIS_DB", fileConfig.Redis.DB, 0),
		ModelsFile:    getEnvOrFile("MODELS_FILE", fileConfig.ModelsFile, ""),
		BlobRoot:      getEnvOrFile("BLOB_ROOT", fileConfig.BlobRoot, BlobDir()),

		BlobAllowedHosts: getEnvListOrFile("BLOB_ALLOWED_HOSTS", fileConfig.BlobAllowedHosts),

		OpenAI: UpstreamConfig{
			APIKey:  getEnvOrFile("OPENAI_API_KEY", fileConfig.OpenAI.APIKey, ""),
			BaseURL: getEnvOrFile("OPENAI_BASE_URL", fileConfig.OpenAI.BaseURL, "https://api.openai.com/v1"),
		},
		Anthropic: UpstreamConfig{
			APIKey:  getEnvOrFile("ANTHROPIC_API_KEY", fileConfig.Anthropic.APIKey, ""),
			BaseURL: getEnvOrFile("ANTHROPIC_BASE_URL", fileConfig.Anthropic.BaseURL, "https://api.anthropic.com"),
		},
		Vertex: VertexConfig{
			ProjectID:   getEnvOrFile("VERTEX_PROJECT_ID", fileConfig.Vertex.ProjectID, ""),
			Location:    getEnvOrFile("VERTEX_LOCATION", fileConfig.Vertex.Location, "us-central1"),
			AccessToken: getEnvOrFile("VERTEX_ACCESS_TOKEN", "", ""),
		},
	}
}

// getEnvOrFile returns env value, file value, or default (in priority order)
func getEnvOrFile(key, fileValue, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// getEnvIntOrFile returns env int, file int, or default (in priority order).
// An unparsable env value falls through to the file value.
func getEnvIntOrFile(key string, fileValue *int, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

// getEnvListOrFile returns a comma-separated env list or the file list.
func getEnvListOrFile(key string, fileValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fileValue
	}
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
