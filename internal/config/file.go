package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file structure.
type FileConfig struct {
	ServerPort   string `toml:"server_port"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
	LogFile      string `toml:"log_file"`
	UsageBackend string `toml:"usage_backend"`
	DBPath       string `toml:"db_path"`
	ModelsFile   string `toml:"models_file"`
	BlobRoot     string `toml:"blob_root"`

	BlobAllowedHosts []string `toml:"blob_allowed_hosts"`

	Redis     RedisSection    `toml:"redis"`
	OpenAI    UpstreamSection `toml:"openai"`
	Anthropic UpstreamSection `toml:"anthropic"`
	Vertex    VertexSection   `toml:"vertex"`
}

// RedisSection configures the redis usage backend.
type RedisSection struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       *int   `toml:"db"`
}

// UpstreamSection configures an API-key provider.
type UpstreamSection struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// VertexSection configures Vertex AI. Access tokens are only read from the environment.
type VertexSection struct {
	ProjectID string `toml:"project_id"`
	Location  string `toml:"location"`
}

// ConfigPath returns the path to the config file (~/.chatgate/config.toml).
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadFile loads configuration from the TOML file.
// Returns an empty FileConfig if the file doesn't exist.
func LoadFile() (*FileConfig, error) {
	return loadFileFrom(ConfigPath())
}

func loadFileFrom(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureConfigFile creates a default config file with commented examples if none exists.
func EnsureConfigFile() error {
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := EnsureDataDir(); err != nil {
		return err
	}

	defaultConfig := `# chatgate configuration
# server_port = ":8080"
# log_level = "info"       # debug, info, warn, error
# log_format = "text"      # text or json
# log_file = ""            # rotated log file, stdout only when empty

# usage_backend = "sqlite" # sqlite or redis
# models_file = ""         # YAML model catalog, built-in catalog when empty
# blob_root = ""           # directory for file:// attachments
# blob_allowed_hosts = []  # hosts for http(s) attachments, ".example.com" matches subdomains

# [redis]
# addr = "localhost:6379"
# password = ""
# db = 0

# [openai]
# api_key = "sk-..."
# base_url = "https://api.openai.com/v1"

# [anthropic]
# api_key = "sk-ant-..."
# base_url = "https://api.anthropic.com"

# [vertex]
# project_id = "my-project"
# location = "us-central1"
`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}
