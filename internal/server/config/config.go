package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultDBPath     = "~/.agentkit/state.db"
	defaultAPIListen  = "0.0.0.0:8080"
	defaultDataDir    = "~/.agentkit/data"
	defaultAgentYAML  = "agent.yaml"
	defaultModelName  = "gpt-4o-mini"
	defaultModelTemp  = 0.0
	defaultModelOwner = "openai"
)

// ServerConfig captures the runtime configuration required by the daemon.
type ServerConfig struct {
	DatabasePath    string
	APIListenAddr   string
	DataDir         string
	AgentConfigPath string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
}

// FromEnv loads server configuration from environment variables, applying
// opinionated defaults when unset.
func FromEnv() (ServerConfig, error) {
	cfg := ServerConfig{
		DatabasePath:    getenv("AGENTKIT_DB_PATH", defaultDBPath),
		APIListenAddr:   getenv("AGENTKIT_API_LISTEN", defaultAPIListen),
		DataDir:         getenv("AGENTKIT_DATA_DIR", defaultDataDir),
		AgentConfigPath: getenv("AGENTKIT_CONFIG", defaultAgentYAML),
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}

	listenAddr := strings.TrimSpace(cfg.APIListenAddr)
	if listenAddr == "" {
		return ServerConfig{}, fmt.Errorf("api listen address required")
	}
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid api listen address %q: %w", listenAddr, err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	return cfg, nil
}

// UploadDir returns the directory uploads are persisted under.
func (c ServerConfig) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// ModelSettings selects the model the backend invokes.
type ModelSettings struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
}

// ToolSettings toggles the built-in agent tools.
type ToolSettings struct {
	Wikipedia  bool `yaml:"wikipedia"`
	Requests   bool `yaml:"requests"`
	PythonREPL bool `yaml:"python_repl"`
}

// AgentConfig is the user-editable agent.yaml.
type AgentConfig struct {
	Model ModelSettings `yaml:"model"`
	Tools ToolSettings  `yaml:"tools"`
}

// DefaultAgentConfig returns the settings used when no agent.yaml exists.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model: ModelSettings{Provider: defaultModelOwner, Name: defaultModelName, Temperature: defaultModelTemp},
		Tools: ToolSettings{Wikipedia: true, Requests: true},
	}
}

// LoadAgentConfig reads agent.yaml from path. A missing file is not an
// error; configuration problems degrade to defaults rather than failing
// the server.
func LoadAgentConfig(path string) (AgentConfig, error) {
	cfg := DefaultAgentConfig()

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read agent config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultAgentConfig(), fmt.Errorf("parse agent config: %w", err)
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = defaultModelName
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = defaultModelOwner
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
