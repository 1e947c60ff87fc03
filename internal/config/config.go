package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"toolrepro/internal/llm"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Backends accepted in endpoint.backend
const (
	BackendGoOpenAI = "go-openai"
	BackendOpenAIGo = "openai-go"
)

// Defaults mirror the endpoint where the empty-reply defect was first seen.
const (
	DefaultBaseURL      = "https://cloud-api.near.ai/v1"
	DefaultModel        = "openai/gpt-oss-120b"
	DefaultAPIKeyEnv    = "NEAR_AI_API_KEY"
	FallbackAPIKeyEnv   = "OPENAI_API_KEY"
	DefaultTemperature  = 0.3
	DefaultSystemPrompt = "You are a helpful assistant. Use the get_weather tool whenever the user asks about the weather, then answer with a short summary."
	DefaultUserPrompt   = "What's the weather like in Paris today?"
)

// Config represents the complete toolrepro configuration
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint" toml:"endpoint"`
	Scenario ScenarioConfig `yaml:"scenario" toml:"scenario"`
	MCP      MCPConfig      `yaml:"mcp" toml:"mcp"`
}

// EndpointConfig describes the OpenAI-compatible API under test
type EndpointConfig struct {
	BaseURL     string        `yaml:"base_url" toml:"base_url"`
	Model       string        `yaml:"model" toml:"model"`
	APIKey      string        `yaml:"api_key" toml:"api_key"`         // Literal key or ${VAR}; prefer api_key_env
	APIKeyEnv   string        `yaml:"api_key_env" toml:"api_key_env"` // Variable holding the key
	Temperature float32       `yaml:"temperature" toml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" toml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"` // 0 keeps the HTTP client default
	Backend     string        `yaml:"backend" toml:"backend"` // "go-openai" or "openai-go"
	Stream      bool          `yaml:"stream" toml:"stream"`
}

// ScenarioConfig holds the conversation sent in the first request
type ScenarioConfig struct {
	SystemPrompt string                   `yaml:"system_prompt" toml:"system_prompt"`
	UserPrompt   string                   `yaml:"user_prompt" toml:"user_prompt"`
	Convention   llm.ToolResultConvention `yaml:"convention" toml:"convention"`
}

// MCPConfig contains MCP-specific settings
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers" toml:"servers"`
}

// MCPServerConfig defines a single MCP server whose tools are bound next to get_weather
type MCPServerConfig struct {
	Name     string            `yaml:"name" toml:"name"`         // Unique server identifier
	Command  string            `yaml:"command" toml:"command"`   // Executable to run
	Args     []string          `yaml:"args" toml:"args"`         // Command arguments
	Env      map[string]string `yaml:"env" toml:"env"`           // Environment variables with ${VAR} support
	Disabled bool              `yaml:"disabled" toml:"disabled"` // Skip this server if true
}

// Default returns the configuration used when no file is found
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			APIKeyEnv:   DefaultAPIKeyEnv,
			Temperature: DefaultTemperature,
			Backend:     BackendGoOpenAI,
		},
		Scenario: ScenarioConfig{
			SystemPrompt: DefaultSystemPrompt,
			UserPrompt:   DefaultUserPrompt,
			Convention:   llm.ConventionToolMessage,
		},
	}
}

// Load reads a YAML or TOML config file (chosen by extension) over the defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Locations lists the files LoadWithDefaults checks, in order
func Locations() []string {
	var dirs []string
	dirs = append(dirs, ".", "./configs")
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "toolrepro"))
	}
	dirs = append(dirs, "/etc/toolrepro")

	var locations []string
	for _, dir := range dirs {
		for _, ext := range []string{".yaml", ".yml", ".toml"} {
			locations = append(locations, filepath.Join(dir, "toolrepro"+ext))
		}
	}
	return locations
}

// LoadWithDefaults loads the first config file found in Locations, or the
// defaults when there is none. It returns the path used ("" for defaults).
func LoadWithDefaults() (*Config, string, error) {
	for _, loc := range Locations() {
		if _, err := os.Stat(loc); err == nil {
			cfg, err := Load(loc)
			return cfg, loc, err
		}
	}

	// No config found - defaults are fine
	return Default(), "", nil
}

// APIKey resolves the credential: api_key (with ${VAR} expansion), then the
// variable named by api_key_env, then OPENAI_API_KEY.
func (c *Config) APIKey() string {
	if c.Endpoint.APIKey != "" {
		return ExpandEnv(c.Endpoint.APIKey)
	}
	if c.Endpoint.APIKeyEnv != "" {
		if key := os.Getenv(c.Endpoint.APIKeyEnv); key != "" {
			return key
		}
	}
	return os.Getenv(FallbackAPIKeyEnv)
}

// Validate checks config correctness
func (c *Config) Validate() error {
	if err := c.Endpoint.Validate(); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}

	if c.Scenario.UserPrompt == "" {
		return fmt.Errorf("scenario: user_prompt cannot be empty")
	}
	if !c.Scenario.Convention.Valid() {
		return fmt.Errorf("scenario: unsupported convention %q (want %q or %q)",
			c.Scenario.Convention, llm.ConventionToolMessage, llm.ConventionUserMessage)
	}

	names := make(map[string]bool)
	for i, server := range c.MCP.Servers {
		if server.Name == "" {
			return fmt.Errorf("mcp server #%d: name cannot be empty", i+1)
		}
		if names[server.Name] {
			return fmt.Errorf("duplicate mcp server name: %s", server.Name)
		}
		names[server.Name] = true

		if err := server.Validate(); err != nil {
			return fmt.Errorf("mcp server %s: %w", server.Name, err)
		}
	}

	return nil
}

// Validate checks the endpoint section
func (e *EndpointConfig) Validate() error {
	if e.Model == "" {
		return fmt.Errorf("model is required")
	}

	if e.BaseURL != "" {
		u, err := url.Parse(e.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base_url must be http or https, got %q", e.BaseURL)
		}
	}

	switch e.Backend {
	case BackendGoOpenAI, BackendOpenAIGo:
	default:
		return fmt.Errorf("unsupported backend %q (want %q or %q)", e.Backend, BackendGoOpenAI, BackendOpenAIGo)
	}

	if e.Temperature < 0 || e.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", e.Temperature)
	}
	if e.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}
	if e.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	return nil
}

// Validate checks a single server config
func (s *MCPServerConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	// Server names prefix tool names, so they must satisfy ^[a-zA-Z0-9_-]+$
	for _, ch := range s.Name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			return fmt.Errorf("server name '%s' contains invalid character '%c' (only alphanumeric, underscore, and hyphen allowed)", s.Name, ch)
		}
	}

	if s.Command == "" {
		return fmt.Errorf("command is required")
	}

	return nil
}
