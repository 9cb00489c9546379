package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	_ "embed"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/threadline/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// DefaultSystemPrompt is sent ahead of every reasoning turn.
const DefaultSystemPrompt = "You are a helpful assistant with web search capabilities. " +
	"When users ask questions that require current information or web search, " +
	"use the available search tool to find relevant information."

// Tool error policies.
const (
	ToolErrorsAbort  = "abort"
	ToolErrorsReport = "report"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreJSONL  = "jsonl"
	StoreSQLite = "sqlite"
)

// Model configures the model gateway.
type Model struct {
	API            string  `yaml:"api" toml:"api" env:"API"`
	Name           string  `yaml:"name" toml:"name" env:"NAME"`
	BaseURL        string  `yaml:"base-url" toml:"base-url" env:"BASE_URL"`
	APIKey         string  `yaml:"api-key" toml:"api-key" env:"API_KEY"`
	APIKeyEnv      string  `yaml:"api-key-env" toml:"api-key-env" env:"API_KEY_ENV"`
	APIKeyCmd      string  `yaml:"api-key-cmd" toml:"api-key-cmd" env:"API_KEY_CMD"`
	Temperature    float64 `yaml:"temperature" toml:"temperature" env:"TEMPERATURE"`
	MaxTokens      int64   `yaml:"max-tokens" toml:"max-tokens" env:"MAX_TOKENS"`
	ThinkingBudget int     `yaml:"thinking-budget,omitempty" toml:"thinking-budget" env:"THINKING_BUDGET"`
	User           string  `yaml:"user,omitempty" toml:"user" env:"USER_ID"`
}

// Search configures the built-in web search tool.
type Search struct {
	APIKey     string        `yaml:"api-key" toml:"api-key" env:"API_KEY"`
	BaseURL    string        `yaml:"base-url" toml:"base-url" env:"BASE_URL"`
	MaxResults int           `yaml:"max-results" toml:"max-results" env:"MAX_RESULTS"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	Disabled   bool          `yaml:"disabled" toml:"disabled" env:"DISABLE"`
}

// Agent configures the reasoning loop.
type Agent struct {
	MaxIterations int           `yaml:"max-iterations" toml:"max-iterations" env:"MAX_ITERATIONS"`
	ToolErrors    string        `yaml:"tool-errors" toml:"tool-errors" env:"TOOL_ERRORS"`
	ToolTimeout   time.Duration `yaml:"tool-timeout" toml:"tool-timeout" env:"TOOL_TIMEOUT"`
}

// Server configures the HTTP transport.
type Server struct {
	Host            string        `yaml:"host" toml:"host" env:"HOST"`
	Port            int           `yaml:"port" toml:"port" env:"PORT"`
	CORSOrigins     []string      `yaml:"cors-origins" toml:"cors-origins" env:"CORS_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" toml:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Store configures the conversation store.
type Store struct {
	Driver string `yaml:"driver" toml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" toml:"path" env:"PATH"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
}

// MCPServerConfig holds configuration for an MCP server.
type MCPServerConfig struct {
	Type    string   `yaml:"type" toml:"type"`
	Command string   `yaml:"command" toml:"command"`
	Env     []string `yaml:"env" toml:"env"`
	Args    []string `yaml:"args" toml:"args"`
	URL     string   `yaml:"url" toml:"url"`
}

// Settings holds configuration loaded from the settings file and the
// environment.
type Settings struct {
	Model        Model  `yaml:"model" toml:"model" envPrefix:"MODEL_"`
	SystemPrompt string `yaml:"system-prompt" toml:"system-prompt" env:"SYSTEM_PROMPT"`
	Search       Search `yaml:"search" toml:"search" envPrefix:"TAVILY_"`
	Agent        Agent  `yaml:"agent" toml:"agent" envPrefix:"AGENT_"`
	Server       Server `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Store        Store  `yaml:"store" toml:"store" envPrefix:"STORE_"`
	Log          Log    `yaml:"log" toml:"log" envPrefix:"LOG_"`
	HTTPProxy    string `yaml:"http-proxy,omitempty" toml:"http-proxy" env:"HTTP_PROXY"`
	WordWrap     int    `yaml:"word-wrap" toml:"word-wrap" env:"WORD_WRAP"`

	MCPServers      map[string]MCPServerConfig `yaml:"mcp-servers,omitempty" toml:"mcp-servers"`
	MCPDisable      []string                   `yaml:"mcp-disable,omitempty" toml:"mcp-disable" env:"MCP_DISABLE"`
	MCPTimeout      time.Duration              `yaml:"mcp-timeout" toml:"mcp-timeout" env:"MCP_TIMEOUT"`
	MCPNoInheritEnv bool                       `yaml:"mcp-no-inherit-env,omitempty" toml:"mcp-no-inherit-env" env:"MCP_NO_INHERIT_ENV"`
}

// Config is the application configuration.
type Config struct {
	Settings `yaml:",inline"`

	// SettingsPath is the file the settings were read from, if any.
	SettingsPath string `yaml:"-" toml:"-"`
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return filepath.Join(home, ".config", "threadline", "threadline.yml"), nil
}

// Load builds the configuration from defaults, the settings file at path and
// the environment, in that order.
//
// An empty path falls back to DefaultPath, which may not exist.
func Load(path string) (Config, error) {
	c := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, content, &c); err != nil {
				return c, err
			}
			c.SettingsPath = path
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return c, errs.Error{Err: err, Reason: "Could not read settings file."}
		}
	}

	if err := env.ParseWithOptions(&c, env.Options{}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings."}
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func decode(path string, content []byte, c *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(content), &c.Settings); err != nil {
			return errs.Error{Err: err, Reason: "Could not parse settings file."}
		}
	default:
		if err := yaml.Unmarshal(content, c); err != nil {
			return errs.Error{Err: err, Reason: "Could not parse settings file."}
		}
	}
	return nil
}

// Validate rejects settings the application cannot run with.
func (c Config) Validate() error {
	if !slices.Contains([]string{StoreMemory, StoreJSONL, StoreSQLite}, c.Store.Driver) {
		return errs.Error{
			Err:    errs.UserErrorf("supported drivers are: %s, %s, %s", StoreMemory, StoreJSONL, StoreSQLite),
			Reason: fmt.Sprintf("Unknown store driver %q.", c.Store.Driver),
		}
	}
	if c.Store.Driver != StoreMemory && c.Store.Path == "" {
		return errs.Error{Reason: fmt.Sprintf("The %s store requires store.path.", c.Store.Driver)}
	}
	if c.Agent.ToolErrors != ToolErrorsAbort && c.Agent.ToolErrors != ToolErrorsReport {
		return errs.Error{
			Err:    errs.UserErrorf("supported policies are: %s, %s", ToolErrorsAbort, ToolErrorsReport),
			Reason: fmt.Sprintf("Unknown tool error policy %q.", c.Agent.ToolErrors),
		}
	}
	if c.Agent.MaxIterations <= 0 {
		return errs.Error{Reason: "agent.max-iterations must be positive."}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errs.Error{Reason: fmt.Sprintf("Invalid server port %d.", c.Server.Port)}
	}
	return nil
}

// Masked returns a copy with secrets replaced, for display.
func (c Config) Masked() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Model.APIKey = mask(c.Model.APIKey)
	c.Search.APIKey = mask(c.Search.APIKey)
	return c
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration directory."}
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			Model: Model{
				API:         "openai",
				Name:        "gpt-4o-mini",
				Temperature: 0,
			},
			SystemPrompt: DefaultSystemPrompt,
			Search: Search{
				BaseURL:    "https://api.tavily.com",
				MaxResults: 3,
				Timeout:    20 * time.Second,
			},
			Agent: Agent{
				MaxIterations: 10,
				ToolErrors:    ToolErrorsAbort,
				ToolTimeout:   30 * time.Second,
			},
			Server: Server{
				Host:            "0.0.0.0",
				Port:            8000,
				CORSOrigins:     []string{"*"},
				ShutdownTimeout: 5 * time.Second,
			},
			Store:      Store{Driver: StoreMemory},
			Log:        Log{Level: "info", Format: "text"},
			WordWrap:   80,
			MCPTimeout: 15 * time.Second,
		},
	}
}
