package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/threadline/internal/errs"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	require.Equal(t, 3, cfg.Search.MaxResults)
	require.Equal(t, 10, cfg.Agent.MaxIterations)
	require.Equal(t, ToolErrorsAbort, cfg.Agent.ToolErrors)
	require.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	require.Equal(t, StoreMemory, cfg.Store.Driver)
}

func TestLoad(t *testing.T) {
	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := writeFile(t, "threadline.yml", `
model:
  name: gpt-4o
  temperature: 0.5
agent:
  tool-errors: report
  tool-timeout: 5s
server:
  port: 9000
  cors-origins: ["https://app.example.com"]
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, path, cfg.SettingsPath)
		require.Equal(t, "gpt-4o", cfg.Model.Name)
		require.InDelta(t, 0.5, cfg.Model.Temperature, 0.0001)
		require.Equal(t, ToolErrorsReport, cfg.Agent.ToolErrors)
		require.Equal(t, 5*time.Second, cfg.Agent.ToolTimeout)
		require.Equal(t, 9000, cfg.Server.Port)
		require.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
		// untouched values keep their defaults
		require.Equal(t, 3, cfg.Search.MaxResults)
	})

	t.Run("toml file", func(t *testing.T) {
		path := writeFile(t, "threadline.toml", `
system-prompt = "be brief"

[search]
max-results = 5

[store]
driver = "sqlite"
path = "/tmp/threads.db"
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, "be brief", cfg.SystemPrompt)
		require.Equal(t, 5, cfg.Search.MaxResults)
		require.Equal(t, StoreSQLite, cfg.Store.Driver)
		require.Equal(t, "/tmp/threads.db", cfg.Store.Path)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		path := writeFile(t, "threadline.yml", "model:\n  name: from-file\n")
		t.Setenv("MODEL_NAME", "from-env")
		t.Setenv("TAVILY_MAX_RESULTS", "7")
		t.Setenv("TAVILY_API_KEY", "tvly-secret")
		t.Setenv("SERVER_PORT", "8081")
		t.Setenv("AGENT_MAX_ITERATIONS", "4")
		t.Setenv("SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, "from-env", cfg.Model.Name)
		require.Equal(t, 7, cfg.Search.MaxResults)
		require.Equal(t, "tvly-secret", cfg.Search.APIKey)
		require.Equal(t, 8081, cfg.Server.Port)
		require.Equal(t, 4, cfg.Agent.MaxIterations)
		require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	})

	t.Run("explicit missing file errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		require.Error(t, err)
	})

	t.Run("invalid yaml errors", func(t *testing.T) {
		path := writeFile(t, "threadline.yml", "model: [")
		_, err := Load(path)
		require.Contains(t, errs.MessageOf(err), "Could not parse settings file: ")
	})

	t.Run("invalid settings are rejected", func(t *testing.T) {
		path := writeFile(t, "threadline.yml", "store:\n  driver: redis\n")
		_, err := Load(path)
		require.Error(t, err)
		require.Contains(t, errs.MessageOf(err), `Unknown store driver "redis".`)
	})
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		reason string
	}{
		"store path required": {
			mutate: func(c *Config) { c.Store.Driver = StoreJSONL },
			reason: "The jsonl store requires store.path.",
		},
		"tool error policy": {
			mutate: func(c *Config) { c.Agent.ToolErrors = "ignore" },
			reason: `Unknown tool error policy "ignore".`,
		},
		"iterations": {
			mutate: func(c *Config) { c.Agent.MaxIterations = 0 },
			reason: "agent.max-iterations must be positive.",
		},
		"port": {
			mutate: func(c *Config) { c.Server.Port = 70000 },
			reason: "Invalid server port 70000.",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var e errs.Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, tc.reason, e.ReasonText())
		})
	}
}

func TestMasked(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = "sk-live"
	cfg.Search.APIKey = ""

	masked := cfg.Masked()
	require.Equal(t, "********", masked.Model.APIKey)
	require.Empty(t, masked.Search.APIKey)
	require.Equal(t, "sk-live", cfg.Model.APIKey)
}

func TestWriteConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "threadline.yml")
	require.NoError(t, WriteConfigFile(path))

	bts, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed Config
	require.NoError(t, yaml.Unmarshal(bts, &parsed))
	require.Equal(t, Default().Model.Name, parsed.Model.Name)
	require.Equal(t, Default().Agent.ToolTimeout, parsed.Agent.ToolTimeout)
	require.Equal(t, []string{"*"}, parsed.Server.CORSOrigins)
	require.Equal(t, DefaultSystemPrompt, parsed.SystemPrompt)

	t.Run("existing file is left alone", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("model:\n  name: mine\n"), 0o600))
		require.NoError(t, WriteConfigFile(path))
		bts, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "model:\n  name: mine\n", string(bts))
	})

	t.Run("generated file loads", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "threadline.yml")
		require.NoError(t, WriteConfigFile(other))
		_, err := Load(other)
		require.NoError(t, err)
	})
}
