package fantasybridge

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadline/internal/config"
)

func TestResolveAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "from-env")
		key, err := ResolveAPIKey(ctx, config.Model{API: "openai", APIKey: "explicit"})
		require.NoError(t, err)
		require.Equal(t, "explicit", key)
	})

	t.Run("custom env", func(t *testing.T) {
		t.Setenv("MY_KEY", "custom")
		key, err := ResolveAPIKey(ctx, config.Model{API: "openai", APIKeyEnv: "MY_KEY"})
		require.NoError(t, err)
		require.Equal(t, "custom", key)
	})

	t.Run("command", func(t *testing.T) {
		key, err := ResolveAPIKey(ctx, config.Model{API: "openai", APIKeyCmd: `echo "  from-cmd  "`})
		require.NoError(t, err)
		require.Equal(t, "from-cmd", key)
	})

	t.Run("default env", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
		key, err := ResolveAPIKey(ctx, config.Model{API: "anthropic"})
		require.NoError(t, err)
		require.Equal(t, "sk-ant", key)
	})

	t.Run("required key missing", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := ResolveAPIKey(ctx, config.Model{API: "openai"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "platform.openai.com")
	})

	t.Run("compatible endpoints may go without", func(t *testing.T) {
		t.Setenv("OLLAMA_API_KEY", "")
		key, err := ResolveAPIKey(ctx, config.Model{API: "ollama"})
		require.NoError(t, err)
		require.Empty(t, key)
	})

	t.Run("compatible endpoint env name", func(t *testing.T) {
		require.Equal(t, "LM_STUDIO_API_KEY", keySourceFor("lm-studio").env)
	})
}

func TestProxyClient(t *testing.T) {
	client, err := ProxyClient("")
	require.NoError(t, err)
	require.Nil(t, client)

	client, err = ProxyClient("http://proxy.example.com:8080")
	require.NoError(t, err)
	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	req, err := http.NewRequest(http.MethodGet, "https://api.openai.com/v1/models", nil)
	require.NoError(t, err)
	u, err := tr.Proxy(req)
	require.NoError(t, err)
	require.Equal(t, "proxy.example.com:8080", u.Host)

	_, err = ProxyClient("://bad")
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Settings
	cfg.Model.API = "ollama"
	client, err := FromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:11434/v1", client.config.BaseURL)
}
