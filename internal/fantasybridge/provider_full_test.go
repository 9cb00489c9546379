//go:build !threadline_small

package fantasybridge

import (
	"testing"

	"charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadline/internal/proto"
)

func TestBuildCallGoogleThinkingBudget(t *testing.T) {
	call := buildCall(Config{API: "google", ThinkingBudget: 256}, proto.Request{})

	v, ok := call.ProviderOptions[google.Name]
	require.True(t, ok)
	opts, ok := v.(*google.ProviderOptions)
	require.True(t, ok)
	require.NotNil(t, opts.ThinkingConfig)
	require.NotNil(t, opts.ThinkingConfig.ThinkingBudget)
	require.EqualValues(t, 256, *opts.ThinkingConfig.ThinkingBudget)
}

func TestBuildCallUserProviderOptions(t *testing.T) {
	t.Run("openai user propagates to openai provider options", func(t *testing.T) {
		call := buildCall(Config{API: "openai"}, proto.Request{User: "alice"})
		v, ok := call.ProviderOptions[fopenai.Name]
		require.True(t, ok)
		opts, ok := v.(*fopenai.ProviderOptions)
		require.True(t, ok)
		require.Equal(t, "alice", *opts.User)
	})

	t.Run("custom openai-compatible user propagates to compat options", func(t *testing.T) {
		call := buildCall(Config{API: "ollama"}, proto.Request{User: "bob"})
		v, ok := call.ProviderOptions[fopenaicompat.Name]
		require.True(t, ok)
		opts, ok := v.(*fopenaicompat.ProviderOptions)
		require.True(t, ok)
		require.Equal(t, "bob", *opts.User)
	})

	t.Run("google does not attach user provider option", func(t *testing.T) {
		call := buildCall(Config{API: "google"}, proto.Request{User: "carol"})
		_, hasOpenAI := call.ProviderOptions[fopenai.Name]
		_, hasCompat := call.ProviderOptions[fopenaicompat.Name]
		require.False(t, hasOpenAI)
		require.False(t, hasCompat)
	})
}

func TestNewProviders(t *testing.T) {
	for _, api := range []string{"openai", "anthropic", "azure-ad", "ollama"} {
		t.Run(api, func(t *testing.T) {
			client, err := New(Config{
				API:     api,
				APIKey:  "token",
				BaseURL: "https://example.openai.azure.com",
			}, nil)
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}

	_, err := New(Config{}, nil)
	require.Error(t, err)
}
