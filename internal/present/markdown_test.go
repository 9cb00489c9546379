package present

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("**Prompt**:\n\nweather\tin paris?\n\n", 80)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "\n"))
	require.False(t, strings.HasSuffix(out, "\n\n"))
	require.NotContains(t, out, "\t")
	require.Contains(t, out, "weather")
}

func TestMarkdownPassesThroughWithoutTerminal(t *testing.T) {
	if IsOutputTTY() {
		t.Skip("stdout is a terminal")
	}
	require.Equal(t, "# raw\n", Markdown("# raw\n", 80))
}
