package cmd

import (
	"maps"
	"math/rand/v2"
	"regexp"
	"slices"

	"github.com/dotcommander/threadline/internal/present"
)

var examples = map[string]string{
	"Serve the agent with durable threads": `threadline serve --store sqlite --store-path ~/.local/share/threadline/threads.db`,
	"Ask with piped context":               `git log -5 --oneline | threadline ask "summarize these commits" --render`,
	"Continue a thread on a remote server": `threadline ask --remote http://localhost:8000 -t research "and what about tomorrow?"`,
}

var (
	quotedRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe   = regexp.MustCompile(`\|`)
)

func randomExample() string {
	keys := slices.Sorted(maps.Keys(examples))
	return keys[rand.IntN(len(keys))] //nolint:gosec
}

func cheapHighlighting(s present.Styles, code string) string {
	code = quotedRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	return pipeRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
}
