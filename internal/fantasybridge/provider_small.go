//go:build threadline_small

package fantasybridge

import "charm.land/fantasy"

// The small build only ships the OpenAI-compatible provider.
var providers = map[string]func(Config) (fantasy.Provider, error){}
