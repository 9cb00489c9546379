//go:build !threadline_small

package fantasybridge

import (
	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"

	"github.com/dotcommander/threadline/internal/proto"
)

func applyProviderOptions(call *fantasy.Call, cfg Config, req proto.Request) {
	if req.User != "" {
		user := req.User
		switch cfg.API {
		case apiOpenAI, apiAzure, apiAzureAD:
			call.ProviderOptions[fopenai.Name] = &fopenai.ProviderOptions{User: &user}
		case apiAnthropic, apiGoogle, apiOpenRouter, apiVercel, apiBedrock:
			// no per-request user field
		default:
			call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
		}
	}

	if cfg.API == apiGoogle && cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
			},
		}
	}
}
