package fantasybridge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/google/uuid"

	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/proto"
)

const (
	apiAnthropic  = "anthropic"
	apiGoogle     = "google"
	apiOpenAI     = "openai"
	apiAzure      = "azure"
	apiAzureAD    = "azure-ad"
	apiOpenRouter = "openrouter"
	apiVercel     = "vercel"
	apiBedrock    = "bedrock"
	apiOllama     = "ollama"
)

// Config represents provider configuration used by the fantasy bridge.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int
}

// Client is the model gateway backed by charm.land/fantasy.
//
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	provider fantasy.Provider
	config   Config
	logger   *slog.Logger
}

// New creates a new Fantasy-backed model gateway.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing fantasy provider configuration"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		provider: provider,
		config:   cfg,
		logger:   logger.With("component", "model", "api", cfg.API),
	}, nil
}

func newProvider(cfg Config) (fantasy.Provider, error) {
	if fn, ok := providers[cfg.API]; ok {
		return fn(cfg)
	}
	return newOpenAICompat(cfg)
}

func newOpenAICompat(cfg Config) (fantasy.Provider, error) {
	opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
	if cfg.APIKey != "" {
		opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenaicompat.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := fopenaicompat.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("new fantasy openai-compatible provider: %w", err)
	}
	return provider, nil
}

// Generate runs one reasoning turn. Text fragments are yielded as they
// arrive; tool calls are yielded once complete. At most one error is
// yielded, and it ends the sequence.
func (c *Client) Generate(ctx context.Context, req proto.Request) iter.Seq2[proto.Fragment, error] {
	return func(yield func(proto.Fragment, error) bool) {
		model, err := c.provider.LanguageModel(ctx, req.Model)
		if err != nil {
			yield(proto.Fragment{}, c.classify(req.Model, err))
			return
		}

		parts, err := model.Stream(ctx, buildCall(c.config, req))
		if err != nil {
			yield(proto.Fragment{}, c.classify(req.Model, err))
			return
		}

		c.relay(ctx, req.Model, parts, yield)
	}
}

func (c *Client) relay(ctx context.Context, model string, parts func(yield func(fantasy.StreamPart) bool), yield func(proto.Fragment, error) bool) {
	t := newTurn(c.logger)
	for part := range parts {
		frag, ok, err := t.consume(part)
		if err != nil {
			yield(proto.Fragment{}, c.classify(model, err))
			return
		}
		if ok && !yield(frag, nil) {
			return
		}
	}
	if err := ctx.Err(); err != nil {
		yield(proto.Fragment{}, err)
	}
}

func buildCall(cfg Config, req proto.Request) fantasy.Call {
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(req.System, req.Messages),
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		Tools:           fromDefinitions(req.Tools),
		ToolChoice:      toolChoiceForRequest(req),
		ProviderOptions: fantasy.ProviderOptions{},
	}
	applyProviderOptions(&call, cfg, req)
	return call
}

// turn accumulates the stream parts of one reasoning turn.
type turn struct {
	logger      *slog.Logger
	callSeen    map[string]struct{}
	warningSeen map[string]struct{}
}

func newTurn(logger *slog.Logger) *turn {
	return &turn{
		logger:      logger,
		callSeen:    map[string]struct{}{},
		warningSeen: map[string]struct{}{},
	}
}

// consume maps a stream part to a fragment. ok is false for parts that
// produce nothing.
func (t *turn) consume(part fantasy.StreamPart) (proto.Fragment, bool, error) {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		if part.Delta == "" {
			return proto.Fragment{}, false, nil
		}
		return proto.Fragment{Text: part.Delta}, true, nil
	case fantasy.StreamPartTypeToolCall:
		if part.ProviderExecuted {
			return proto.Fragment{}, false, nil
		}
		id := part.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		if _, exists := t.callSeen[id]; exists {
			return proto.Fragment{}, false, nil
		}
		t.callSeen[id] = struct{}{}
		input := strings.TrimSpace(part.ToolCallInput)
		if input == "" {
			input = "{}"
		}
		return proto.Fragment{ToolCall: &proto.ToolCall{
			ID:        id,
			Name:      part.ToolCallName,
			Arguments: []byte(input),
		}}, true, nil
	case fantasy.StreamPartTypeError:
		if part.Error == nil {
			return proto.Fragment{}, false, errors.New("model stream failed")
		}
		return proto.Fragment{}, false, part.Error
	case fantasy.StreamPartTypeWarnings:
		t.warn(part.Warnings)
		return proto.Fragment{}, false, nil
	default:
		return proto.Fragment{}, false, nil
	}
}

func (t *turn) warn(warnings []fantasy.CallWarning) {
	for _, warning := range warnings {
		text := strings.TrimSpace(warning.Message)
		if text == "" {
			text = strings.TrimSpace(warning.Details)
		}
		if text == "" && warning.Setting != "" {
			text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
		}
		if text == "" {
			text = "provider warning"
		}
		key := string(warning.Type) + ":" + text
		if _, exists := t.warningSeen[key]; exists {
			continue
		}
		t.warningSeen[key] = struct{}{}
		t.logger.Warn("model warning", "warning", text)
	}
}
