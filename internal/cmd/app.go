package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/dotcommander/threadline/internal/agent"
	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/fantasybridge"
	"github.com/dotcommander/threadline/internal/mcp"
	"github.com/dotcommander/threadline/internal/storage"
	"github.com/dotcommander/threadline/internal/tools"
)

// app is the in-process agent stack.
type app struct {
	store   storage.Store
	tools   *tools.Registry
	mcp     *mcp.Service
	service *agent.Service
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	httpClient, err := fantasybridge.ProxyClient(cfg.HTTPProxy)
	if err != nil {
		return nil, err
	}

	a.store, err = storage.Open(cfg.Store, logger)
	if err != nil {
		return nil, errs.Wrapf(err, "Could not open the %s store.", cfg.Store.Driver)
	}

	a.tools, a.mcp, err = buildTools(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	gateway, err := fantasybridge.FromConfig(ctx, cfg.Settings, logger)
	if err != nil {
		return nil, err
	}

	system, err := config.LoadPrompt(ctx, cfg.SystemPrompt)
	if err != nil {
		return nil, errs.Wrap(err, "Could not load the system prompt.")
	}

	loop := agent.NewLoop(gateway, a.tools, a.store, loopOptions(cfg, system), logger)
	a.service = agent.NewService(loop, logger)
	return a, nil
}

// Close releases the store and any MCP clients.
func (a *app) Close() error {
	var errList []error
	if a.mcp != nil {
		errList = append(errList, a.mcp.Close())
	}
	if a.store != nil {
		errList = append(errList, a.store.Close())
	}
	return errors.Join(errList...)
}

// buildTools registers the search tool and every enabled MCP tool, then
// freezes the registry. MCP discovery failures are logged and skipped.
func buildTools(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (*tools.Registry, *mcp.Service, error) {
	reg, err := tools.NewRegistry()
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Search.Disabled {
		if cfg.Search.APIKey == "" {
			return nil, nil, errs.Error{
				Err:    errs.UserErrorf("set TAVILY_API_KEY, search.api-key, or disable search with TAVILY_DISABLE=true"),
				Reason: "Missing the web search API key.",
			}
		}
		var client *http.Client
		if httpClient != nil {
			c := *httpClient
			c.Timeout = cfg.Search.Timeout
			client = &c
		}
		if err := reg.Register(tools.NewSearch(cfg.Search, client)); err != nil {
			return nil, nil, err
		}
	}

	var svc *mcp.Service
	if len(cfg.MCPServers) > 0 {
		svc = mcp.New(cfg.Settings, logger)
		// Tools applies mcp-timeout itself; zero disables it.
		n, err := tools.RegisterMCP(ctx, reg, svc)
		if err != nil {
			logger.Warn("mcp discovery failed", "error", err)
		} else {
			logger.Debug("mcp tools registered", "count", n)
		}
	}

	reg.Freeze()
	return reg, svc, nil
}

func loopOptions(cfg config.Config, system string) agent.Options {
	opts := agent.Options{
		Model:            cfg.Model.Name,
		System:           system,
		User:             cfg.Model.User,
		MaxIterations:    cfg.Agent.MaxIterations,
		ReportToolErrors: cfg.Agent.ToolErrors == config.ToolErrorsReport,
		ToolTimeout:      cfg.Agent.ToolTimeout,
		Tracer:           otel.Tracer("github.com/dotcommander/threadline/internal/agent"),
	}
	temp := cfg.Model.Temperature
	opts.Temperature = &temp
	if cfg.Model.MaxTokens > 0 {
		maxTokens := cfg.Model.MaxTokens
		opts.MaxTokens = &maxTokens
	}
	return opts
}
