// Package mcp discovers and calls tools on configured MCP servers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/errs"
)

// Service provides access to MCP server discovery and tool execution.
//
// Clients are started lazily, kept for the lifetime of the service and shut
// down by Close.
type Service struct {
	cfg    config.Settings
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client.Client
}

// New creates a new MCP service.
func New(cfg config.Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		logger:  logger.With("component", "mcp"),
		clients: map[string]*client.Client{},
	}
}

// IsEnabled reports whether the named MCP server is enabled.
func (s *Service) IsEnabled(name string) bool {
	return !slices.Contains(s.cfg.MCPDisable, "*") &&
		!slices.Contains(s.cfg.MCPDisable, name)
}

// EnabledServers iterates enabled MCP servers in stable order.
func (s *Service) EnabledServers() iter.Seq2[string, config.MCPServerConfig] {
	return func(yield func(string, config.MCPServerConfig) bool) {
		for _, name := range slices.Sorted(maps.Keys(s.cfg.MCPServers)) {
			if !s.IsEnabled(name) {
				continue
			}
			if !yield(name, s.cfg.MCPServers[name]) {
				return
			}
		}
	}
}

// Tools returns tools grouped by server name.
func (s *Service) Tools(ctx context.Context) (map[string][]mcp.Tool, error) {
	if s.cfg.MCPTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MCPTimeout)
		defer cancel()
	}

	var mu sync.Mutex
	wg, gctx := errgroup.WithContext(ctx)
	result := map[string][]mcp.Tool{}
	for sname, server := range s.EnabledServers() {
		wg.Go(func() error {
			serverTools, err := s.toolsFor(gctx, sname, server)
			if errors.Is(err, context.DeadlineExceeded) {
				return errs.Wrap(
					fmt.Errorf("timeout while listing tools for %q - make sure the configuration is correct. If your server requires a docker container, make sure it's running", sname),
					"Could not list tools",
				)
			}
			if err != nil {
				return errs.Wrap(err, "Could not list tools")
			}
			s.logger.Debug("mcp tools listed", "server", sname, "tools", len(serverTools))
			mu.Lock()
			result[sname] = append(result[sname], serverTools...)
			mu.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("mcp tools: %w", err)
	}
	return result, nil
}

// CallTool executes tool on the configured server sname.
func (s *Service) CallTool(ctx context.Context, sname, tool string, data []byte) (string, error) {
	if tool == "" {
		return "", fmt.Errorf("mcp: empty tool name for server %q", sname)
	}
	server, ok := s.cfg.MCPServers[sname]
	if !ok {
		return "", fmt.Errorf("mcp: invalid server name: %q", sname)
	}
	if !s.IsEnabled(sname) {
		return "", fmt.Errorf("mcp: server is disabled: %q", sname)
	}

	var args map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &args); err != nil {
			return "", fmt.Errorf("mcp: %w: %s", err, string(data))
		}
	}

	cli, err := s.client(ctx, sname, server)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args
	result, err := cli.CallTool(ctx, request)
	if err != nil {
		s.drop(sname, cli)
		return "", fmt.Errorf("mcp: %w", err)
	}

	out := contentText(result.Content)
	if result.IsError {
		return "", errors.New(out)
	}
	return out, nil
}

func contentText(contents []mcp.Content) string {
	var sb strings.Builder
	for _, content := range contents {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}
	return sb.String()
}

// Close shuts down every started client.
func (s *Service) Close() error {
	s.mu.Lock()
	clients := s.clients
	s.clients = map[string]*client.Client{}
	s.mu.Unlock()

	var errList []error
	for name, cli := range clients {
		if err := cli.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errList...)
}

func (s *Service) client(ctx context.Context, name string, server config.MCPServerConfig) (*client.Client, error) {
	s.mu.Lock()
	cli, ok := s.clients[name]
	s.mu.Unlock()
	if ok {
		return cli, nil
	}

	cli, err := initClient(ctx, s.cfg, server)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.clients[name]; ok {
		_ = cli.Close()
		return existing, nil
	}
	s.clients[name] = cli
	s.logger.Debug("mcp client started", "server", name, "type", server.Type)
	return cli, nil
}

// drop forgets a client after a failed call so the next call reconnects.
func (s *Service) drop(name string, cli *client.Client) {
	s.mu.Lock()
	if s.clients[name] == cli {
		delete(s.clients, name)
	}
	s.mu.Unlock()
	_ = cli.Close()
}

func initClient(ctx context.Context, cfg config.Settings, server config.MCPServerConfig) (*client.Client, error) {
	var cli *client.Client
	var err error

	switch server.Type {
	case "", "stdio":
		env := server.Env
		if !cfg.MCPNoInheritEnv {
			env = append(os.Environ(), server.Env...)
		}
		cli, err = client.NewStdioMCPClient(
			server.Command,
			env,
			server.Args...,
		)
	case "sse":
		cli, err = client.NewSSEMCPClient(server.URL)
	case "http":
		cli, err = client.NewStreamableHttpClient(server.URL)
	default:
		return nil, fmt.Errorf("unsupported MCP server type: %q, supported types are: stdio, sse, http", server.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	// the transport outlives the call that started it
	if err := cli.Start(context.WithoutCancel(ctx)); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	if _, err := cli.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return cli, nil
}

func (s *Service) toolsFor(ctx context.Context, name string, server config.MCPServerConfig) ([]mcp.Tool, error) {
	cli, err := s.client(ctx, name, server)
	if err != nil {
		return nil, fmt.Errorf("could not setup %s: %w", name, err)
	}

	tools, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		s.drop(name, cli)
		return nil, fmt.Errorf("could not setup %s: %w", name, err)
	}
	return tools.Tools, nil
}
