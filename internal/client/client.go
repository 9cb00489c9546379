// Package client talks to a running threadline server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dotcommander/threadline/internal/agent"
	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/stream"
)

const maxErrorBody = 8 * 1024

// Client posts chat messages and decodes the event stream.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient uses a
// default one. Requests are traced with otelhttp.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	hc := *httpClient
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = otelhttp.NewTransport(base)
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &hc}
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(err, "Could not reach the server.")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// Run posts message to threadID and streams the decoded events. The channel
// always ends with exactly one terminal event and is then closed.
func (c *Client) Run(ctx context.Context, threadID, message string) (<-chan agent.Event, error) {
	body, err := json.Marshal(map[string]string{"thread_id": threadID, "message": message})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, "Could not reach the server.")
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, responseError(resp)
	}

	events := make(chan agent.Event, 16)
	go func() {
		defer close(events)
		defer func() { _ = resp.Body.Close() }()
		relay(ctx, stream.NewDecoder(resp.Body), events)
	}()
	return events, nil
}

func relay(ctx context.Context, dec *stream.Decoder, events chan<- agent.Event) {
	send := func(ev agent.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for rec, err := range dec.Records() {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			send(agent.Event{Kind: agent.EventError, Text: "Could not read the event stream.", Err: err})
			return
		}
		ev, ok := rec.Event()
		if !ok {
			continue
		}
		if !send(ev) || ev.Terminal() {
			return
		}
	}
	if ctx.Err() == nil {
		send(agent.Event{Kind: agent.EventError, Text: stream.UnexpectedEnd, Err: io.ErrUnexpectedEOF})
	}
}

func responseError(resp *http.Response) error {
	bts, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(bts))
	if json.Unmarshal(bts, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusBadRequest {
		return errs.Validation(msg)
	}
	return errs.Wrap(fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg), "The server rejected the request.")
}
