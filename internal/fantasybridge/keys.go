package fantasybridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/errs"
)

type keySource struct {
	env      string
	docsURL  string
	required bool
}

var keySources = map[string]keySource{
	apiOpenAI:     {"OPENAI_API_KEY", "https://platform.openai.com/account/api-keys", true},
	apiAnthropic:  {"ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys", true},
	apiGoogle:     {"GOOGLE_API_KEY", "https://aistudio.google.com/app/apikey", true},
	apiOpenRouter: {"OPENROUTER_API_KEY", "https://openrouter.ai/keys", true},
	apiAzure:      {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", true},
	apiAzureAD:    {"AZURE_OPENAI_KEY", "https://aka.ms/oai/access", true},
	apiVercel:     {"VERCEL_API_KEY", "", false},
	apiBedrock:    {"AWS_BEARER_TOKEN_BEDROCK", "", false},
}

func keySourceFor(api string) keySource {
	if ks, ok := keySources[api]; ok {
		return ks
	}
	env := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(api)) + "_API_KEY"
	return keySource{env: env}
}

// ResolveAPIKey finds the key for the configured model API: api-key, then
// the api-key-env variable, then the output of api-key-cmd, then the
// provider's default environment variable.
func ResolveAPIKey(ctx context.Context, m config.Model) (string, error) {
	ks := keySourceFor(m.API)

	key := m.APIKey
	if key == "" && m.APIKeyEnv != "" && m.APIKeyCmd == "" {
		key = os.Getenv(m.APIKeyEnv)
	}
	if key == "" && m.APIKeyCmd != "" {
		args, err := shellwords.Parse(m.APIKeyCmd)
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		if len(args) == 0 {
			return "", errs.Error{Reason: "api-key-cmd is empty"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	if key == "" {
		key = os.Getenv(ks.env)
	}
	if key != "" || !ks.required {
		return key, nil
	}

	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or model.api-key in the settings file.", ks.env, ks.env),
		Err:    errs.UserErrorf("You can grab one at %s", ks.docsURL),
	}
}

// ProxyClient returns an HTTP client routed through httpProxy, or nil when no
// proxy is configured.
func ProxyClient(httpProxy string) (*http.Client, error) {
	if httpProxy == "" {
		return nil, nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return nil, errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	return &http.Client{Transport: tr}, nil
}

// FromConfig builds the gateway for the configured model.
func FromConfig(ctx context.Context, cfg config.Settings, logger *slog.Logger) (*Client, error) {
	key, err := ResolveAPIKey(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	httpClient, err := ProxyClient(cfg.HTTPProxy)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.Model.BaseURL
	if baseURL == "" && cfg.Model.API == apiOllama {
		baseURL = "http://localhost:11434/v1"
	}

	return New(Config{
		API:            cfg.Model.API,
		BaseURL:        baseURL,
		APIKey:         key,
		HTTPClient:     httpClient,
		ThinkingBudget: cfg.Model.ThinkingBudget,
	}, logger)
}
