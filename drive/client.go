package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-drive-gateway/core"
	"github.com/goliatone/go-drive-gateway/transport"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

func ClientConfigFrom(cfg core.DriveConfig) ClientConfig {
	return ClientConfig{
		BaseURL:           cfg.BaseURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Timeout:           cfg.Timeout(),
	}
}

type ClientOption func(*Client)

// WithAdapter replaces the JSON REST adapter, e.g. with one bound to an
// httptest server client.
func WithAdapter(adapter transport.Adapter) ClientOption {
	return func(c *Client) {
		if adapter != nil {
			c.adapter = adapter
		}
	}
}

func WithHTTPClient(client transport.HTTPDoer) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.adapter = transport.NewJSONAdapter(client)
		}
	}
}

// Client issues authorized Drive v3 requests. A nil limiter disables
// client-side throttling.
type Client struct {
	baseURL string
	timeout time.Duration
	adapter transport.Adapter
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = core.DefaultDriveBaseURL
	}
	client := &Client{
		baseURL: baseURL,
		timeout: cfg.Timeout,
		adapter: transport.NewJSONAdapter(nil),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

type request struct {
	method string
	path   string
	query  map[string]string
	body   map[string]any
}

// do returns the decoded JSON object, or nil for an empty response body.
func (c *Client) do(ctx context.Context, credential core.Credential, req request) (map[string]any, error) {
	if c == nil || c.adapter == nil {
		return nil, goerrors.New("drive: client is not configured", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.GatewayErrorInternal)
	}
	if !credential.HasAccessToken() {
		return nil, core.NewKindError(core.KindAuthError, "drive: access token is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, core.WrapKindError(err, core.KindRateLimited, "drive: client rate limit wait")
		}
	}

	var payload []byte
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, core.WrapKindError(err, core.KindInvalidArgument, "drive: encode request body")
		}
		payload = encoded
	}
	tokenType := strings.TrimSpace(credential.TokenType)
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	res, err := c.adapter.Do(ctx, transport.Request{
		Method:  req.method,
		URL:     c.baseURL + req.path,
		Query:   req.query,
		Headers: map[string]string{"Authorization": tokenType + " " + credential.AccessToken},
		Body:    payload,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, core.ParseProviderError(res.StatusCode, res.Headers, res.Body)
	}
	if len(bytes.TrimSpace(res.Body)) == 0 {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "drive: decode response body").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.GatewayErrorUnknown)
	}
	return decoded, nil
}
