package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	KindJSON = "json"

	DefaultClientTimeout    = 30 * time.Second
	DefaultMaxResponseBytes = 10 << 20
)

// errResponseTooLarge marks a body over the cap. Retrying cannot shrink it.
var errResponseTooLarge = errors.New("transport: response body too large")

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type AdapterOption func(*JSONAdapter)

// WithMaxResponseBytes caps response bodies. Requests may lower or raise it
// through Request.MaxResponseBodyBytes.
func WithMaxResponseBytes(limit int64) AdapterOption {
	return func(a *JSONAdapter) {
		if limit > 0 {
			a.maxResponseBytes = limit
		}
	}
}

func WithUserAgent(userAgent string) AdapterOption {
	return func(a *JSONAdapter) {
		a.userAgent = strings.TrimSpace(userAgent)
	}
}

// JSONAdapter sends JSON requests and returns raw responses. Non-2xx statuses
// are not errors here; the Drive client parses them.
type JSONAdapter struct {
	client           HTTPDoer
	maxResponseBytes int64
	userAgent        string
}

func NewJSONAdapter(client HTTPDoer, opts ...AdapterOption) *JSONAdapter {
	if client == nil {
		client = &http.Client{Timeout: DefaultClientTimeout}
	}
	adapter := &JSONAdapter{
		client:           client,
		maxResponseBytes: DefaultMaxResponseBytes,
		userAgent:        "go-drive-gateway",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

func (*JSONAdapter) Kind() string {
	return KindJSON
}

func (a *JSONAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.client == nil {
		return Response{}, internalFailure(nil, "transport: json adapter requires an http client", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	meta := map[string]any{"method": httpReq.Method, "path": httpReq.URL.Path}

	startedAt := time.Now()
	httpRes, err := a.client.Do(httpReq)
	if err != nil {
		return Response{}, networkFailure(err, "transport: execute http request", meta)
	}
	defer httpRes.Body.Close()

	limit := a.maxResponseBytes
	if req.MaxResponseBodyBytes > 0 {
		limit = req.MaxResponseBodyBytes
	}
	meta["status_code"] = httpRes.StatusCode
	body, err := readLimited(httpRes.Body, limit)
	if errors.Is(err, errResponseTooLarge) {
		meta["max_response_bytes"] = limit
		return Response{}, internalFailure(err, "transport: response body exceeds limit", meta)
	}
	if err != nil {
		return Response{}, networkFailure(err, "transport: read response body", meta)
	}

	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    joinHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindJSON,
		},
	}, nil
}

func (a *JSONAdapter) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, internalFailure(nil, "transport: request url is required", nil)
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, internalFailure(err, "transport: invalid request url", map[string]any{"url": rawURL})
	}
	if len(req.Query) > 0 {
		values := target.Query()
		for key, value := range req.Query {
			if key = strings.TrimSpace(key); key != "" {
				values.Set(key, value)
			}
		}
		target.RawQuery = values.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, internalFailure(err, "transport: build http request", map[string]any{"method": method})
	}

	httpReq.Header.Set("Accept", "application/json")
	if a.userAgent != "" {
		httpReq.Header.Set("User-Agent", a.userAgent)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		if key = strings.TrimSpace(key); key != "" {
			httpReq.Header.Set(key, strings.TrimSpace(value))
		}
	}
	return httpReq, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", errResponseTooLarge, limit)
	}
	return payload, nil
}

// joinHeaders keeps the first-level header view the Drive error parser
// needs, e.g. Retry-After.
func joinHeaders(headers http.Header) map[string]string {
	joined := make(map[string]string, len(headers))
	for key, values := range headers {
		joined[key] = strings.Join(values, ",")
	}
	return joined
}

var _ Adapter = (*JSONAdapter)(nil)
