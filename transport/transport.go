// Package transport executes HTTP requests for the Drive client and reports
// failures as go-errors values tagged with gateway text codes.
package transport

import (
	"context"
	"time"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// Query values are sent verbatim. Page tokens depend on it.
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Success reports a 2xx status.
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Adapter interface {
	Kind() string
	Do(ctx context.Context, req Request) (Response, error)
}
