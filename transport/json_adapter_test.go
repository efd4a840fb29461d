package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-drive-gateway/core"
)

func TestJSONAdapter_SendsQueryVerbatimAndHeaders(t *testing.T) {
	token := " opaque token== "
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pageToken"); got != token {
			t.Errorf("expected verbatim page token, got %q", got)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer header, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Accept") != "application/json" || r.Header.Get("User-Agent") != "drive-test" {
			t.Errorf("unexpected default headers %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type for body %s", body)
		}
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter := NewJSONAdapter(server.Client(), WithUserAgent("drive-test"))
	res, err := adapter.Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     server.URL + "/files",
		Query:   map[string]string{"pageToken": token},
		Headers: map[string]string{"Authorization": "Bearer tok"},
		Body:    []byte(`{"name":"a"}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !res.Success() || string(res.Body) != `{"ok":true}` || res.Headers["X-Test"] != "1" {
		t.Fatalf("unexpected response %#v", res)
	}
}

func TestJSONAdapter_ResponseLimitIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewJSONAdapter(server.Client(), WithMaxResponseBytes(4))

	_, err := adapter.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.GatewayErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.GatewayErrorInternal, rich.TextCode)
	}
	if kind := core.KindOf(err); kind.Retryable() {
		t.Fatalf("expected oversized body to be non-retryable, got %q", kind)
	}
}

func TestJSONAdapter_NetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewJSONAdapter(nil).Do(context.Background(), Request{URL: url})
	if core.KindOf(err) != core.KindTransient {
		t.Fatalf("expected transient kind for connection failure, got %v", err)
	}
}

func TestJSONAdapter_NilReturnsInternalError(t *testing.T) {
	var adapter *JSONAdapter
	_, err := adapter.Do(context.Background(), Request{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.GatewayErrorInternal || rich.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected error %#v", rich)
	}
}

func TestJSONAdapter_RequestTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	_, err := NewJSONAdapter(server.Client()).Do(context.Background(), Request{URL: server.URL, Timeout: 20 * time.Millisecond})
	if core.KindOf(err) != core.KindTransient {
		t.Fatalf("expected transient kind for timeout, got %v", err)
	}
}

func TestJSONAdapter_MissingURLIsInternal(t *testing.T) {
	_, err := NewJSONAdapter(nil).Do(context.Background(), Request{URL: "  "})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.GatewayErrorInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}
