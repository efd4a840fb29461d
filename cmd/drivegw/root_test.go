package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-drive-gateway/core"
)

func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"scope":"https://www.googleapis.com/auth/drive"}`))
	})
	mux.HandleFunc("/drive/v3/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"displayName":"Ada"}}`))
	})
	mux.HandleFunc("/drive/v3/files/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found: missing."}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func runCLI(t *testing.T, server *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	env := map[string]string{
		"DRIVEGW_OAUTH_CLIENT_ID":     "client-1",
		"DRIVEGW_OAUTH_TOKEN_URL":     server.URL + "/token",
		"DRIVEGW_OAUTH_REFRESH_TOKEN": "refresh-1",
		"DRIVEGW_DRIVE_BASE_URL":      server.URL + "/drive/v3",
	}
	var out, errOut bytes.Buffer
	a := newApp(strings.NewReader(stdin), &out, &errOut)
	a.lookup = func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
	t.Cleanup(func() { _ = a.close() })

	base := []string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--store-path", filepath.Join(t.TempDir(), "token.json")}
	cmd := newRootCmd(a)
	cmd.SetArgs(append(args, base...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOps_ListsCatalogWithSchemas(t *testing.T) {
	out, err := runCLI(t, fakeGoogle(t), "", "ops", "--prefix", "drive_permissions_")
	if err != nil {
		t.Fatalf("ops: %v", err)
	}
	var operations []core.OperationSummary
	if err := json.Unmarshal([]byte(out), &operations); err != nil {
		t.Fatalf("decode ops output: %v\n%s", err, out)
	}
	if len(operations) == 0 {
		t.Fatalf("expected permission operations")
	}
	for _, op := range operations {
		if !strings.HasPrefix(op.Name, "drive_permissions_") || op.InputSchema == nil {
			t.Fatalf("unexpected operation %#v", op)
		}
	}
}

func TestCall_PrintsEnvelope(t *testing.T) {
	out, err := runCLI(t, fakeGoogle(t), "", "call", "drive_about_get")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var envelope core.Envelope
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, out)
	}
	if !envelope.IsSuccess() {
		t.Fatalf("expected success, got %s", out)
	}
}

func TestCall_FailureSetsExitError(t *testing.T) {
	out, err := runCLI(t, fakeGoogle(t), "", "call", "drive_files_get", "--args", `{"fileId":"missing"}`)
	if !errors.Is(err, errCallFailed) {
		t.Fatalf("expected errCallFailed, got %v", err)
	}
	if !strings.Contains(out, `"errorKind": "NotFound"`) {
		t.Fatalf("expected NotFound envelope, got %s", out)
	}
}

func TestCall_RejectsMalformedArgs(t *testing.T) {
	if _, err := runCLI(t, fakeGoogle(t), "", "call", "drive_about_get", "--args", "[1,2]"); err == nil {
		t.Fatalf("expected malformed args to fail")
	}
}

func TestServe_AnswersEachLineByID(t *testing.T) {
	stdin := strings.Join([]string{
		`{"id":"1","operationName":"drive_about_get"}`,
		`{"id":"2","operationName":"drive_nope"}`,
		`not json`,
		`{"id":"4","operationName":"drive_files_get","arguments":{"fileId":"missing"}}`,
		"",
	}, "\n")
	out, err := runCLI(t, fakeGoogle(t), stdin, "serve", "--concurrency", "2")
	if err != nil {
		t.Fatalf("serve: %v", err)
	}

	results := map[string]core.Envelope{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var response struct {
			ID     string        `json:"id"`
			Result core.Envelope `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &response); err != nil {
			t.Fatalf("decode serve line %q: %v", line, err)
		}
		results[response.ID] = response.Result
	}
	if len(results) != 4 {
		t.Fatalf("expected four responses, got %d:\n%s", len(results), out)
	}
	if !results["1"].IsSuccess() {
		t.Fatalf("expected call 1 to succeed, got %#v", results["1"])
	}
	if results["2"].Kind() != core.KindUnknownOperation {
		t.Fatalf("expected UnknownOperation for call 2, got %#v", results["2"])
	}
	if results[""].Kind() != core.KindInvalidArgument {
		t.Fatalf("expected InvalidArgument for the malformed line, got %#v", results[""])
	}
	if results["4"].Kind() != core.KindNotFound {
		t.Fatalf("expected NotFound for call 4, got %#v", results["4"])
	}
}

func TestToken_StatusAndRefresh(t *testing.T) {
	server := fakeGoogle(t)
	out, err := runCLI(t, server, "", "token", "status")
	if err != nil {
		t.Fatalf("token status: %v", err)
	}
	var state core.CredentialState
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.HasRefreshToken || state.HasAccessToken || !state.NeedsRefresh {
		t.Fatalf("unexpected initial state %#v", state)
	}

	out, err = runCLI(t, server, "", "token", "refresh")
	if err != nil {
		t.Fatalf("token refresh: %v", err)
	}
	if strings.Contains(out, "access-1") || strings.Contains(out, "refresh-1") {
		t.Fatalf("token leaked into output: %s", out)
	}
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("decode refreshed state: %v", err)
	}
	if !state.HasAccessToken || state.NeedsRefresh {
		t.Fatalf("expected fresh state after refresh, got %#v", state)
	}
}
