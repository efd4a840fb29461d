package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-drive-gateway/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

func newFakeGoogle(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil || r.Form.Get("refresh_token") != "refresh-1" {
			t.Errorf("unexpected token request %v (%v)", r.Form, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"scope":"https://www.googleapis.com/auth/drive"}`))
	})
	mux.HandleFunc("/drive/v3/about", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"bad token"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"displayName":"Ada"}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &tokenCalls
}

func testConfig(t *testing.T, server *httptest.Server) core.Config {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.OAuth.ClientID = "client-1"
	cfg.OAuth.ClientSecret = "secret-1"
	cfg.OAuth.TokenURL = server.URL + "/token"
	cfg.OAuth.RefreshToken = "refresh-1"
	cfg.Drive.BaseURL = server.URL + "/drive/v3"
	cfg.Drive.RequestsPerSecond = 0
	cfg.Store.Path = filepath.Join(t.TempDir(), "token.json")
	return cfg
}

func TestGateway_DispatchRefreshesAndPersists(t *testing.T) {
	server, tokenCalls := newFakeGoogle(t)
	cfg := testConfig(t, server)
	ctx := context.Background()

	gw, err := New(ctx, cfg, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	if state := gw.State(); !state.HasRefreshToken || state.HasAccessToken {
		t.Fatalf("expected primed refresh token only, got %#v", state)
	}

	envelope := gw.Dispatch(ctx, "drive_about_get", core.Args{})
	if !envelope.IsSuccess() {
		t.Fatalf("expected success, got %#v", envelope)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok || data["user"] == nil {
		t.Fatalf("unexpected about payload %#v", envelope.Data)
	}

	second := gw.Invoke(ctx, core.InboundCall{OperationName: "drive_about_get"})
	if !second.IsSuccess() {
		t.Fatalf("expected second call to succeed, got %#v", second)
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("expected one token exchange, got %d", tokenCalls.Load())
	}

	stored, err := gw.Store().Load(ctx)
	if err != nil {
		t.Fatalf("load stored credential: %v", err)
	}
	if stored.AccessToken != "access-1" || stored.RefreshToken != "refresh-1" {
		t.Fatalf("expected refreshed credential persisted, got %#v", stored)
	}
}

func TestGateway_StoredCredentialWinsOverConfiguredToken(t *testing.T) {
	server, _ := newFakeGoogle(t)
	cfg := testConfig(t, server)
	ctx := context.Background()

	store, closers, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("expected no closers for the file backend, got %d", len(closers))
	}
	if err := store.Save(ctx, core.Credential{RefreshToken: "stored-refresh"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	gw, err := New(ctx, cfg, WithStore(store), WithRefresher(nil))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if gw.Manager().Prime(core.Credential{RefreshToken: "other"}) {
		t.Fatalf("expected stored credential to block priming")
	}
	if _, err := gw.Refresh(ctx); core.KindOf(err) != core.KindAuthError {
		t.Fatalf("expected auth error without a refresher, got %v", err)
	}
}

func TestGateway_Catalog(t *testing.T) {
	server, _ := newFakeGoogle(t)
	gw, err := New(context.Background(), testConfig(t, server))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	summaries := gw.Summaries()
	if len(summaries) != gw.Registry().Len() || summaries[0].Name != "drive_about_get" {
		t.Fatalf("unexpected catalog %#v", summaries)
	}
	if gw.Dispatcher().Registry() != gw.Registry() {
		t.Fatalf("expected dispatcher to share the registry")
	}
}

func TestGateway_UnknownOperationIsEnvelope(t *testing.T) {
	server, _ := newFakeGoogle(t)
	gw, err := New(context.Background(), testConfig(t, server))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	envelope := gw.Dispatch(context.Background(), "drive_nope", nil)
	if envelope.IsSuccess() || envelope.Kind() != core.KindUnknownOperation {
		t.Fatalf("expected unknown operation envelope, got %#v", envelope)
	}
}

func TestOpenStore_SQLWithSealAndCache(t *testing.T) {
	ctx := context.Background()
	cfg := core.DefaultConfig().Store
	cfg.Backend = core.StoreBackendSQL
	cfg.DSN = "file:gateway-facade?mode=memory&cache=shared"
	cfg.SealKey = "seal-key"
	cfg.CacheTTLMS = 60000

	store, closers, err := OpenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("open sql store: %v", err)
	}
	t.Cleanup(func() { _ = closeAll(closers) })
	if len(closers) != 1 {
		t.Fatalf("expected database closer, got %d", len(closers))
	}
	if err := store.Save(ctx, core.Credential{RefreshToken: "r1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil || loaded.RefreshToken != "r1" {
		t.Fatalf("expected sealed round trip, got %#v (%v)", loaded, err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Store.Backend = "s3"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected invalid backend to fail")
	}
}

func TestGateway_RefreshJobThroughQueue(t *testing.T) {
	server, tokenCalls := newFakeGoogle(t)
	ctx := context.Background()
	gw, err := New(ctx, testConfig(t, server), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	q := &memoryQueue{}
	if err := gw.RefreshScheduler(q).Schedule(ctx); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := gw.RefreshJob().Consume(ctx, q, 1); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(q.acked) != 1 || tokenCalls.Load() != 1 {
		t.Fatalf("expected one acked refresh, got acked=%d token calls=%d", len(q.acked), tokenCalls.Load())
	}
	if !gw.State().HasAccessToken {
		t.Fatalf("expected refreshed access token")
	}
	if gw.RefreshWorkerHook() == nil {
		t.Fatalf("expected worker hook for refresh jobs")
	}
}

func TestGateway_RefreshJobRequeuesTokenEndpointOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"backend_error"}`))
	}))
	t.Cleanup(server.Close)
	ctx := context.Background()
	gw, err := New(ctx, testConfig(t, server), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	q := &memoryQueue{}
	if err := gw.RefreshScheduler(q).Schedule(ctx); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := gw.RefreshJob().Consume(ctx, q, 1); core.CauseKind(err) != core.KindTransient {
		t.Fatalf("expected Transient cause, got %v", err)
	}
	if len(q.nacked) != 1 || !q.nacked[0].Requeue || q.nacked[0].DeadLetter {
		t.Fatalf("expected requeue for token endpoint outage, got %#v", q.nacked)
	}
}

type memoryQueue struct {
	pending []*job.ExecutionMessage
	acked   []*job.ExecutionMessage
	nacked  []queue.NackOptions
}

func (q *memoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.pending = append(q.pending, msg)
	return nil
}

func (q *memoryQueue) Dequeue(context.Context) (queue.Delivery, error) {
	if len(q.pending) == 0 {
		return nil, core.NewKindError(core.KindNotFound, "queue is empty")
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return &memoryDelivery{queue: q, msg: msg}, nil
}

type memoryDelivery struct {
	queue *memoryQueue
	msg   *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.acked = append(d.queue.acked, d.msg)
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.queue.nacked = append(d.queue.nacked, opts)
	return nil
}
