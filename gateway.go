// Package gateway assembles the Drive dispatch gateway from a core.Config:
// credential store, token refresher, lifecycle manager, operation registry
// and dispatcher.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gojob "github.com/goliatone/go-drive-gateway/adapters/gojob"
	"github.com/goliatone/go-drive-gateway/core"
	"github.com/goliatone/go-drive-gateway/drive"
	"github.com/goliatone/go-drive-gateway/oauth"
	"github.com/goliatone/go-drive-gateway/security"
	cachedstore "github.com/goliatone/go-drive-gateway/store/cached"
	filestore "github.com/goliatone/go-drive-gateway/store/file"
	keyringstore "github.com/goliatone/go-drive-gateway/store/keyring"
	sqlstore "github.com/goliatone/go-drive-gateway/store/sql"
	"github.com/goliatone/go-job/queue"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Option func(*options)

type options struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	httpClient     *http.Client
	store          core.CredentialStore
	refresher      core.TokenRefresher
	hasRefresher   bool
}

func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *options) {
		o.loggerProvider = provider
	}
}

func WithMetrics(recorder core.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = recorder
	}
}

// WithHTTPClient is used for both the Drive API and the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithStore skips the configured store backend.
func WithStore(store core.CredentialStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRefresher replaces the OAuth refresher. A nil refresher disables
// refresh entirely.
func WithRefresher(refresher core.TokenRefresher) Option {
	return func(o *options) {
		o.refresher = refresher
		o.hasRefresher = true
	}
}

type Gateway struct {
	config     core.Config
	store      core.CredentialStore
	manager    *core.Manager
	registry   *core.Registry
	dispatcher *core.Dispatcher
	logger     core.Logger
	closers    []func() error
}

func New(ctx context.Context, cfg core.Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resolved := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}

	gw := &Gateway{config: cfg, logger: resolved.logger}
	store := resolved.store
	if store == nil {
		opened, closers, err := OpenStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		store = opened
		gw.closers = closers
	}
	gw.store = store

	refresher := resolved.refresher
	if !resolved.hasRefresher {
		built, err := newRefresher(cfg.OAuth, resolved.httpClient)
		if err != nil {
			_ = gw.Close()
			return nil, err
		}
		refresher = built
	}

	manager, err := core.NewManager(store, refresher,
		core.WithSkewWindow(cfg.Credentials.SkewWindow()),
		core.WithRefreshTimeout(cfg.Credentials.RefreshTimeout()),
		core.WithManagerLogger(resolved.logger),
		core.WithManagerLoggerProvider(resolved.loggerProvider),
		core.WithManagerMetrics(resolved.metrics),
	)
	if err != nil {
		_ = gw.Close()
		return nil, err
	}
	if err := manager.Load(ctx); err != nil {
		_ = gw.Close()
		return nil, err
	}
	if token := strings.TrimSpace(cfg.OAuth.RefreshToken); token != "" {
		manager.Prime(core.Credential{RefreshToken: token, Scopes: append([]string(nil), cfg.OAuth.Scopes...)})
	}
	gw.manager = manager

	clientOpts := []drive.ClientOption{}
	if resolved.httpClient != nil {
		clientOpts = append(clientOpts, drive.WithHTTPClient(resolved.httpClient))
	}
	registry, err := drive.NewRegistry(drive.NewClient(drive.ClientConfigFrom(cfg.Drive), clientOpts...))
	if err != nil {
		_ = gw.Close()
		return nil, err
	}
	gw.registry = registry

	dispatcher, err := core.NewDispatcher(registry, manager,
		core.WithRetryPolicy(cfg.Retry.Policy()),
		core.WithDispatcherLogger(resolved.logger),
		core.WithDispatcherLoggerProvider(resolved.loggerProvider),
		core.WithDispatcherMetrics(resolved.metrics),
	)
	if err != nil {
		_ = gw.Close()
		return nil, err
	}
	gw.dispatcher = dispatcher
	return gw, nil
}

// OpenStore builds the configured credential store. The returned closers
// release backend resources and run on Gateway.Close.
func OpenStore(ctx context.Context, cfg core.StoreConfig) (core.CredentialStore, []func() error, error) {
	var (
		store   core.CredentialStore
		closers []func() error
		err     error
	)
	switch strings.TrimSpace(cfg.Backend) {
	case core.StoreBackendFile:
		store, err = filestore.New(cfg.Path)
	case core.StoreBackendKeyring:
		store, err = keyringstore.New(cfg.KeyringService, cfg.Account)
	case core.StoreBackendSQL:
		sqlOpts := []sqlstore.Option{}
		if strings.TrimSpace(cfg.SealKey) != "" {
			sealer, sealErr := security.NewSealerFromString(cfg.SealKey)
			if sealErr != nil {
				return nil, nil, fmt.Errorf("gateway: sealer: %w", sealErr)
			}
			sqlOpts = append(sqlOpts, sqlstore.WithSealer(sealer))
		}
		var closeDB func() error
		store, closeDB, err = sqlstore.Open(ctx, cfg, sqlOpts...)
		if closeDB != nil {
			closers = append(closers, closeDB)
		}
	default:
		err = fmt.Errorf("gateway: unsupported store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	if ttl := cfg.CacheTTL(); ttl > 0 {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = ttl
		service, cacheErr := repositorycache.NewCacheService(cacheConfig)
		if cacheErr != nil {
			return nil, nil, errors.Join(fmt.Errorf("gateway: cache service: %w", cacheErr), closeAll(closers))
		}
		cached, cacheErr := cachedstore.New(store, service, cfg.Account)
		if cacheErr != nil {
			return nil, nil, errors.Join(cacheErr, closeAll(closers))
		}
		store = cached
	}
	return store, closers, nil
}

func newRefresher(cfg core.OAuthConfig, httpClient *http.Client) (core.TokenRefresher, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, nil
	}
	opts := []oauth.Option{}
	if httpClient != nil {
		opts = append(opts, oauth.WithHTTPClient(httpClient))
	}
	refresher, err := oauth.NewRefresher(oauth.ConfigFrom(cfg), opts...)
	if err != nil {
		return nil, err
	}
	return refresher, nil
}

func (g *Gateway) Config() core.Config {
	return g.config
}

func (g *Gateway) Dispatch(ctx context.Context, name string, args core.Args) core.Envelope {
	return g.dispatcher.Dispatch(ctx, name, args)
}

func (g *Gateway) Invoke(ctx context.Context, call core.InboundCall) core.Envelope {
	return g.dispatcher.Invoke(ctx, call)
}

// Summaries lists the catalog in registration order.
func (g *Gateway) Summaries() []core.OperationSummary {
	return g.registry.Summaries()
}

func (g *Gateway) State() core.CredentialState {
	return g.manager.State()
}

func (g *Gateway) Refresh(ctx context.Context) (core.Credential, error) {
	return g.manager.Refresh(ctx)
}

// RefreshScheduler enqueues proactive refreshes of the gateway credential on
// a go-job queue owned by the host.
func (g *Gateway) RefreshScheduler(enqueuer queue.Enqueuer) *gojob.RefreshScheduler {
	return gojob.NewRefreshScheduler(enqueuer, g.manager)
}

// RefreshJob handles refresh deliveries for the gateway credential. Token
// endpoint outages are requeued; rejected grants are dead lettered.
func (g *Gateway) RefreshJob(opts ...gojob.JobOption) *gojob.RefreshJob {
	jobOpts := append([]gojob.JobOption{gojob.WithLogger(g.logger)}, opts...)
	return gojob.NewRefreshJob(g.manager, jobOpts...)
}

// RefreshWorkerHook logs go-job worker events for refresh jobs.
func (g *Gateway) RefreshWorkerHook() *gojob.WorkerHookAdapter {
	return gojob.NewWorkerHookAdapter(g.logger)
}

func (g *Gateway) Store() core.CredentialStore {
	return g.store
}

func (g *Gateway) Manager() *core.Manager {
	return g.manager
}

func (g *Gateway) Registry() *core.Registry {
	return g.registry
}

func (g *Gateway) Dispatcher() *core.Dispatcher {
	return g.dispatcher
}

func (g *Gateway) Close() error {
	if g == nil {
		return nil
	}
	closers := g.closers
	g.closers = nil
	return closeAll(closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
