package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type envKind int

const (
	envString envKind = iota
	envInt
	envFloat
	envList
)

type envBinding struct {
	names []string
	path  []string
	kind  envKind
}

var envBindings = []envBinding{
	{names: []string{"DRIVEGW_SERVICE_NAME"}, path: []string{"service_name"}},
	{names: []string{"DRIVEGW_CREDENTIALS_SKEW_WINDOW_MS"}, path: []string{"credentials", "skew_window_ms"}, kind: envInt},
	{names: []string{"DRIVEGW_CREDENTIALS_REFRESH_TIMEOUT_MS"}, path: []string{"credentials", "refresh_timeout_ms"}, kind: envInt},
	{names: []string{"DRIVEGW_RETRY_MAX_ATTEMPTS"}, path: []string{"retry", "max_attempts"}, kind: envInt},
	{names: []string{"DRIVEGW_RETRY_INITIAL_BACKOFF_MS"}, path: []string{"retry", "initial_backoff_ms"}, kind: envInt},
	{names: []string{"DRIVEGW_RETRY_MAX_BACKOFF_MS"}, path: []string{"retry", "max_backoff_ms"}, kind: envInt},
	{names: []string{"DRIVEGW_OAUTH_CLIENT_ID", "GOOGLE_CLIENT_ID"}, path: []string{"oauth", "client_id"}},
	{names: []string{"DRIVEGW_OAUTH_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"}, path: []string{"oauth", "client_secret"}},
	{names: []string{"DRIVEGW_OAUTH_TOKEN_URL"}, path: []string{"oauth", "token_url"}},
	{names: []string{"DRIVEGW_OAUTH_SCOPES"}, path: []string{"oauth", "scopes"}, kind: envList},
	{names: []string{"DRIVEGW_OAUTH_REFRESH_TOKEN", "GOOGLE_REFRESH_TOKEN"}, path: []string{"oauth", "refresh_token"}},
	{names: []string{"DRIVEGW_DRIVE_BASE_URL"}, path: []string{"drive", "base_url"}},
	{names: []string{"DRIVEGW_DRIVE_REQUESTS_PER_SECOND"}, path: []string{"drive", "requests_per_second"}, kind: envFloat},
	{names: []string{"DRIVEGW_DRIVE_BURST"}, path: []string{"drive", "burst"}, kind: envInt},
	{names: []string{"DRIVEGW_DRIVE_TIMEOUT_MS"}, path: []string{"drive", "timeout_ms"}, kind: envInt},
	{names: []string{"DRIVEGW_STORE_BACKEND"}, path: []string{"store", "backend"}},
	{names: []string{"DRIVEGW_STORE_PATH"}, path: []string{"store", "path"}},
	{names: []string{"DRIVEGW_STORE_KEYRING_SERVICE"}, path: []string{"store", "keyring_service"}},
	{names: []string{"DRIVEGW_STORE_ACCOUNT"}, path: []string{"store", "account"}},
	{names: []string{"DRIVEGW_STORE_DRIVER"}, path: []string{"store", "driver"}},
	{names: []string{"DRIVEGW_STORE_DSN"}, path: []string{"store", "dsn"}},
	{names: []string{"DRIVEGW_STORE_CACHE_TTL_MS"}, path: []string{"store", "cache_ttl_ms"}, kind: envInt},
	{names: []string{"DRIVEGW_STORE_SEAL_KEY"}, path: []string{"store", "seal_key"}},
}

// EnvRawConfigLoader reads DRIVEGW_* variables, plus the GOOGLE_* aliases,
// into the nested raw map consumed by cfgx.
type EnvRawConfigLoader struct {
	Lookup func(key string) (string, bool)
}

func (l EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := firstEnv(lookup, binding.names)
		if !ok {
			continue
		}
		parsed, err := parseEnvValue(binding.kind, value)
		if err != nil {
			return nil, fmt.Errorf("core: env %s: %w", binding.names[0], err)
		}
		setPath(raw, binding.path, parsed)
	}
	return raw, nil
}

func firstEnv(lookup func(string) (string, bool), names []string) (string, bool) {
	for _, name := range names {
		if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func parseEnvValue(kind envKind, value string) (any, error) {
	switch kind {
	case envInt:
		return strconv.ParseInt(value, 10, 64)
	case envFloat:
		return strconv.ParseFloat(value, 64)
	case envList:
		parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
		out := make([]any, 0, len(parts))
		for _, part := range parts {
			out = append(out, part)
		}
		return out, nil
	default:
		return value, nil
	}
}

func setPath(raw map[string]any, path []string, value any) {
	current := raw
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < config < runtime overrides.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), configToLayerMap(defaults, true), opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), configToLayerMap(loaded, false), opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), configToLayerMap(runtime, false), opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: build config layers: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: merge config layers: %w", err)
	}
	return cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// LoadConfig resolves the effective configuration: defaults, then the raw
// loader, then runtime overrides such as CLI flags.
func LoadConfig(ctx context.Context, loader RawConfigLoader, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	loaded, err := NewCfgxConfigProvider(loader).Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	credentials := map[string]any{}
	putInt(credentials, "skew_window_ms", cfg.Credentials.SkewWindowMS, includeZero)
	putInt(credentials, "refresh_timeout_ms", cfg.Credentials.RefreshTimeoutMS, includeZero)
	putSection(layer, "credentials", credentials)

	retry := map[string]any{}
	putInt(retry, "max_attempts", int64(cfg.Retry.MaxAttempts), includeZero)
	putInt(retry, "initial_backoff_ms", cfg.Retry.InitialBackoffMS, includeZero)
	putInt(retry, "max_backoff_ms", cfg.Retry.MaxBackoffMS, includeZero)
	putSection(layer, "retry", retry)

	oauth := map[string]any{}
	putString(oauth, "client_id", cfg.OAuth.ClientID, includeZero)
	putString(oauth, "client_secret", cfg.OAuth.ClientSecret, includeZero)
	putString(oauth, "token_url", cfg.OAuth.TokenURL, includeZero)
	putString(oauth, "refresh_token", cfg.OAuth.RefreshToken, includeZero)
	if includeZero || len(cfg.OAuth.Scopes) > 0 {
		oauth["scopes"] = append([]string(nil), cfg.OAuth.Scopes...)
	}
	putSection(layer, "oauth", oauth)

	drive := map[string]any{}
	putString(drive, "base_url", cfg.Drive.BaseURL, includeZero)
	if includeZero || cfg.Drive.RequestsPerSecond != 0 {
		drive["requests_per_second"] = cfg.Drive.RequestsPerSecond
	}
	putInt(drive, "burst", int64(cfg.Drive.Burst), includeZero)
	putInt(drive, "timeout_ms", cfg.Drive.TimeoutMS, includeZero)
	putSection(layer, "drive", drive)

	store := map[string]any{}
	putString(store, "backend", cfg.Store.Backend, includeZero)
	putString(store, "path", cfg.Store.Path, includeZero)
	putString(store, "keyring_service", cfg.Store.KeyringService, includeZero)
	putString(store, "account", cfg.Store.Account, includeZero)
	putString(store, "driver", cfg.Store.Driver, includeZero)
	putString(store, "dsn", cfg.Store.DSN, includeZero)
	putInt(store, "cache_ttl_ms", cfg.Store.CacheTTLMS, includeZero)
	putString(store, "seal_key", cfg.Store.SealKey, includeZero)
	putSection(layer, "store", store)
	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int64, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
