package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	StoreBackendFile    = "file"
	StoreBackendKeyring = "keyring"
	StoreBackendSQL     = "sql"

	DefaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
	DefaultDriveBaseURL   = "https://www.googleapis.com/drive/v3"
	DriveScope            = "https://www.googleapis.com/auth/drive"
)

type CredentialsConfig struct {
	SkewWindowMS     int64 `koanf:"skew_window_ms" mapstructure:"skew_window_ms"`
	RefreshTimeoutMS int64 `koanf:"refresh_timeout_ms" mapstructure:"refresh_timeout_ms"`
}

type RetryConfig struct {
	MaxAttempts      int   `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int64 `koanf:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int64 `koanf:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

type OAuthConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	TokenURL     string   `koanf:"token_url" mapstructure:"token_url"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
	RefreshToken string   `koanf:"refresh_token" mapstructure:"refresh_token"`
}

type DriveConfig struct {
	BaseURL           string  `koanf:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `koanf:"burst" mapstructure:"burst"`
	TimeoutMS         int64   `koanf:"timeout_ms" mapstructure:"timeout_ms"`
}

type StoreConfig struct {
	Backend        string `koanf:"backend" mapstructure:"backend"`
	Path           string `koanf:"path" mapstructure:"path"`
	KeyringService string `koanf:"keyring_service" mapstructure:"keyring_service"`
	Account        string `koanf:"account" mapstructure:"account"`
	Driver         string `koanf:"driver" mapstructure:"driver"`
	DSN            string `koanf:"dsn" mapstructure:"dsn"`
	CacheTTLMS     int64  `koanf:"cache_ttl_ms" mapstructure:"cache_ttl_ms"`
	SealKey        string `koanf:"seal_key" mapstructure:"seal_key"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Credentials CredentialsConfig `koanf:"credentials" mapstructure:"credentials"`
	Retry       RetryConfig       `koanf:"retry" mapstructure:"retry"`
	OAuth       OAuthConfig       `koanf:"oauth" mapstructure:"oauth"`
	Drive       DriveConfig       `koanf:"drive" mapstructure:"drive"`
	Store       StoreConfig       `koanf:"store" mapstructure:"store"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "drive-gateway",
		Credentials: CredentialsConfig{
			SkewWindowMS:     DefaultCredentialSkewWindow.Milliseconds(),
			RefreshTimeoutMS: DefaultCredentialRefreshTimeout.Milliseconds(),
		},
		Retry: RetryConfig{
			MaxAttempts:      DefaultRetryMaxAttempts,
			InitialBackoffMS: DefaultRetryInitialBackoff.Milliseconds(),
			MaxBackoffMS:     DefaultRetryMaxBackoff.Milliseconds(),
		},
		OAuth: OAuthConfig{
			TokenURL: DefaultGoogleTokenURL,
			Scopes:   []string{DriveScope},
		},
		Drive: DriveConfig{
			BaseURL:           DefaultDriveBaseURL,
			RequestsPerSecond: 10,
			Burst:             10,
			TimeoutMS:         30000,
		},
		Store: StoreConfig{
			Backend:        StoreBackendFile,
			Path:           "token.json",
			KeyringService: "drive-gateway",
			Account:        "default",
			Driver:         "sqlite3",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Credentials.SkewWindowMS < 0 {
		return fmt.Errorf("core: credentials.skew_window_ms must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must not be negative")
	}
	if c.Drive.RequestsPerSecond < 0 {
		return fmt.Errorf("core: drive.requests_per_second must not be negative")
	}
	switch strings.TrimSpace(c.Store.Backend) {
	case StoreBackendFile:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("core: store.path is required for the file backend")
		}
	case StoreBackendKeyring:
		if strings.TrimSpace(c.Store.KeyringService) == "" || strings.TrimSpace(c.Store.Account) == "" {
			return fmt.Errorf("core: store.keyring_service and store.account are required for the keyring backend")
		}
	case StoreBackendSQL:
		if strings.TrimSpace(c.Store.DSN) == "" || strings.TrimSpace(c.Store.Account) == "" {
			return fmt.Errorf("core: store.dsn and store.account are required for the sql backend")
		}
	default:
		return fmt.Errorf("core: unsupported store.backend %q", c.Store.Backend)
	}
	return nil
}

func (c CredentialsConfig) SkewWindow() time.Duration {
	return time.Duration(c.SkewWindowMS) * time.Millisecond
}

func (c CredentialsConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutMS) * time.Millisecond
}

func (c RetryConfig) Policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffMS) * time.Millisecond,
	}
}

func (c DriveConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c StoreConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMS) * time.Millisecond
}
