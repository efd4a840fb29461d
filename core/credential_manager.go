package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCredentialRefreshTimeout = 30 * time.Second
	refreshFlightKey                = "credential.refresh"
)

type ManagerOption func(*Manager)

func WithSkewWindow(skew time.Duration) ManagerOption {
	return func(m *Manager) {
		if skew >= 0 {
			m.skew = skew
		}
	}
}

func WithRefreshTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.refreshTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithManagerLoggerProvider(provider LoggerProvider) ManagerOption {
	return func(m *Manager) {
		m.loggerProvider = provider
	}
}

func WithManagerMetrics(recorder MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		m.metrics = recorder
	}
}

// Manager owns the gateway credential. It hands out fresh access tokens and
// collapses concurrent refreshes into a single provider call.
type Manager struct {
	store          CredentialStore
	refresher      TokenRefresher
	skew           time.Duration
	refreshTimeout time.Duration
	now            func() time.Time

	logger         Logger
	loggerProvider LoggerProvider
	metrics        MetricsRecorder
	obs            observer

	mu      sync.RWMutex
	current Credential
	group   singleflight.Group
}

func NewManager(store CredentialStore, refresher TokenRefresher, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}
	m := &Manager{
		store:          store,
		refresher:      refresher,
		skew:           DefaultCredentialSkewWindow,
		refreshTimeout: DefaultCredentialRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	m.obs = newObserver("gateway.credentials", m.loggerProvider, m.logger, m.metrics)
	return m, nil
}

// Load reads the stored credential. An empty store leaves the manager empty.
func (m *Manager) Load(ctx context.Context) error {
	if m == nil || m.store == nil {
		return NewInternalError("core: credential manager is not configured")
	}
	credential, err := m.store.Load(ctx)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil
	}
	if err != nil {
		return WrapKindError(err, KindAuthError, "core: load credential")
	}
	m.set(credential)
	return nil
}

// Prime installs credential when nothing has been loaded, e.g. a refresh
// token supplied through configuration.
func (m *Manager) Prime(credential Credential) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.HasAccessToken() || m.current.HasRefreshToken() {
		return false
	}
	m.current = credential.Clone()
	return true
}

func (m *Manager) State() CredentialState {
	if m == nil {
		return CredentialState{NeedsRefresh: true}
	}
	return m.snapshot().State(m.now(), m.skew)
}

// EnsureValid returns a credential whose access token is valid for at least
// the skew window, refreshing it when needed.
func (m *Manager) EnsureValid(ctx context.Context) (Credential, error) {
	if m == nil {
		return Credential{}, NewKindError(KindAuthError, "no credential")
	}
	current := m.snapshot()
	now := m.now()
	if current.Fresh(now, m.skew) {
		return current, nil
	}
	if !current.HasRefreshToken() {
		if current.HasAccessToken() && !current.Expired(now) {
			return current, nil
		}
		return Credential{}, NewKindError(KindAuthError, "no credential")
	}
	return m.refreshShared(ctx, false)
}

// Refresh forces a token refresh through the shared in-flight slot.
func (m *Manager) Refresh(ctx context.Context) (Credential, error) {
	if m == nil {
		return Credential{}, NewKindError(KindAuthError, "no credential")
	}
	if !m.snapshot().HasRefreshToken() {
		return Credential{}, NewKindError(KindAuthError, "no refresh token available")
	}
	return m.refreshShared(ctx, true)
}

func (m *Manager) refreshShared(ctx context.Context, force bool) (Credential, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(refreshFlightKey, func() (any, error) {
		return m.runRefresh(detached, force)
	})
	select {
	case <-ctx.Done():
		return Credential{}, WrapKindError(ctx.Err(), KindAuthError, "credential refresh wait cancelled")
	case result := <-ch:
		if result.Err != nil {
			return Credential{}, result.Err
		}
		credential, _ := result.Val.(Credential)
		return credential.Clone(), nil
	}
}

func (m *Manager) runRefresh(ctx context.Context, force bool) (Credential, error) {
	startedAt := time.Now()
	current := m.snapshot()
	if !force && current.Fresh(m.now(), m.skew) {
		return current, nil
	}
	fields := map[string]any{
		"forced":      force,
		"had_access":  current.HasAccessToken(),
		"scope_count": len(current.Scopes),
	}
	if m.refresher == nil {
		err := NewKindError(KindAuthError, "credential refresh is not configured")
		m.obs.observe(ctx, startedAt, "credential_refresh", "", err, fields)
		return Credential{}, err
	}

	refreshCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()
	next, err := m.refresher.Refresh(refreshCtx, current.Clone())
	if err != nil {
		authErr := WrapKindError(err, KindAuthError, fmt.Sprintf("credential refresh failed: %v", err))
		authErr.WithMetadata(map[string]any{metaCauseKind: string(KindOf(err))})
		fields["cause_kind"] = string(KindOf(err))
		m.obs.observe(ctx, startedAt, "credential_refresh", "", authErr, fields)
		return Credential{}, authErr
	}
	merged := current.WithRefreshed(next)
	if !merged.HasAccessToken() {
		authErr := NewKindError(KindAuthError, "credential refresh returned no access token")
		m.obs.observe(ctx, startedAt, "credential_refresh", "", authErr, fields)
		return Credential{}, authErr
	}

	m.set(merged)
	if saveErr := m.store.Save(ctx, merged); saveErr != nil {
		m.obs.observe(ctx, startedAt, "credential_persist", "", saveErr, fields)
	}
	fields["expires_at"] = merged.ExpiresAt()
	m.obs.observe(ctx, startedAt, "credential_refresh", "", nil, fields)
	return merged, nil
}

func (m *Manager) snapshot() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

func (m *Manager) set(credential Credential) {
	m.mu.Lock()
	m.current = credential.Clone()
	m.mu.Unlock()
}

var (
	_ CredentialProvider    = (*Manager)(nil)
	_ CredentialRefresher   = (*Manager)(nil)
	_ CredentialStateReader = (*Manager)(nil)
)
