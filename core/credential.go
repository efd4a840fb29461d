package core

import (
	"context"
	"strings"
	"time"
)

const DefaultCredentialSkewWindow = 60 * time.Second

// Credential is the OAuth2 token set held for the gateway's account.
// ExpiryEpochMs of zero means the expiry is unknown.
type Credential struct {
	AccessToken   string   `json:"accessToken,omitempty"`
	RefreshToken  string   `json:"refreshToken,omitempty"`
	ExpiryEpochMs int64    `json:"expiryEpochMs,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	TokenType     string   `json:"tokenType,omitempty"`
}

type CredentialStore interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, credential Credential) error
}

type TokenRefresher interface {
	Refresh(ctx context.Context, credential Credential) (Credential, error)
}

// CredentialState is a token-free view of a credential for queries and logs.
type CredentialState struct {
	HasAccessToken  bool       `json:"hasAccessToken"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	Expired         bool       `json:"expired"`
	NeedsRefresh    bool       `json:"needsRefresh"`
	Scopes          []string   `json:"scopes,omitempty"`
}

func (c Credential) HasAccessToken() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

func (c Credential) HasRefreshToken() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

// ExpiresAt returns the zero time when the expiry is unknown.
func (c Credential) ExpiresAt() time.Time {
	if c.ExpiryEpochMs <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiryEpochMs).UTC()
}

func (c Credential) Expired(now time.Time) bool {
	if c.ExpiryEpochMs <= 0 {
		return false
	}
	return !now.Before(c.ExpiresAt())
}

// Fresh holds when the access token is present and now < expiry - skew.
func (c Credential) Fresh(now time.Time, skew time.Duration) bool {
	if !c.HasAccessToken() {
		return false
	}
	if c.ExpiryEpochMs <= 0 {
		return true
	}
	return now.Before(c.ExpiresAt().Add(-skew))
}

func (c Credential) HasScope(scope string) bool {
	scope = strings.TrimSpace(scope)
	for _, granted := range c.Scopes {
		if strings.TrimSpace(granted) == scope {
			return true
		}
	}
	return false
}

func (c Credential) State(now time.Time, skew time.Duration) CredentialState {
	state := CredentialState{
		HasAccessToken:  c.HasAccessToken(),
		HasRefreshToken: c.HasRefreshToken(),
		Expired:         c.HasAccessToken() && c.Expired(now),
		Scopes:          append([]string(nil), c.Scopes...),
	}
	if expiresAt := c.ExpiresAt(); !expiresAt.IsZero() {
		state.ExpiresAt = &expiresAt
	}
	state.NeedsRefresh = !c.Fresh(now, skew)
	return state
}

// WithRefreshed merges a refresh result: a provider that does not rotate the
// refresh token keeps the old one, and omitted scopes keep the granted set.
func (c Credential) WithRefreshed(next Credential) Credential {
	out := next
	if !out.HasRefreshToken() {
		out.RefreshToken = c.RefreshToken
	}
	if len(out.Scopes) == 0 {
		out.Scopes = append([]string(nil), c.Scopes...)
	}
	if strings.TrimSpace(out.TokenType) == "" {
		out.TokenType = c.TokenType
	}
	return out
}

func (c Credential) Clone() Credential {
	out := c
	out.Scopes = append([]string(nil), c.Scopes...)
	return out
}
