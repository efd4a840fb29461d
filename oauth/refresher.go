// Package oauth refreshes Google OAuth2 access tokens with the refresh token
// grant.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-drive-gateway/core"
	"golang.org/x/oauth2"
)

const errorCodeInvalidGrant = "invalid_grant"

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

func ConfigFrom(cfg core.OAuthConfig) Config {
	return Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       append([]string(nil), cfg.Scopes...),
	}
}

type Refresher struct {
	config     oauth2.Config
	httpClient *http.Client
}

type Option func(*Refresher)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Refresher) {
		r.httpClient = client
	}
}

func NewRefresher(cfg Config, opts ...Option) (*Refresher, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("oauth: client id is required")
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = core.DefaultGoogleTokenURL
	}
	refresher := &Refresher{
		config: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: append([]string(nil), cfg.Scopes...),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(refresher)
		}
	}
	return refresher, nil
}

// Refresh exchanges the refresh token for a new access token. The refresh
// token is kept when the provider does not rotate it.
func (r *Refresher) Refresh(ctx context.Context, credential core.Credential) (core.Credential, error) {
	if r == nil {
		return core.Credential{}, fmt.Errorf("oauth: refresher is nil")
	}
	refreshToken := strings.TrimSpace(credential.RefreshToken)
	if refreshToken == "" {
		return core.Credential{}, core.NewKindError(core.KindAuthError, "oauth: refresh token is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	token, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return core.Credential{}, mapTokenError(err)
	}

	refreshed := core.Credential{
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		TokenType:    strings.TrimSpace(token.TokenType),
		Scopes:       credential.Scopes,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}
	if !token.Expiry.IsZero() {
		refreshed.ExpiryEpochMs = token.Expiry.UnixMilli()
	}
	if scope, ok := token.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		refreshed.Scopes = strings.Fields(scope)
	}
	return refreshed, nil
}

// mapTokenError keeps the token endpoint's own failure reason in metadata.
// A 5xx is transient; invalid_grant and every other 4xx are auth failures.
func mapTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return core.WrapKindError(err, core.KindTransient, "oauth: token request failed")
	}
	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	code := strings.TrimSpace(retrieveErr.ErrorCode)

	var mapped *goerrors.Error
	switch {
	case code == errorCodeInvalidGrant:
		mapped = core.WrapKindError(err, core.KindAuthError, "oauth: refresh token was revoked or expired")
	case status == http.StatusTooManyRequests:
		mapped = core.WrapKindError(err, core.KindRateLimited, "oauth: token endpoint rate limited")
	case status >= http.StatusInternalServerError:
		mapped = core.WrapKindError(err, core.KindTransient, "oauth: token endpoint unavailable")
	default:
		mapped = core.WrapKindError(err, core.KindAuthError, "oauth: token refresh rejected")
	}
	metadata := map[string]any{"status_code": status}
	if code != "" {
		metadata["error_code"] = code
	}
	if description := strings.TrimSpace(retrieveErr.ErrorDescription); description != "" {
		metadata["error_description"] = description
	}
	mapped.WithMetadata(metadata)
	return mapped
}

var _ core.TokenRefresher = (*Refresher)(nil)
