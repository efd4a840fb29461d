// Package cachedstore adds a read-through cache in front of any credential
// store. Saves go to the base store first and then evict the cached entry.
package cachedstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-drive-gateway/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-drive-gateway::credential::v1"

type Store struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
	key   string
}

func New(base core.CredentialStore, cacheService repositorycache.CacheService, account string) (*Store, error) {
	if base == nil {
		return nil, fmt.Errorf("cachedstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("cachedstore: cache service is required")
	}
	key, err := CredentialCacheKey(account)
	if err != nil {
		return nil, err
	}
	return &Store{base: base, cache: cacheService, key: key}, nil
}

// CredentialCacheKey returns go-drive-gateway::credential::v1::<account>
// with the account URL-path escaped.
func CredentialCacheKey(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", fmt.Errorf("cachedstore: account is required")
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(account), nil
}

func (s *Store) Load(ctx context.Context) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("cachedstore: store is not configured")
	}
	credential, err := repositorycache.GetOrFetch(ctx, s.cache, s.key, func(ctx context.Context) (core.Credential, error) {
		fetched, fetchErr := s.base.Load(ctx)
		if fetchErr != nil {
			return core.Credential{}, fetchErr
		}
		return fetched.Clone(), nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return credential.Clone(), nil
}

func (s *Store) Save(ctx context.Context, credential core.Credential) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("cachedstore: store is not configured")
	}
	if err := s.base.Save(ctx, credential); err != nil {
		return err
	}
	return s.cache.Delete(ctx, s.key)
}

var _ core.CredentialStore = (*Store)(nil)
