// Package keyringstore keeps the gateway credential in the operating system
// keychain.
package keyringstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-drive-gateway/core"
	"github.com/zalando/go-keyring"
)

type Store struct {
	service string
	account string
	codec   core.CredentialCodec
}

func New(service string, account string) (*Store, error) {
	service = strings.TrimSpace(service)
	account = strings.TrimSpace(account)
	if service == "" || account == "" {
		return nil, fmt.Errorf("keyringstore: service and account are required")
	}
	return &Store{service: service, account: account, codec: core.JSONCredentialCodec{}}, nil
}

func (s *Store) key() string {
	return "gateway::" + s.account
}

func (s *Store) Load(context.Context) (core.Credential, error) {
	data, err := keyring.Get(s.service, s.key())
	if errors.Is(err, keyring.ErrNotFound) {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	if err != nil {
		return core.Credential{}, fmt.Errorf("keyringstore: get: %w", err)
	}
	credential, err := s.codec.Decode([]byte(data))
	if err != nil {
		return core.Credential{}, fmt.Errorf("keyringstore: %w", err)
	}
	return credential, nil
}

func (s *Store) Save(_ context.Context, credential core.Credential) error {
	payload, err := s.codec.Encode(credential)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.service, s.key(), string(payload)); err != nil {
		return fmt.Errorf("keyringstore: set: %w", err)
	}
	return nil
}

// Delete removes the stored credential. A missing entry is not an error.
func (s *Store) Delete(context.Context) error {
	err := keyring.Delete(s.service, s.key())
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyringstore: delete: %w", err)
	}
	return nil
}

var _ core.CredentialStore = (*Store)(nil)
