// Package filestore keeps the gateway credential in a JSON file guarded by
// an advisory lock so concurrent processes never interleave writes.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/goliatone/go-drive-gateway/core"
)

const (
	DefaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 10 * time.Millisecond
	fileMode           = 0o600
	dirMode            = 0o700
)

type Option func(*Store)

func WithCodec(codec core.CredentialCodec) Option {
	return func(s *Store) {
		if codec != nil {
			s.codec = codec
		}
	}
}

func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.lockTimeout = timeout
		}
	}
}

type Store struct {
	path        string
	codec       core.CredentialCodec
	lockTimeout time.Duration
}

func New(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("filestore: path is required")
	}
	store := &Store{
		path:        filepath.Clean(path),
		codec:       core.JSONCredentialCodec{},
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

func (s *Store) Load(ctx context.Context) (core.Credential, error) {
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return core.Credential{}, err
	}
	defer unlock()

	payload, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	if err != nil {
		return core.Credential{}, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	credential, err := s.codec.Decode(payload)
	if err != nil {
		return core.Credential{}, fmt.Errorf("filestore: %s: %w", s.path, err)
	}
	return credential, nil
}

// Save replaces the file atomically: temp file in the same directory, fsync,
// chmod 0600, rename.
func (s *Store) Save(ctx context.Context, credential core.Credential) error {
	payload, err := s.codec.Encode(credential)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("filestore: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, fileMode); err != nil {
		return fmt.Errorf("filestore: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("filestore: rename temp file: %w", err)
	}
	committed = true
	return nil
}

// lock takes the exclusive lock for writes and the shared lock for reads.
func (s *Store) lock(ctx context.Context, exclusive bool) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.lockPath())
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = fl.TryLockContext(lockCtx, lockRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(lockCtx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: acquire lock %s: %w", s.lockPath(), err)
	}
	if !locked {
		return nil, fmt.Errorf("filestore: lock %s is held by another process", s.lockPath())
	}
	return func() { _ = fl.Unlock() }, nil
}

var _ core.CredentialStore = (*Store)(nil)
