// Package sqlstore keeps versioned gateway credentials in a SQL database
// through bun. Every Save appends a new version and revokes the previous
// active row in the same transaction.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-drive-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sealer protects credential payloads at rest.
type Sealer interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, sealed []byte) ([]byte, error)
	KeyID() string
	Version() int
}

type Option func(*Store)

func WithSealer(sealer Sealer) Option {
	return func(s *Store) {
		if sealer != nil {
			s.sealer = sealer
		}
	}
}

func WithCodec(codec core.CredentialCodec) Option {
	return func(s *Store) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// VersionInfo describes a stored credential version without its payload.
type VersionInfo struct {
	Version          int        `json:"version"`
	Status           string     `json:"status"`
	Sealed           bool       `json:"sealed"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

type Store struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	account string
	codec   core.CredentialCodec
	sealer  Sealer
	now     func() time.Time
}

// New accepts a *bun.DB or anything exposing DB() *bun.DB, such as a
// go-persistence-bun client.
func New(persistenceClient any, account string, opts ...Option) (*Store, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, fmt.Errorf("sqlstore: account is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	store := &Store{
		db:      db,
		repo:    repo,
		account: account,
		codec:   core.JSONCredentialCodec{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *Store) Account() string {
	return s.account
}

func (s *Store) Load(ctx context.Context) (core.Credential, error) {
	record, err := s.active(ctx)
	if err != nil {
		return core.Credential{}, err
	}
	if record == nil {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	return s.decode(ctx, record)
}

func (s *Store) Save(ctx context.Context, credential core.Credential) error {
	record, err := s.encode(ctx, credential)
	if err != nil {
		return err
	}
	now := s.now()
	record.CreatedAt = now
	record.UpdatedAt = now

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		version, err := s.nextVersion(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("status = ?", statusRevoked).
			Set("revocation_reason = ?", revocationRotated).
			Set("updated_at = ?", now).
			Where("account = ?", s.account).
			Where("status = ?", statusActive).
			Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: revoke active credential: %w", err)
		}
		record.Version = version
		if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
			return fmt.Errorf("sqlstore: insert credential version %d: %w", version, err)
		}
		return nil
	})
}

// Revoke marks the active version revoked so Load reports not found.
func (s *Store) Revoke(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = statusRevoked
	}
	_, err := s.db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("status = ?", statusRevoked).
		Set("revocation_reason = ?", reason).
		Set("updated_at = ?", s.now()).
		Where("account = ?", s.account).
		Where("status = ?", statusActive).
		Exec(ctx)
	return err
}

// History lists every stored version, newest first.
func (s *Store) History(ctx context.Context) ([]VersionInfo, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("account", "=", s.account),
		repository.OrderBy("version DESC"),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list credential versions: %w", err)
	}
	out := make([]VersionInfo, 0, len(records))
	for _, record := range records {
		out = append(out, VersionInfo{
			Version:          record.Version,
			Status:           record.Status,
			Sealed:           strings.TrimSpace(record.KeyID) != "",
			ExpiresAt:        record.ExpiresAt,
			RevocationReason: record.RevocationReason,
			CreatedAt:        record.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) active(ctx context.Context) (*credentialRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("account", "=", s.account),
		repository.SelectBy("status", "=", statusActive),
		repository.OrderBy("version DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load active credential: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *Store) nextVersion(ctx context.Context, tx bun.Tx) (int, error) {
	var maxVersion int
	if err := tx.NewSelect().
		Model((*credentialRecord)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Where("?TableAlias.account = ?", s.account).
		Scan(ctx, &maxVersion); err != nil {
		return 0, fmt.Errorf("sqlstore: next credential version: %w", err)
	}
	return maxVersion + 1, nil
}

func (s *Store) encode(ctx context.Context, credential core.Credential) (*credentialRecord, error) {
	payload, err := s.codec.Encode(credential)
	if err != nil {
		return nil, err
	}
	record := &credentialRecord{
		ID:             uuid.NewString(),
		Account:        s.account,
		PayloadFormat:  s.codec.Format(),
		PayloadVersion: s.codec.Version(),
		TokenType:      credential.TokenType,
		Scopes:         append([]string{}, credential.Scopes...),
		Status:         statusActive,
	}
	if expiresAt := credential.ExpiresAt(); !expiresAt.IsZero() {
		record.ExpiresAt = &expiresAt
	}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: seal credential payload: %w", err)
		}
		payload = sealed
		record.KeyID = s.sealer.KeyID()
		record.KeyVersion = s.sealer.Version()
	}
	record.Payload = payload
	return record, nil
}

func (s *Store) decode(ctx context.Context, record *credentialRecord) (core.Credential, error) {
	if record.PayloadFormat != s.codec.Format() {
		return core.Credential{}, fmt.Errorf("sqlstore: unsupported payload format %q", record.PayloadFormat)
	}
	payload := record.Payload
	if strings.TrimSpace(record.KeyID) != "" {
		if s.sealer == nil {
			return core.Credential{}, fmt.Errorf("sqlstore: credential version %d is sealed but no sealer is configured", record.Version)
		}
		opened, err := s.sealer.Open(ctx, payload)
		if err != nil {
			return core.Credential{}, fmt.Errorf("sqlstore: open credential version %d: %w", record.Version, err)
		}
		payload = opened
	}
	return s.codec.Decode(payload)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var _ core.CredentialStore = (*Store)(nil)
