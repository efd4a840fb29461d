package sqlstore

import (
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	statusActive  = "active"
	statusRevoked = "revoked"

	revocationRotated = "rotated"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:gateway_credentials,alias:gc"`

	ID               string     `bun:"id,pk"`
	Account          string     `bun:"account,notnull"`
	Version          int        `bun:"version,notnull"`
	Payload          []byte     `bun:"payload,notnull"`
	PayloadFormat    string     `bun:"payload_format,notnull"`
	PayloadVersion   int        `bun:"payload_version,notnull"`
	TokenType        string     `bun:"token_type,notnull"`
	Scopes           []string   `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt        *time.Time `bun:"expires_at,nullzero"`
	Status           string     `bun:"status,notnull"`
	KeyID            string     `bun:"key_id,notnull"`
	KeyVersion       int        `bun:"key_version,notnull"`
	RevocationReason string     `bun:"revocation_reason,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) recordID() uuid.UUID {
	if r == nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(strings.TrimSpace(r.ID))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// credentialHandlers identifies rows by their string uuid so sqlite and
// postgres share one model.
func credentialHandlers() repository.ModelHandlers[*credentialRecord] {
	return repository.ModelHandlers[*credentialRecord]{
		NewRecord: func() *credentialRecord { return &credentialRecord{} },
		GetID:     (*credentialRecord).recordID,
		SetID: func(r *credentialRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id.String()
			}
		},
		GetIdentifier: func() string { return "id" },
		GetIdentifierValue: func(r *credentialRecord) string {
			if r == nil {
				return ""
			}
			return r.recordID().String()
		},
	}
}
