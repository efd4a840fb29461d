package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	CredentialPayloadFormatJSONV1 = "gateway_credential_json"
	CredentialPayloadVersionV1    = 1
)

type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential Credential) ([]byte, error)
	Decode(payload []byte) (Credential, error)
}

// JSONCredentialCodec writes the gateway's camelCase shape and also reads
// the snake_case token files produced by Google client libraries
// ("authorized_user" files and raw token responses).
type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

func (JSONCredentialCodec) Encode(credential Credential) ([]byte, error) {
	encoded, err := json.Marshal(credential.Clone())
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

type googleTokenFile struct {
	Type         string `json:"type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiryDate   int64  `json:"expiry_date"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

func (JSONCredentialCodec) Decode(payload []byte) (Credential, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return Credential{}, fmt.Errorf("core: credential payload is empty")
	}
	var credential Credential
	if err := json.Unmarshal(payload, &credential); err != nil {
		return Credential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	if credential.HasAccessToken() || credential.HasRefreshToken() {
		return credential, nil
	}

	var legacy googleTokenFile
	if err := json.Unmarshal(payload, &legacy); err != nil {
		return Credential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	credential = Credential{
		AccessToken:   strings.TrimSpace(legacy.AccessToken),
		RefreshToken:  strings.TrimSpace(legacy.RefreshToken),
		ExpiryEpochMs: legacy.ExpiryDate,
		Scopes:        strings.Fields(legacy.Scope),
		TokenType:     strings.TrimSpace(legacy.TokenType),
	}
	if !credential.HasAccessToken() && !credential.HasRefreshToken() {
		return Credential{}, fmt.Errorf("core: credential payload has no tokens")
	}
	return credential, nil
}

var _ CredentialCodec = JSONCredentialCodec{}
