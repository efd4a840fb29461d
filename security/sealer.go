// Package security seals credential payloads at rest.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	EnvelopePrefix   = "gateway.secret.v1:"
	DefaultKeyID     = "gateway-key"
	sealingAlgorithm = "aes-256-gcm"
)

type Option func(*Sealer)

// Sealer encrypts payloads with AES-GCM under a single key. The key id and
// version travel in the envelope so rotated keys are rejected explicitly.
type Sealer struct {
	key     []byte
	keyID   string
	version int
}

type sealedEnvelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func WithKeyID(id string) Option {
	return func(s *Sealer) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			s.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(s *Sealer) {
		if version > 0 {
			s.version = version
		}
	}
}

// NewSealer accepts raw AES key material (16, 24 or 32 bytes) or any
// passphrase, which is stretched to 32 bytes with SHA-256.
func NewSealer(keyMaterial []byte, opts ...Option) (*Sealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	sealer := &Sealer{
		key:     normalizeKey(key),
		keyID:   DefaultKeyID,
		version: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sealer)
		}
	}
	return sealer, nil
}

func NewSealerFromString(key string, opts ...Option) (*Sealer, error) {
	return NewSealer([]byte(key), opts...)
}

func (s *Sealer) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	data, err := json.Marshal(sealedEnvelope{
		KeyID:      s.keyID,
		Version:    s.version,
		Algorithm:  sealingAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(EnvelopePrefix), data...), nil
}

func (s *Sealer) Open(_ context.Context, sealed []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	if !IsSealed(sealed) {
		return nil, fmt.Errorf("security: payload is not a sealed envelope")
	}

	var parsed sealedEnvelope
	if err := json.Unmarshal(sealed[len(EnvelopePrefix):], &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.KeyID != s.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, s.keyID)
	}
	if parsed.Version != s.version {
		return nil, fmt.Errorf("security: key version mismatch: got %d want %d", parsed.Version, s.version)
	}
	if parsed.Algorithm != sealingAlgorithm {
		return nil, fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext: %w", err)
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("security: open payload: %w", err)
	}
	return plaintext, nil
}

func (s *Sealer) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *Sealer) Version() int {
	if s == nil {
		return 0
	}
	return s.version
}

// IsSealed reports whether payload carries the sealed envelope prefix.
func IsSealed(payload []byte) bool {
	return bytes.HasPrefix(payload, []byte(EnvelopePrefix))
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	switch len(value) {
	case 16, 24, 32:
		return bytes.Clone(value)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}
