package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// KeyPrefix identifies apigate API keys
	KeyPrefix = "apg_"
	// KeyLength is the number of random bytes (32 bytes = 256 bits)
	KeyLength = 32
)

// APIKey is the stored form of an API key. The plaintext key is never kept.
type APIKey struct {
	ID          string     `json:"id"`
	PrincipalID string     `json:"principal_id"`
	KeyHash     string     `json:"-"`
	KeyPrefix   string     `json:"key_prefix"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// KeyStore issues opaque API keys and introspects them. Keys are looked up
// by SHA-256 digest.
type KeyStore struct {
	mu     sync.RWMutex
	byHash map[string]*APIKey
	byID   map[string]*APIKey
	now    func() time.Time
}

// NewKeyStore creates an empty key store
func NewKeyStore() *KeyStore {
	return &KeyStore{
		byHash: make(map[string]*APIKey),
		byID:   make(map[string]*APIKey),
		now:    time.Now,
	}
}

// HashKey computes the SHA-256 digest of a key for lookup
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ValidateKeyFormat checks that key is KeyPrefix followed by base64url data
func ValidateKeyFormat(key string) error {
	if !strings.HasPrefix(key, KeyPrefix) {
		return fmt.Errorf("key must start with %q", KeyPrefix)
	}
	encoded := strings.TrimPrefix(key, KeyPrefix)
	if encoded == "" {
		return fmt.Errorf("key is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid key encoding: %w", err)
	}
	return nil
}

// Issue creates a key for principalID. The plaintext is returned once.
// Format: apg_<base64url(32 random bytes)>
func (ks *KeyStore) Issue(principalID string, scopes []string, expiresAt *time.Time) (string, *APIKey, error) {
	random := make([]byte, KeyLength)
	if _, err := rand.Read(random); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(random)
	plaintext := KeyPrefix + encoded

	key := &APIKey{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		KeyHash:     HashKey(plaintext),
		KeyPrefix:   KeyPrefix + encoded[:8],
		Scopes:      append([]string(nil), scopes...),
		ExpiresAt:   expiresAt,
		CreatedAt:   ks.now(),
	}

	ks.mu.Lock()
	ks.byHash[key.KeyHash] = key
	ks.byID[key.ID] = key
	ks.mu.Unlock()

	return plaintext, key, nil
}

// Revoke marks the key with id as revoked
func (ks *KeyStore) Revoke(id string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	key, ok := ks.byID[id]
	if !ok {
		return fmt.Errorf("api key %s not found", id)
	}
	now := ks.now()
	key.RevokedAt = &now
	return nil
}

// Introspect implements TokenIntrospector
func (ks *KeyStore) Introspect(_ context.Context, token string, _ []string) (*Principal, error) {
	if err := ValidateKeyFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	ks.mu.RLock()
	key, ok := ks.byHash[HashKey(token)]
	ks.mu.RUnlock()

	switch {
	case !ok:
		return nil, fmt.Errorf("%w: unknown key", ErrInvalidToken)
	case key.RevokedAt != nil:
		return nil, fmt.Errorf("%w: key revoked", ErrInvalidToken)
	case key.ExpiresAt != nil && !ks.now().Before(*key.ExpiresAt):
		return nil, fmt.Errorf("%w: key expired", ErrInvalidToken)
	}

	return &Principal{
		ID:     key.PrincipalID,
		Scopes: append([]string(nil), key.Scopes...),
		Claims: map[string]interface{}{"key_id": key.ID, "key_prefix": key.KeyPrefix},
	}, nil
}
