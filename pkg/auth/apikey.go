package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRevokedAPIKey = errors.New("API key has been revoked")
	ErrExpiredAPIKey = errors.New("API key has expired")
)

// APIKey describes a registered key. The key itself is never stored.
type APIKey struct {
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// APIKeyManager checks keys against their SHA-256 digests
type APIKeyManager struct {
	keys map[string]*APIKey // digest -> key info
	mu   sync.RWMutex
}

func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{keys: make(map[string]*APIKey)}
}

// GenerateKey returns a fresh random key suitable for API_KEYS
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return "sk_" + base64.RawURLEncoding.EncodeToString(b), nil
}

func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Register accepts key for userID until it expires or is revoked
func (m *APIKeyManager) Register(key, userID, name string, expiresAt *time.Time) *APIKey {
	info := &APIKey{UserID: userID, Name: name, CreatedAt: time.Now(), ExpiresAt: expiresAt}

	m.mu.Lock()
	m.keys[digest(key)] = info
	m.mu.Unlock()
	return info
}

// Verify returns the key info or one of the ErrXxxAPIKey errors
func (m *APIKeyManager) Verify(key string) (*APIKey, error) {
	if key == "" {
		return nil, ErrInvalidAPIKey
	}

	m.mu.RLock()
	info, ok := m.keys[digest(key)]
	m.mu.RUnlock()

	switch {
	case !ok:
		return nil, ErrInvalidAPIKey
	case info.Revoked:
		return nil, ErrRevokedAPIKey
	case info.ExpiresAt != nil && time.Now().After(*info.ExpiresAt):
		return nil, ErrExpiredAPIKey
	}
	cp := *info
	return &cp, nil
}

// Revoke disables key
func (m *APIKeyManager) Revoke(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.keys[digest(key)]
	if !ok {
		return fmt.Errorf("API key not found")
	}
	info.Revoked = true
	return nil
}

// Count returns the number of keys that are not revoked
func (m *APIKeyManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, info := range m.keys {
		if !info.Revoked {
			n++
		}
	}
	return n
}
