// Package tokenstore provides durable client-side storage for the access
// and refresh tokens of a StartupVista session.
//
// Tokens are opaque bearer strings; no expiry tracking or encryption happens
// here. They are trusted only after successful server validation.
package tokenstore

import "sync"

// Well-known field names for the persisted credentials. These match the
// storage keys used by the web client so tooling can share a vocabulary.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refreshToken"
)

// Credentials holds the persisted token pair. The zero value is the
// "absent" sentinel.
type Credentials struct {
	AccessToken  string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Present reports whether any credential is stored.
func (c Credentials) Present() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// Store persists the token pair. Reads are synchronous and never fail; a
// missing or unreadable backing store reads as absent.
type Store interface {
	// Get returns the current credentials, or the zero value if absent.
	Get() Credentials
	// Set writes both tokens. Subsequent Gets reflect the new values
	// immediately.
	Set(c Credentials) error
	// Clear removes both tokens. Idempotent.
	Clear() error
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu    sync.Mutex
	creds Credentials
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Get returns the current credentials.
func (m *MemStore) Get() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// Set replaces the stored credentials.
func (m *MemStore) Set(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = c
	return nil
}

// Clear removes the stored credentials.
func (m *MemStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	return nil
}
