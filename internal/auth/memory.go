package auth

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryIdentityStore is an in-process IdentityStore for tests and
// single-node tooling. Stored values are copied on the way in and out.
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	now        func() time.Time
}

// NewMemoryIdentityStore creates an empty in-memory identity store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		identities: make(map[string]*Identity),
		now:        time.Now,
	}
}

// Create stores a copy of identity at version 1.
func (s *MemoryIdentityStore) Create(_ context.Context, identity *Identity) error {
	if !identity.Role.IsValid() {
		return fmt.Errorf("creating identity: unknown role %q", identity.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.Username]; exists {
		return ErrUsernameTaken
	}

	now := s.now().UTC()
	identity.Permissions = NormalizePermissions(identity.Permissions)
	identity.Version = 1
	identity.CreatedAt = now
	identity.UpdatedAt = now
	s.identities[identity.Username] = cloneIdentity(identity)
	return nil
}

// GetByUsername returns a copy of the stored identity.
func (s *MemoryIdentityStore) GetByUsername(_ context.Context, username string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[username]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return cloneIdentity(identity), nil
}

// UpdatePermissions is a compare-and-set on Version.
func (s *MemoryIdentityStore) UpdatePermissions(_ context.Context, username string, perms []string, expectedVersion int64) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[username]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	if identity.Version != expectedVersion {
		return nil, ErrConflict
	}

	identity.Permissions = NormalizePermissions(perms)
	identity.Version++
	identity.UpdatedAt = s.now().UTC()
	return cloneIdentity(identity), nil
}

// CountByRole returns the number of identities holding role.
func (s *MemoryIdentityStore) CountByRole(_ context.Context, role Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, identity := range s.identities {
		if identity.Role == role {
			count++
		}
	}
	return count, nil
}

func cloneIdentity(i *Identity) *Identity {
	c := *i
	c.Permissions = slices.Clone(i.Permissions)
	if c.Permissions == nil {
		c.Permissions = []string{}
	}
	return &c
}

// MemoryTokenStore is an in-process TokenStore. Rotate holds the write
// lock across delete and insert, so it is atomic like the SQLite version.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]RefreshToken
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]RefreshToken)}
}

// Create stores a copy of token.
func (s *MemoryTokenStore) Create(_ context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	s.tokens[token.Value] = *token
	return nil
}

// FindByValue returns a copy of the record, expired or not.
func (s *MemoryTokenStore) FindByValue(_ context.Context, value string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[value]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &t, nil
}

// Invalidate removes the record if present.
func (s *MemoryTokenStore) Invalidate(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, value)
	return nil
}

// Rotate replaces oldValue with next.
func (s *MemoryTokenStore) Rotate(_ context.Context, oldValue string, next *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[oldValue]; !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, oldValue)

	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now().UTC()
	}
	s.tokens[next.Value] = *next
	return nil
}

// DeleteExpired removes every record with ExpiresAt before now.
func (s *MemoryTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for value, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, value)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored records.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
