package oauth

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store for tests and development.
type MemoryStore struct {
	mu   sync.RWMutex
	apps []App
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create appends a copy of app.
func (s *MemoryStore) Create(_ context.Context, app *App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.apps, func(a App) bool { return a.AppName == app.AppName }) {
		return ErrAppNameTaken
	}
	s.apps = append(s.apps, *app)
	return nil
}

// List returns a copy of every app in insertion order.
func (s *MemoryStore) List(_ context.Context) ([]App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]App{}, s.apps...), nil
}
