package api

import (
	"context"
	"sync"
)

// tokenManager caches the JWT issued for the API key. Concurrent callers
// share one cached token; a fetch only happens when the cache is empty.
type tokenManager struct {
	fetch func(ctx context.Context) (string, error)

	mu    sync.RWMutex
	token string
}

// Token returns the cached JWT, fetching a new one if needed.
func (m *tokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" {
		return m.token, nil
	}
	token, err := m.fetch(ctx)
	if err != nil {
		return "", err
	}
	m.token = token
	return token, nil
}

// Invalidate drops the cached JWT so the next call refreshes it.
func (m *tokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
