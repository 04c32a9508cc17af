// Package session holds the captured renderer session credentials. The
// store is an explicit object with TTL-based expiry, constructed in main
// and injected where needed, never ambient state.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrNoToken is returned when no live session token is available. The
// credential capture flow must run (or re-run) before fetching can work.
var ErrNoToken = errors.New("session token missing or expired")

const rendererTokenKey = "renderer"

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is a TTL-expiring credential store.
type Store struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	stopOnce sync.Once
	done     chan struct{}
}

// NewStore creates a session store whose entries expire after ttl. A
// background janitor drops expired entries; call Stop on teardown.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		ttl:     ttl,
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Put stores a credential under key, resetting its TTL.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
}

// Get returns a live credential. Expired entries are misses.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// SetRendererToken stores the renderer session token.
func (s *Store) SetRendererToken(token string) {
	s.Put(rendererTokenKey, token)
}

// Token returns the current renderer session token. Implements the
// fetcher's TokenSource.
func (s *Store) Token() (string, error) {
	v, ok := s.Get(rendererTokenKey)
	if !ok {
		return "", ErrNoToken
	}
	return v, nil
}

// Stop shuts the janitor down.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Store) janitor() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
