package tgui

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// TokenStore is an in-memory TTL store for values referenced from
// inline-button callbacks.
//
// Telegram limits callback_data to 64 bytes; rich flows keep their
// state server-side and pass only a short token. Tokens never contain
// ':' so they are safe inside "app:action:payload" data.
type TokenStore[T any] struct {
	mu  sync.Mutex
	ttl time.Duration
	max int
	m   map[string]tokenEntry[T]
}

type tokenEntry[T any] struct {
	v   T
	exp time.Time
}

// NewTokenStore creates a TokenStore. Defaults: ttl=15m, max=1000.
func NewTokenStore[T any](ttl time.Duration, max int) *TokenStore[T] {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if max <= 0 {
		max = 1000
	}
	return &TokenStore[T]{ttl: ttl, max: max, m: map[string]tokenEntry[T]{}}
}

// Put stores v and returns a short token ("~" + 8 base64url chars).
func (s *TokenStore[T]) Put(v T) string {
	now := time.Now()
	var buf [6]byte

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	for {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])
		if _, exists := s.m[tok]; exists {
			continue
		}
		s.m[tok] = tokenEntry[T]{v: v, exp: now.Add(s.ttl)}
		s.enforceMaxLocked(tok)
		return tok
	}
}

// Get returns the stored value without consuming it.
func (s *TokenStore[T]) Get(tok string) (T, bool) {
	var zero T
	if tok == "" {
		return zero, false
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[tok]
	if !ok || now.After(e.exp) {
		delete(s.m, tok)
		return zero, false
	}
	return e.v, true
}

// Take returns and removes the stored value. Confirmation flows use
// Take so a token cannot be replayed.
func (s *TokenStore[T]) Take(tok string) (T, bool) {
	var zero T
	if tok == "" {
		return zero, false
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[tok]
	delete(s.m, tok)
	if !ok || now.After(e.exp) {
		return zero, false
	}
	return e.v, true
}

func (s *TokenStore[T]) sweepLocked(now time.Time) {
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
}

// enforceMaxLocked evicts the entries closest to expiry, never keep.
// A token just handed to a user must outlive the backlog.
func (s *TokenStore[T]) enforceMaxLocked(keep string) {
	for len(s.m) > s.max {
		var victim string
		var victimExp time.Time
		for k, e := range s.m {
			if k == keep {
				continue
			}
			if victim == "" || e.exp.Before(victimExp) {
				victim, victimExp = k, e.exp
			}
		}
		if victim == "" {
			return
		}
		delete(s.m, victim)
	}
}
