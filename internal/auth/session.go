package auth

import (
	"sync"
	"time"
)

// Revocations holds ids of tokens that were logged out before they expired
// (in-memory; a restart forgets them).
type Revocations struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // token id -> expiry
}

func NewRevocations() *Revocations {
	return &Revocations{revoked: make(map[string]time.Time)}
}

// Revoke marks the token id as invalid until it would have expired anyway.
func (r *Revocations) Revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	r.mu.Lock()
	r.revoked[tokenID] = expiresAt
	r.prune(time.Now())
	r.mu.Unlock()
}

func (r *Revocations) IsRevoked(tokenID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.revoked[tokenID]
	return ok
}

// prune drops entries whose tokens have expired. Caller holds the lock.
func (r *Revocations) prune(now time.Time) {
	for id, exp := range r.revoked {
		if now.After(exp) {
			delete(r.revoked, id)
		}
	}
}
