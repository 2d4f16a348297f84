package auth

import (
	"sync"
	"time"
)

// CodeTTL is how long a pending verification code stays valid.
const CodeTTL = 30 * time.Minute

// CodeTable holds pending verification codes keyed by username.
// Entries expire after ttl; Get never returns an expired code.
type CodeTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]codeEntry
}

type codeEntry struct {
	code    string
	created time.Time
}

// NewCodeTable creates a table with the standard 30-minute TTL.
func NewCodeTable() *CodeTable {
	return newCodeTable(CodeTTL, time.Now)
}

func newCodeTable(ttl time.Duration, now func() time.Time) *CodeTable {
	return &CodeTable{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]codeEntry),
	}
}

// Set stores a fresh code for username, replacing any previous one.
func (t *CodeTable) Set(username, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[username] = codeEntry{code: code, created: t.now()}
}

// Get returns the pending code for username, if one exists and has
// not expired.
func (t *CodeTable) Get(username string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[username]
	if !ok {
		return "", false
	}
	if t.now().Sub(e.created) > t.ttl {
		delete(t.entries, username)
		return "", false
	}
	return e.code, true
}

// Delete removes the pending code for username.
func (t *CodeTable) Delete(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, username)
}

// CleanExpired drops every expired entry. Called by the janitor.
func (t *CodeTable) CleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for username, e := range t.entries {
		if now.Sub(e.created) > t.ttl {
			delete(t.entries, username)
		}
	}
}

// Len returns the number of live entries, expired included until swept.
func (t *CodeTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
