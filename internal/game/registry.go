package game

import "sync"

// Registry is the process-wide set of usernames holding a live
// session. It enforces at most one active connection per username.
type Registry struct {
	mu    sync.Mutex
	users map[string]struct{}
}

// NewRegistry creates an empty online-user registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]struct{})}
}

// Add claims the username. Returns false if it is already online.
func (r *Registry) Add(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, online := r.users[username]; online {
		return false
	}
	r.users[username] = struct{}{}
	return true
}

// Remove releases the username. Removing an absent name is a no-op.
func (r *Registry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, username)
}

// Contains reports whether the username is online.
func (r *Registry) Contains(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, online := r.users[username]
	return online
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
