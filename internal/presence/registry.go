package presence

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// ErrConnectionOwned is returned when a connection ID is already registered
// to a different user.
var ErrConnectionOwned = errors.New("connection already owned by another user")

// Registry maps live connection IDs to the usernames that own them. It only
// stores state; transitions are detected and published by the Tracker.
type Registry struct {
	mu     sync.RWMutex
	owners map[string]string              // connID -> username
	byUser map[string]map[string]struct{} // username -> set of connIDs
}

func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[string]string),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Add registers connID under username and returns the number of open
// connections the user has afterwards. Re-adding a connID under its owner is
// a no-op; a connID owned by another user is rejected with
// ErrConnectionOwned and left unchanged.
func (r *Registry) Add(username, connID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.owners[connID]; ok && previous != username {
		return len(r.byUser[previous]), fmt.Errorf("%w: %s belongs to %s", ErrConnectionOwned, connID, previous)
	}

	r.owners[connID] = username
	conns, ok := r.byUser[username]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[username] = conns
	}
	conns[connID] = struct{}{}
	return len(conns), nil
}

// Remove drops connID and returns its owner. An unknown connID is a no-op
// reported with ok=false.
func (r *Registry) Remove(connID string) (username string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(connID)
}

func (r *Registry) removeLocked(connID string) (string, bool) {
	username, ok := r.owners[connID]
	if !ok {
		return "", false
	}
	delete(r.owners, connID)

	if conns, exists := r.byUser[username]; exists {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, username)
		}
	}
	return username, true
}

// ConnectionsFor returns a snapshot of username's connection IDs.
func (r *Registry) ConnectionsFor(username string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.byUser[username]
	if !ok {
		return nil
	}
	return lo.Keys(conns)
}

// ConnectionsExcept returns every connection not owned by username.
func (r *Registry) ConnectionsExcept(username string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.owners))
	for connID, owner := range r.owners {
		if owner != username {
			out = append(out, connID)
		}
	}
	return out
}

func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[username]) > 0
}

// Count returns how many connections username has open.
func (r *Registry) Count(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[username])
}

// Owner returns the username a connection is registered under.
func (r *Registry) Owner(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	username, ok := r.owners[connID]
	return username, ok
}

// OnlineUsers returns the sorted list of users with at least one connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := lo.Keys(r.byUser)
	sort.Strings(users)
	return users
}
