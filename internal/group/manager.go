// Package group maps realtime connections to two-party conversation rooms.
package group

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// NameFor returns the room name of the conversation between a and b. The
// result does not depend on argument order. The length prefix keeps names
// unambiguous whatever characters usernames contain.
func NameFor(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s-%s", len(a), a, b)
}

type member struct {
	username string
}

// Manager keeps the set of connections currently viewing each conversation.
// A connection belongs to at most one group; empty groups are pruned.
type Manager struct {
	mu       sync.RWMutex
	groups   map[string]map[string]member // group -> connID -> member
	memberOf map[string]string            // connID -> group
}

func NewManager() *Manager {
	return &Manager{
		groups:   make(map[string]map[string]member),
		memberOf: make(map[string]string),
	}
}

// JoinGroup moves connID into the conversation of username and other,
// leaving whatever group it was in before. It returns the group name.
func (m *Manager) JoinGroup(connID, username, other string) string {
	name := NameFor(username, other)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveLocked(connID)

	members, ok := m.groups[name]
	if !ok {
		members = make(map[string]member)
		m.groups[name] = members
	}
	members[connID] = member{username: username}
	m.memberOf[connID] = name
	return name
}

// LeaveGroup removes connID from its group, if any, and returns that
// group's name.
func (m *Manager) LeaveGroup(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.leaveLocked(connID)
}

func (m *Manager) leaveLocked(connID string) (string, bool) {
	name, ok := m.memberOf[connID]
	if !ok {
		return "", false
	}
	delete(m.memberOf, connID)

	if members, exists := m.groups[name]; exists {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.groups, name)
		}
	}
	return name, true
}

// ConnectionsInGroup returns a snapshot of the connections in a group.
func (m *Manager) ConnectionsInGroup(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.Keys(m.groups[name])
}

// ConnectionsOf returns the connections of username that are in the group.
func (m *Manager) ConnectionsOf(name, username string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0)
	for connID, mb := range m.groups[name] {
		if mb.username == username {
			out = append(out, connID)
		}
	}
	return out
}

// HasMember reports whether username has any connection in the group.
func (m *Manager) HasMember(name, username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mb := range m.groups[name] {
		if mb.username == username {
			return true
		}
	}
	return false
}

// GroupOf returns the group connID is in.
func (m *Manager) GroupOf(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.memberOf[connID]
	return name, ok
}

// Len returns the number of non-empty groups.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.groups)
}
