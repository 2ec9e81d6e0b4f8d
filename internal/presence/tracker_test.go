package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	event      Event
	recipients []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(event Event, recipients []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{event: event, recipients: recipients})
}

func (p *recordingPublisher) count(eventType EventType, username string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event.Type == eventType && e.event.Username == username {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func newTestTracker() (*Tracker, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewTracker(NewRegistry(), nil, pub), pub
}

func TestUserConnectedFirstConnectionPublishesOnline(t *testing.T) {
	tracker, pub := newTestTracker()

	online, cameOnline := tracker.UserConnected("alice", "a1")
	assert.True(t, cameOnline)
	assert.Equal(t, []string{"alice"}, online)
	assert.Equal(t, 1, pub.count(UserOnline, "alice"))
	assert.Empty(t, pub.last().recipients)

	online, cameOnline = tracker.UserConnected("bob", "b1")
	assert.True(t, cameOnline)
	assert.Equal(t, []string{"alice", "bob"}, online)

	// alice's connection is told, bob's own connection is not
	last := pub.last()
	assert.Equal(t, UserOnline, last.event.Type)
	assert.Equal(t, "bob", last.event.Username)
	assert.Equal(t, []string{"a1"}, last.recipients)
}

func TestMultipleConnectionsDoNotFlap(t *testing.T) {
	tracker, pub := newTestTracker()

	tracker.UserConnected("alice", "a1")
	_, cameOnline := tracker.UserConnected("alice", "a2")
	assert.False(t, cameOnline)
	assert.Equal(t, 1, pub.count(UserOnline, "alice"))

	assert.False(t, tracker.UserDisconnected("alice", "a1"))
	assert.Zero(t, pub.count(UserOffline, "alice"))
	assert.True(t, tracker.IsOnline("alice"))

	assert.True(t, tracker.UserDisconnected("alice", "a2"))
	assert.Equal(t, 1, pub.count(UserOffline, "alice"))
	assert.False(t, tracker.IsOnline("alice"))
}

func TestDoubleDisconnectIsNoop(t *testing.T) {
	tracker, pub := newTestTracker()

	tracker.UserConnected("alice", "a1")
	require.True(t, tracker.UserDisconnected("alice", "a1"))
	assert.False(t, tracker.UserDisconnected("alice", "a1"))
	assert.False(t, tracker.UserDisconnected("alice", "never-registered"))
	assert.Equal(t, 1, pub.count(UserOffline, "alice"))
}

func TestReconnectSameConnectionIDDoesNotRepublish(t *testing.T) {
	tracker, pub := newTestTracker()

	tracker.UserConnected("alice", "a1")
	_, cameOnline := tracker.UserConnected("alice", "a1")
	assert.False(t, cameOnline)
	assert.Equal(t, 1, pub.count(UserOnline, "alice"))
}

func TestConnectionOwnedByAnotherUserIsRejected(t *testing.T) {
	tracker, pub := newTestTracker()
	tracker.UserConnected("alice", "a1")

	_, cameOnline := tracker.UserConnected("bob", "a1")
	assert.False(t, cameOnline)
	assert.True(t, tracker.IsOnline("alice"))
	assert.False(t, tracker.IsOnline("bob"))
	assert.Zero(t, pub.count(UserOffline, "alice"))
	assert.Zero(t, pub.count(UserOnline, "bob"))

	assert.True(t, tracker.UserDisconnected("alice", "a1"))
	assert.Equal(t, 1, pub.count(UserOffline, "alice"))
}

func TestTransitionsCountedOncePerCycle(t *testing.T) {
	tracker, pub := newTestTracker()

	for cycle := 0; cycle < 3; cycle++ {
		for i := 0; i < 4; i++ {
			tracker.UserConnected("alice", fmt.Sprintf("c%d-%d", cycle, i))
		}
		for i := 0; i < 4; i++ {
			tracker.UserDisconnected("alice", fmt.Sprintf("c%d-%d", cycle, i))
		}
	}

	assert.Equal(t, 3, pub.count(UserOnline, "alice"))
	assert.Equal(t, 3, pub.count(UserOffline, "alice"))
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	tracker, pub := newTestTracker()
	var wg sync.WaitGroup

	// alice holds one connection the whole time so she never goes offline
	tracker.UserConnected("alice", "anchor")

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("tab-%d", i)
			tracker.UserConnected("alice", conn)
			tracker.UserDisconnected("alice", conn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, pub.count(UserOnline, "alice"))
	assert.Zero(t, pub.count(UserOffline, "alice"))
	assert.Equal(t, []string{"anchor"}, tracker.ConnectionsFor("alice"))
}

func TestPublishOrderFollowsTransitions(t *testing.T) {
	tracker, pub := newTestTracker()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c-%d", i)
			tracker.UserConnected("bob", conn)
			tracker.UserDisconnected("bob", conn)
		}(i)
	}
	wg.Wait()

	// events for bob must alternate online/offline, starting with online
	pub.mu.Lock()
	defer pub.mu.Unlock()
	expected := UserOnline
	for _, e := range pub.events {
		require.Equal(t, expected, e.event.Type)
		if expected == UserOnline {
			expected = UserOffline
		} else {
			expected = UserOnline
		}
	}
	assert.Equal(t, UserOnline, expected, "last event must be offline")
}
