package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/app/bridge"
)

// countEvents tallies the drained frames per event name.
func countEvents(frames []wireFrame) map[string]int {
	counts := make(map[string]int)
	for _, f := range frames {
		counts[f.Event]++
	}
	return counts
}

func TestPresence_EdgeTriggeredAnnouncements(t *testing.T) {
	fs := newFakeStore()
	g := New(fs, bridge.NewNoop())

	observer := newTestClient("observer", "Observer")
	g.connect(observer)

	tab := newTestClient("alice", "Alice")
	phone := newTestClient("alice", "Alice")

	// First connection announces online, the second does not re-announce.
	g.connect(tab)
	g.connect(phone)

	counts := countEvents(drainEvents(t, observer))
	assert.Equal(t, 1, counts[EventUserOnline])
	assert.Equal(t, 0, counts[EventUserOffline])

	// Closing one of two connections announces nothing.
	g.disconnect(tab)
	counts = countEvents(drainEvents(t, observer))
	assert.Equal(t, 0, counts[EventUserOnline])
	assert.Equal(t, 0, counts[EventUserOffline])

	// Closing the last connection announces offline exactly once.
	g.disconnect(phone)
	counts = countEvents(drainEvents(t, observer))
	assert.Equal(t, 0, counts[EventUserOnline])
	assert.Equal(t, 1, counts[EventUserOffline])
}

func TestPresence_SubjectDoesNotReceiveOwnAnnouncement(t *testing.T) {
	fs := newFakeStore()
	registry := NewConnectionRegistry()
	p := NewPresenceBroadcaster(registry, fs)

	alice := newTestClient("alice", "Alice")
	bob := newTestClient("bob", "Bob")
	registry.Register(alice)
	registry.Register(bob)

	p.AnnounceOnline("alice", "Alice")

	assert.Empty(t, drainEvents(t, alice))

	frames := drainEvents(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, EventUserOnline, frames[0].Event)
}

func TestPresence_OfflinePersistedToUserStore(t *testing.T) {
	fs := newFakeStore()
	registry := NewConnectionRegistry()
	p := NewPresenceBroadcaster(registry, fs)

	p.AnnounceOffline("alice", "Alice")

	require.Eventually(t, func() bool {
		return len(fs.offlineCalls()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"alice"}, fs.offlineCalls())
}

func TestPresence_UserStoreOutageIsSwallowed(t *testing.T) {
	fs := newFakeStore()
	fs.offlineErr = errors.New("user store down")

	registry := NewConnectionRegistry()
	p := NewPresenceBroadcaster(registry, fs)

	bob := newTestClient("bob", "Bob")
	registry.Register(bob)

	// Must not panic and must still broadcast the offline event.
	p.AnnounceOffline("alice", "Alice")

	frames := drainEvents(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, EventUserOffline, frames[0].Event)

	require.Eventually(t, func() bool {
		return len(fs.offlineCalls()) == 1
	}, time.Second, 10*time.Millisecond)
}
