package gateway

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_RegisterReportsFirstConnection(t *testing.T) {
	registry := NewConnectionRegistry()

	tab := newTestClient("alice", "Alice")
	phone := newTestClient("alice", "Alice")

	assert.True(t, registry.Register(tab))
	assert.False(t, registry.Register(phone))

	assert.True(t, registry.IsOnline("alice"))
	assert.Equal(t, 1, registry.OnlineCount())
}

func TestConnectionRegistry_DeregisterReportsLastConnection(t *testing.T) {
	registry := NewConnectionRegistry()

	tab := newTestClient("alice", "Alice")
	phone := newTestClient("alice", "Alice")
	registry.Register(tab)
	registry.Register(phone)

	last, found := registry.Deregister(tab)
	require.True(t, found)
	assert.False(t, last)
	assert.True(t, registry.IsOnline("alice"))

	last, found = registry.Deregister(phone)
	require.True(t, found)
	assert.True(t, last)
	assert.False(t, registry.IsOnline("alice"))
	assert.Equal(t, 0, registry.OnlineCount())
}

func TestConnectionRegistry_DeregisterUnknownConnection(t *testing.T) {
	registry := NewConnectionRegistry()

	stranger := newTestClient("alice", "Alice")

	last, found := registry.Deregister(stranger)
	assert.False(t, found)
	assert.False(t, last)
}

func TestConnectionRegistry_DeregisterIsIdempotent(t *testing.T) {
	registry := NewConnectionRegistry()

	c := newTestClient("alice", "Alice")
	registry.Register(c)

	_, found := registry.Deregister(c)
	require.True(t, found)

	_, found = registry.Deregister(c)
	assert.False(t, found)
}

func TestConnectionRegistry_SendToUserReachesEveryDevice(t *testing.T) {
	registry := NewConnectionRegistry()

	devices := make([]*Client, 3)
	for i := range devices {
		devices[i] = newTestClient("alice", "Alice")
		registry.Register(devices[i])
	}

	registry.SendToUser("alice", Envelope{Event: EventPing})

	for i, device := range devices {
		frames := drainEvents(t, device)
		require.Len(t, frames, 1, "device %d", i)
		assert.Equal(t, EventPing, frames[0].Event)
	}
}

func TestConnectionRegistry_SendToUserSurvivesOneFailingConnection(t *testing.T) {
	registry := NewConnectionRegistry()

	stuck := newTestClient("alice", "Alice")
	healthy := newTestClient("alice", "Alice")
	registry.Register(stuck)
	registry.Register(healthy)

	for n := 0; n < sendQueueSize; n++ {
		stuck.send <- []byte("{}")
	}

	registry.SendToUser("alice", Envelope{Event: EventPing})

	frames := drainEvents(t, healthy)
	require.Len(t, frames, 1)
	assert.Equal(t, EventPing, frames[0].Event)
}

func TestConnectionRegistry_ConcurrentSameUserChurn(t *testing.T) {
	registry := NewConnectionRegistry()

	var wg sync.WaitGroup
	clients := make([]*Client, 32)
	for i := range clients {
		clients[i] = newTestClient("alice", "Alice")
	}

	for _, c := range clients {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Register(c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, registry.OnlineCount())

	for _, c := range clients {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, found := registry.Deregister(c)
			assert.True(t, found)
		}()
	}
	wg.Wait()

	assert.False(t, registry.IsOnline("alice"))
}

func TestConnectionRegistry_OnlineUserIDs(t *testing.T) {
	registry := NewConnectionRegistry()

	for i := 0; i < 3; i++ {
		registry.Register(newTestClient(fmt.Sprintf("user%d", i), "User"))
	}

	assert.ElementsMatch(t, []string{"user0", "user1", "user2"}, registry.OnlineUserIDs())
}
