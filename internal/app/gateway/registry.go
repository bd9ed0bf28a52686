/*
Package gateway contains the core logic of the real-time gateway.

This file defines the ConnectionRegistry, which owns every live connection in
the process, keyed by user id. One user may hold several concurrent connections.
*/
package gateway

import (
	"sync"

	"github.com/rs/zerolog"

	"chatgate/internal/pkg/logx"
)

// ConnectionRegistry tracks the live connections of every online user.
// A user is online iff their connection list is non-empty; Register and
// Deregister report the transitions into and out of that state so callers
// can fire presence announcements exactly once.
type ConnectionRegistry struct {
	// mu protects the users map and every connection list in it.
	mu sync.RWMutex

	// users maps a user id to that user's live connections.
	users map[string][]*Client

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewConnectionRegistry constructs an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		users:  make(map[string][]*Client),
		logger: logx.Logger().With().Str("component", "ConnectionRegistry").Logger(),
	}
}

// Register adds the connection to its user's list.
// It returns true when this is the user's first live connection, i.e. the
// moment the user transitions to online.
func (r *ConnectionRegistry) Register(c *Client) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.users[c.userID]
	first = len(conns) == 0
	r.users[c.userID] = append(conns, c)

	r.logger.Info().
		Str("user_id", c.userID).
		Str("connection_id", c.id).
		Int("device_count", len(conns)+1).
		Msg("Connection registered.")

	return first
}

// Deregister removes the connection from its user's list. It returns last=true
// when the list became empty (the user transitioned offline) and found=false
// when the connection was not registered, which makes cleanup idempotent.
func (r *ConnectionRegistry) Deregister(c *Client) (last, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.users[c.userID]
	for i, conn := range conns {
		if conn != c {
			continue
		}

		conns = append(conns[:i], conns[i+1:]...)
		found = true
		break
	}

	if !found {
		return false, false
	}

	if len(conns) == 0 {
		delete(r.users, c.userID)
		last = true
	} else {
		r.users[c.userID] = conns
	}

	r.logger.Info().
		Str("user_id", c.userID).
		Str("connection_id", c.id).
		Int("device_count", len(conns)).
		Msg("Connection deregistered.")

	return last, true
}

// SendToUser delivers the event to every live connection of the user.
// Delivery is best-effort: a failure on one connection is logged and does not
// suppress delivery to the others, and nothing is raised to the caller.
func (r *ConnectionRegistry) SendToUser(userID string, env Envelope) {
	r.mu.RLock()
	conns := make([]*Client, len(r.users[userID]))
	copy(conns, r.users[userID])
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.Enqueue(env); err != nil {
			r.logger.Warn().
				Str("user_id", userID).
				Str("connection_id", c.id).
				Str("event", env.Event).
				Err(err).
				Msg("Failed to deliver event to connection, continuing fan-out.")
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (r *ConnectionRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userID]) > 0
}

// OnlineCount returns the number of online users.
func (r *ConnectionRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users)
}

// OnlineUserIDs returns a snapshot of every online user id.
func (r *ConnectionRegistry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}

	return ids
}

// Connections returns a snapshot of every live connection, for the liveness sweep.
func (r *ConnectionRegistry) Connections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Client, 0, len(r.users))
	for _, list := range r.users {
		conns = append(conns, list...)
	}

	return conns
}
