/*
Package gateway contains the core logic of the real-time gateway.

This file defines the RoomRegistry, which owns the ad-hoc broadcast groups
connections subscribe to: one implicit personal room per user plus one room
per conversation a connection explicitly joined.
*/
package gateway

import (
	"sync"

	"github.com/rs/zerolog"

	"chatgate/internal/pkg/logx"
)

// conversationRoomPrefix namespaces rooms backing conversation subscriptions.
const conversationRoomPrefix = "conversation:"

// personalRoomPrefix namespaces the implicit per-user room every connection joins.
const personalRoomPrefix = "user:"

// ConversationRoom returns the room name of a conversation.
func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

// PersonalRoom returns the implicit room name of a user.
func PersonalRoom(userID string) string {
	return personalRoomPrefix + userID
}

// RoomRegistry tracks which connections belong to which rooms. Rooms are
// created lazily on first join and pruned when their membership empties.
// The registry also keeps the reverse index connection -> rooms so the
// per-connection room set lives here instead of on the transport object.
type RoomRegistry struct {
	// mu protects both maps.
	mu sync.RWMutex

	// rooms maps a room name to its member set.
	rooms map[string]map[*Client]struct{}

	// membership maps a connection to the set of room names it joined.
	membership map[*Client]map[string]struct{}

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewRoomRegistry constructs an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:      make(map[string]map[*Client]struct{}),
		membership: make(map[*Client]map[string]struct{}),
		logger:     logx.Logger().With().Str("component", "RoomRegistry").Logger(),
	}
}

// Join adds the connection to the room. Idempotent: joining an already-joined
// room leaves the membership unchanged.
func (r *RoomRegistry) Join(roomID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomID] = members
	}

	if _, already := members[c]; already {
		return
	}

	members[c] = struct{}{}

	joined, ok := r.membership[c]
	if !ok {
		joined = make(map[string]struct{})
		r.membership[c] = joined
	}
	joined[roomID] = struct{}{}

	r.logger.Debug().
		Str("room_id", roomID).
		Str("connection_id", c.id).
		Int("member_count", len(members)).
		Msg("Connection joined room.")
}

// Leave removes the connection from the room. Leaving a room it never joined
// is a no-op, not an error. An emptied room is pruned.
func (r *RoomRegistry) Leave(roomID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(roomID, c)
}

// leaveLocked removes the connection from one room. Caller holds mu.
func (r *RoomRegistry) leaveLocked(roomID string, c *Client) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}

	if _, member := members[c]; !member {
		return
	}

	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	if joined, ok := r.membership[c]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.membership, c)
		}
	}

	r.logger.Debug().
		Str("room_id", roomID).
		Str("connection_id", c.id).
		Int("member_count", len(members)).
		Msg("Connection left room.")
}

// SendToRoom delivers the event to every member of the room, optionally
// skipping one connection (so a sender does not receive its own typing echo).
// Delivery is best-effort per member.
func (r *RoomRegistry) SendToRoom(roomID string, env Envelope, excluding *Client) {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.rooms[roomID]))
	for member := range r.rooms[roomID] {
		if member == excluding {
			continue
		}
		members = append(members, member)
	}
	r.mu.RUnlock()

	for _, member := range members {
		if err := member.Enqueue(env); err != nil {
			r.logger.Warn().
				Str("room_id", roomID).
				Str("connection_id", member.id).
				Str("event", env.Event).
				Err(err).
				Msg("Failed to deliver event to room member, continuing fan-out.")
		}
	}
}

// RemoveConnectionEverywhere removes the connection from every room it joined.
// Part of the shared disconnect cleanup path.
func (r *RoomRegistry) RemoveConnectionEverywhere(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.membership[c] {
		r.leaveLocked(roomID, c)
	}
}

// MemberCount returns the current membership size of the room.
func (r *RoomRegistry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomID])
}

// RoomCount returns the number of live rooms.
func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
