/*
Package gateway contains the core logic of the real-time gateway.

This file defines the PresenceBroadcaster, which announces online/offline
transitions to every other connected user and persists offline transitions
to the external user store.
*/
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chatgate/internal/app/store"
	"chatgate/internal/pkg/logx"
)

// offlinePersistTimeout bounds the fire-and-forget user-store call.
const offlinePersistTimeout = 5 * time.Second

// PresenceBroadcaster fans presence transitions out to every online user
// except the subject. Callers invoke it only on the edge transitions: the
// user's first connection and their last disconnection.
type PresenceBroadcaster struct {
	registry *ConnectionRegistry
	users    store.UserStore
	logger   zerolog.Logger
}

// NewPresenceBroadcaster constructs a broadcaster over the given registry and user store.
func NewPresenceBroadcaster(registry *ConnectionRegistry, users store.UserStore) *PresenceBroadcaster {
	return &PresenceBroadcaster{
		registry: registry,
		users:    users,
		logger:   logx.Logger().With().Str("component", "PresenceBroadcaster").Logger(),
	}
}

// AnnounceOnline fans a userOnline event to every connected user except the subject.
func (p *PresenceBroadcaster) AnnounceOnline(userID, displayName string) {
	p.announce(EventUserOnline, userID, displayName)
}

// AnnounceOffline fans a userOffline event to every connected user except the
// subject and persists the transition to the user store. The store call is
// fire-and-forget: a user-store outage must not prevent the user from being
// treated as offline locally.
func (p *PresenceBroadcaster) AnnounceOffline(userID, displayName string) {
	p.announce(EventUserOffline, userID, displayName)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), offlinePersistTimeout)
		defer cancel()

		if err := p.users.MarkUserOffline(ctx, userID); err != nil {
			p.logger.Warn().
				Str("user_id", userID).
				Err(err).
				Msg("Failed to persist offline transition, continuing.")
		}
	}()
}

// announce delivers the presence event to every online user except the subject.
func (p *PresenceBroadcaster) announce(event, userID, displayName string) {
	env := Envelope{
		Event: event,
		Data: PresencePayload{
			UserID:      userID,
			DisplayName: displayName,
		},
	}

	for _, onlineID := range p.registry.OnlineUserIDs() {
		if onlineID == userID {
			continue
		}
		p.registry.SendToUser(onlineID, env)
	}

	p.logger.Info().
		Str("user_id", userID).
		Str("event", event).
		Msg("Presence transition announced.")
}
