/*
Package gateway contains the core logic of the real-time gateway.

This file defines the Gateway struct, which wires the registries, the presence
broadcaster, the dispatcher, the liveness monitor and the broadcast bridge into
one process-wide unit with a single lifecycle tied to the service process.
*/
package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatgate/internal/app/bridge"
	"chatgate/internal/app/store"
	"chatgate/internal/pkg/logx"
)

// Gateway owns every live connection of one gateway process.
type Gateway struct {
	registry *ConnectionRegistry
	rooms    *RoomRegistry
	presence *PresenceBroadcaster

	dispatcher *Dispatcher
	liveness   *livenessMonitor
	bridge     bridge.Bridge

	// instanceID distinguishes this process on the broadcast bridge.
	instanceID string

	logger zerolog.Logger
}

// New constructs a Gateway over the given store and broadcast bridge.
func New(st store.Store, br bridge.Bridge) *Gateway {
	registry := NewConnectionRegistry()
	rooms := NewRoomRegistry()
	instanceID := uuid.NewString()

	g := &Gateway{
		registry:   registry,
		rooms:      rooms,
		presence:   NewPresenceBroadcaster(registry, st),
		dispatcher: NewDispatcher(st, registry, rooms, br, instanceID),
		bridge:     br,
		instanceID: instanceID,
		logger:     logx.Logger().With().Str("component", "Gateway").Str("instance_id", instanceID).Logger(),
	}

	g.liveness = newLivenessMonitor(ProbeInterval, registry, g.evictDead)

	return g
}

// Registry exposes the connection registry.
func (g *Gateway) Registry() *ConnectionRegistry { return g.registry }

// Rooms exposes the room registry.
func (g *Gateway) Rooms() *RoomRegistry { return g.rooms }

// Start subscribes to the broadcast bridge and launches the liveness monitor.
func (g *Gateway) Start() error {
	if err := g.bridge.Subscribe(bridge.ChannelNewMessage, g.handleBridgeDelivery); err != nil {
		return err
	}

	g.liveness.Start()

	g.logger.Info().Msg("Gateway started.")
	return nil
}

// Shutdown stops the liveness monitor, force-closes every live connection
// through the shared cleanup path, and closes the bridge.
func (g *Gateway) Shutdown() {
	g.liveness.Stop()

	for _, c := range g.registry.Connections() {
		c.forceClose("server shutting down")
		g.disconnect(c)
	}

	if err := g.bridge.Close(); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to close broadcast bridge.")
	}

	g.logger.Info().Msg("Gateway shutdown complete.")
}

// HandleConnection runs the lifecycle of one authenticated WebSocket
// connection: registration, the write loop, and the blocking read loop.
// It returns when the connection is gone and cleaned up.
func (g *Gateway) HandleConnection(conn *websocket.Conn, userID, displayName string) {
	c := newClient(conn, userID, displayName)

	g.connect(c)

	go c.writePump()
	c.readPump(g)
}

// connect registers the connection and fires the online presence transition
// when this is the user's first connection. Every connection also joins the
// user's implicit personal room.
func (g *Gateway) connect(c *Client) {
	first := g.registry.Register(c)
	g.rooms.Join(PersonalRoom(c.userID), c)

	if first {
		g.presence.AnnounceOnline(c.userID, c.displayName)
	}
}

// disconnect runs the shared cleanup path for clean disconnects, liveness
// evictions and shutdown alike. Idempotent: a connection already deregistered
// is left alone.
func (g *Gateway) disconnect(c *Client) {
	last, found := g.registry.Deregister(c)
	if !found {
		return
	}

	g.rooms.RemoveConnectionEverywhere(c)
	c.closeSend()

	if last {
		g.presence.AnnounceOffline(c.userID, c.displayName)
	}
}

// evictDead force-closes a connection that failed its liveness probe and runs
// the normal disconnect cleanup. Observers cannot tell the difference from a
// clean disconnect.
func (g *Gateway) evictDead(c *Client) {
	c.forceClose("liveness probe timeout")
	g.disconnect(c)
}

// handleBridgeDelivery consumes a new-message event published by a gateway
// instance and delivers it to local connections of the listed participants.
// Events published by this instance were already delivered locally and are skipped.
func (g *Gateway) handleBridgeDelivery(payload []byte) {
	var envelope BridgeEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		g.logger.Warn().Err(err).Msg("Discarding malformed bridge payload.")
		return
	}

	if envelope.Origin == g.instanceID {
		return
	}

	deliver := Envelope{Event: EventNewMessage, Data: NewMessagePayload{Message: envelope.Message}}

	for _, participantID := range envelope.ParticipantIDs {
		if participantID == envelope.Message.SenderID {
			continue
		}
		g.registry.SendToUser(participantID, deliver)
	}
}
