/*
Package gateway contains the core logic of the real-time gateway.

This file defines the Client struct, representing one live WebSocket connection of a user.
It manages the connection's read/write loops and the per-connection send queue.
*/
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time the read loop waits between inbound frames. Liveness probes
	// arrive well within this window, so only a truly dead socket trips it.
	readWait = 90 * time.Second

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// maximum allowed size (in bytes) for text message content.
	MaxContentBytes = 5000

	// capacity of the per-connection outbound queue.
	sendQueueSize = 256
)

// Client represents an active WebSocket connection and its authenticated user.
// One user may hold several Clients concurrently (multiple tabs or devices).
type Client struct {
	// id is the opaque connection handle, unique per connection.
	id string

	// userID is the authenticated owner of the connection.
	userID string

	// displayName is the owner's resolved display name, fixed for the connection's lifetime.
	displayName string

	// underlying WebSocket connection object. Nil for pump-less test clients.
	conn *websocket.Conn

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// alive is cleared when a liveness probe is sent and set again on any pong.
	alive atomic.Bool

	// sendMu orders queue writes against closeSend. Fan-out goroutines may hold
	// a registry snapshot taken before this connection disconnected; they must
	// get an error from Enqueue, never a send on a closed channel.
	sendMu sync.Mutex

	// closed is set once the send channel is closed. Guarded by sendMu.
	closed bool

	// structured logger with connection context.
	logger zerolog.Logger
}

// newClient constructs a Client for an authenticated connection.
func newClient(conn *websocket.Conn, userID, displayName string) *Client {
	id := uuid.NewString()

	clientLogger := logx.Logger().With().
		Str("connection_id", id).
		Str("user_id", userID).
		Logger()

	c := &Client{
		id:          id,
		userID:      userID,
		displayName: displayName,
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		logger:      clientLogger,
	}

	c.alive.Store(true)

	return c
}

// UserID returns the id of the user owning this connection.
func (c *Client) UserID() string { return c.userID }

// DisplayName returns the resolved display name of the connection's owner.
func (c *Client) DisplayName() string { return c.displayName }

// markAlive records that the client answered a liveness probe.
func (c *Client) markAlive() {
	c.alive.Store(true)
}

// expireProbe clears the alive flag before a probe is sent. Returns the previous value.
func (c *Client) expireProbe() bool {
	return c.alive.Swap(false)
}

// isAlive reports whether the client answered since the last probe.
func (c *Client) isAlive() bool {
	return c.alive.Load()
}

// Enqueue marshals the envelope and queues it on the client's send channel.
// The queue is never allowed to block or panic the caller: a full queue and a
// queue already closed by disconnect both drop the event and return an error
// for the caller to log.
func (c *Client) Enqueue(env Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		c.logger.Error().Err(err).Str("event", env.Event).Msg("Error marshaling event for client")
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		c.logger.Debug().Str("event", env.Event).Msg("Client send channel closed, dropping event")
		return fmt.Errorf("client send queue closed")
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Str("event", env.Event).Msg("Client send channel full, dropping event")
		return fmt.Errorf("client send queue full")
	}
}

// SendError queues an error acknowledgment on this connection only.
func (c *Client) SendError(customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	env := Envelope{
		Event: EventError,
		Data: ErrorPayload{
			Error: customErr.Message,
			Code:  customErr.Code,
		},
	}

	if err := c.Enqueue(env); err != nil {
		c.logger.Error().Err(err).Msg("Failed to queue error acknowledgment")
	}
}

// closeSend closes the send channel exactly once, terminating the write loop.
// Later Enqueue calls see the closed flag and fail instead of panicking.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
}

// forceClose sends a close frame and tears down the underlying connection.
// Used by the liveness monitor; the subsequent read error runs the normal
// disconnect cleanup, so a dead connection is indistinguishable from a clean one.
func (c *Client) forceClose(reason string) {
	if c.conn == nil {
		return
	}

	c.logger.Warn().Str("reason", reason).Msg("Force-closing connection.")

	closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send close frame during force-close.")
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Connection close error during force-close.")
	}
}

// readPump reads frames from the WebSocket connection and hands them to the
// dispatcher in arrival order. It blocks until the connection dies and then
// runs the gateway's disconnect cleanup.
func (c *Client) readPump(g *Gateway) {
	defer func() {
		g.disconnect(c)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	// Control-frame pongs count as probe answers, same as the pong event.
	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			c.logger.Error().Err(err).Msg("Failed to refresh read deadline")
			break
		}

		g.dispatcher.Dispatch(c, frame)
	}
}

// writePump writes queued frames from the send channel to the WebSocket connection.
// It exits when the send channel is closed or a write fails.
func (c *Client) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in writePump")
		}
	}()

	for frame := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.logger.Error().Err(err).Msg("Failed to set write deadline")
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.logger.Error().Err(err).Msg("Error writing frame")
			return
		}
	}

	// Send channel closed: say goodbye properly.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing close message")
	}
}
