/*
Package gateway contains the core logic of the real-time gateway.

This file defines the Dispatcher, the orchestration core: it validates inbound
client events, calls the external message store, fans the result out through
the registries, and publishes delivery events onto the broadcast bridge.
*/
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"chatgate/internal/app/bridge"
	"chatgate/internal/app/store"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
)

// Dispatcher routes the fixed vocabulary of inbound events. Every failure is
// terminal to the single event that caused it: the sender gets an error
// acknowledgment on its own connection and nothing propagates further.
type Dispatcher struct {
	store    store.Store
	registry *ConnectionRegistry
	rooms    *RoomRegistry
	bridge   bridge.Bridge

	// instanceID tags bridge publishes so this instance skips its own echoes.
	instanceID string

	logger zerolog.Logger
}

// NewDispatcher constructs a Dispatcher over the given collaborators.
func NewDispatcher(st store.Store, registry *ConnectionRegistry, rooms *RoomRegistry, br bridge.Bridge, instanceID string) *Dispatcher {
	return &Dispatcher{
		store:      st,
		registry:   registry,
		rooms:      rooms,
		bridge:     br,
		instanceID: instanceID,
		logger:     logx.Logger().With().Str("component", "Dispatcher").Logger(),
	}
}

// Dispatch handles one raw inbound frame from an authenticated connection.
// Frames are processed in arrival order per connection; blocking store calls
// run on the connection's read loop and never hold a registry lock.
func (d *Dispatcher) Dispatch(c *Client, frame []byte) {
	var inbound inboundFrame
	if err := json.Unmarshal(frame, &inbound); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame")
		c.SendError(errs.NewError(errs.ErrMalformedFrame))
		return
	}

	switch inbound.Event {
	case EventSendMessage:
		d.handleSendMessage(c, inbound.body())

	case EventMarkAsRead:
		d.handleMarkAsRead(c, inbound.body())

	case EventMarkConversationAsRead:
		d.handleMarkConversationAsRead(c, inbound.body())

	case EventJoinConversation:
		d.handleJoinConversation(c, inbound.body())

	case EventLeaveConversation:
		d.handleLeaveConversation(c, inbound.body())

	case EventTyping:
		d.handleTyping(c, inbound.body())

	case EventPong:
		c.markAlive()

	default:
		c.logger.Warn().Str("event", inbound.Event).Msg("Client sent unsupported event")
		c.SendError(errs.NewError(errs.ErrUnsupportedEvent))
	}
}

// handleSendMessage validates, persists and fans out a new message.
func (d *Dispatcher) handleSendMessage(c *Client, body json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid sendMessage payload")
		c.SendError(errs.NewError(errs.ErrMalformedFrame))
		return
	}

	if payload.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if strings.TrimSpace(payload.Content) == "" && len(payload.Attachments) == 0 {
		c.SendError(errs.NewError(errs.ErrEmptyMessage))
		return
	}

	if len(payload.Content) > MaxContentBytes {
		c.SendError(errs.NewError(errs.ErrMessageContentTooLong))
		return
	}

	// Attachment limits are enforced before any store call is made.
	if len(payload.Attachments) > MaxAttachmentsCount {
		c.SendError(errs.NewError(errs.ErrAttachmentCountInvalid, MaxAttachmentsCount))
		return
	}

	for _, attachment := range payload.Attachments {
		if validationErr := validateAttachment(attachment); validationErr != nil {
			c.SendError(validationErr)
			return
		}
	}

	ctx := context.Background()

	participants, err := d.store.ConversationParticipants(ctx, payload.ConversationID)
	if err != nil {
		c.SendError(storeError(err))
		return
	}

	if !containsParticipant(participants, c.userID) {
		c.SendError(errs.NewError(errs.ErrNotParticipant))
		return
	}

	msg, err := d.store.CreateMessage(ctx, c.userID, payload.ConversationID, payload.Content, payload.Attachments)
	if err != nil {
		c.SendError(storeError(err))
		return
	}

	if err := c.Enqueue(Envelope{Event: EventSendMessage, Data: AckPayload{Success: true, Message: &msg}}); err != nil {
		c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to queue sendMessage acknowledgment")
	}

	deliver := Envelope{Event: EventNewMessage, Data: NewMessagePayload{Message: msg}}
	participantIDs := make([]string, 0, len(participants))
	for _, participant := range participants {
		participantIDs = append(participantIDs, participant.ID)

		if participant.ID == c.userID {
			continue
		}
		d.registry.SendToUser(participant.ID, deliver)
	}

	d.publishNewMessage(ctx, msg, participantIDs)
}

// publishNewMessage pushes the delivery event onto the broadcast bridge so
// sibling instances can deliver to their own local connections. Failures are
// logged and never affect local delivery.
func (d *Dispatcher) publishNewMessage(ctx context.Context, msg store.Message, participantIDs []string) {
	envelope := BridgeEnvelope{
		Origin:         d.instanceID,
		Message:        msg,
		ParticipantIDs: participantIDs,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to encode bridge envelope")
		return
	}

	if err := d.bridge.Publish(ctx, bridge.ChannelNewMessage, payload); err != nil {
		d.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to publish on broadcast bridge, continuing.")
	}
}

// handleMarkAsRead persists a single message's read-flag change.
func (d *Dispatcher) handleMarkAsRead(c *Client, body json.RawMessage) {
	var payload markAsReadPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid markAsRead payload")
		c.SendError(errs.NewError(errs.ErrMalformedFrame))
		return
	}

	if payload.MessageID == "" || payload.Read == nil {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	msg, err := d.store.MarkMessageRead(context.Background(), c.userID, payload.MessageID, *payload.Read)
	if err != nil {
		c.SendError(storeError(err))
		return
	}

	d.registry.SendToUser(c.userID, Envelope{
		Event: EventMessageReadStatusChanged,
		Data: ReadStatusPayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			Read:           msg.Read,
		},
	})
}

// handleMarkConversationAsRead bulk-marks the conversation and notifies its room.
func (d *Dispatcher) handleMarkConversationAsRead(c *Client, body json.RawMessage) {
	var payload conversationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid markConversationAsRead payload")
		c.SendError(errs.NewError(errs.ErrMalformedFrame))
		return
	}

	if payload.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	summary, err := d.store.MarkConversationRead(context.Background(), c.userID, payload.ConversationID)
	if err != nil {
		c.SendError(storeError(err))
		return
	}

	room := ConversationRoom(payload.ConversationID)

	for _, messageID := range summary.MessageIDs {
		d.rooms.SendToRoom(room, Envelope{
			Event: EventMessageReadStatusChanged,
			Data: ReadStatusPayload{
				MessageID:      messageID,
				ConversationID: payload.ConversationID,
				Read:           true,
			},
		}, nil)
	}

	d.rooms.SendToRoom(room, Envelope{
		Event: EventConversationReadStatusChanged,
		Data: ConversationReadPayload{
			ConversationID: payload.ConversationID,
			UpdatedCount:   summary.UpdatedCount,
		},
	}, nil)
}

// handleJoinConversation subscribes the connection to the conversation's room.
func (d *Dispatcher) handleJoinConversation(c *Client, body json.RawMessage) {
	var payload conversationPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	d.rooms.Join(ConversationRoom(payload.ConversationID), c)

	if err := c.Enqueue(Envelope{Event: EventJoinConversation, Data: AckPayload{Success: true, ConversationID: payload.ConversationID}}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to queue joinConversation acknowledgment")
	}
}

// handleLeaveConversation unsubscribes the connection from the conversation's room.
func (d *Dispatcher) handleLeaveConversation(c *Client, body json.RawMessage) {
	var payload conversationPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	d.rooms.Leave(ConversationRoom(payload.ConversationID), c)

	if err := c.Enqueue(Envelope{Event: EventLeaveConversation, Data: AckPayload{Success: true, ConversationID: payload.ConversationID}}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to queue leaveConversation acknowledgment")
	}
}

// handleTyping broadcasts the ephemeral typing indicator to the conversation
// room, excluding the sender's own connection. Nothing is persisted.
func (d *Dispatcher) handleTyping(c *Client, body json.RawMessage) {
	var payload typingPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ConversationID == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	d.rooms.SendToRoom(ConversationRoom(payload.ConversationID), Envelope{
		Event: EventUserTyping,
		Data: TypingPayload{
			UserID:         c.userID,
			DisplayName:    c.displayName,
			ConversationID: payload.ConversationID,
			IsTyping:       payload.IsTyping,
		},
	}, c)
}

// containsParticipant reports whether userID appears in the participant list.
func containsParticipant(participants []store.UserRef, userID string) bool {
	for _, participant := range participants {
		if participant.ID == userID {
			return true
		}
	}
	return false
}

// storeError maps store-contract failures to client-facing error acknowledgments.
func storeError(err error) *errs.CustomError {
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		return errs.NewError(errs.ErrConversationNotFound)

	case errors.Is(err, store.ErrMessageNotFound):
		return errs.NewError(errs.ErrMessageNotFound)

	case errors.Is(err, store.ErrNotParticipant):
		return errs.NewError(errs.ErrNotParticipant)

	case errors.Is(err, store.ErrOwnMessageUnread):
		return errs.NewError(errs.ErrOwnMessageUnread)

	default:
		logx.Error(err, "Store call failed at dispatcher boundary")
		return errs.NewError(errs.ErrStoreFailure)
	}
}
