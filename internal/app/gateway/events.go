/*
Package gateway contains the core logic of the real-time gateway: connection and
room registries, presence broadcasting, liveness probing, and the dispatcher that
routes inbound client events.

This file defines the wire envelope and the event vocabulary exchanged with clients.
*/
package gateway

import (
	"encoding/json"

	"chatgate/internal/app/store"
)

// Client → server events.
const (
	EventSendMessage            = "sendMessage"
	EventMarkAsRead             = "markAsRead"
	EventMarkConversationAsRead = "markConversationAsRead"
	EventJoinConversation       = "joinConversation"
	EventLeaveConversation      = "leaveConversation"
	EventTyping                 = "typing"
	EventPong                   = "pong"
)

// Server → client events.
const (
	EventNewMessage                    = "newMessage"
	EventMessageReadStatusChanged      = "messageReadStatusChanged"
	EventConversationReadStatusChanged = "conversationReadStatusChanged"
	EventUserTyping                    = "userTyping"
	EventUserOnline                    = "userOnline"
	EventUserOffline                   = "userOffline"
	EventPing                          = "ping"
	EventError                         = "error"
)

// Envelope is the outbound wire frame: an event name plus its payload.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inboundFrame is the inbound wire frame. Clients may nest the payload under
// either "payload" or "data"; both are accepted.
type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// body returns whichever payload field the client populated.
func (f inboundFrame) body() json.RawMessage {
	if len(f.Payload) > 0 {
		return f.Payload
	}
	return f.Data
}

// sendMessagePayload is the inbound payload of a sendMessage event.
type sendMessagePayload struct {
	ConversationID string                  `json:"conversationId"`
	Content        string                  `json:"content"`
	Attachments    []store.AttachmentInput `json:"attachments"`
}

// markAsReadPayload is the inbound payload of a markAsRead event.
// Read is a pointer so a frame omitting the flag is rejected instead of
// silently defaulting to unread.
type markAsReadPayload struct {
	MessageID string `json:"messageId"`
	Read      *bool  `json:"read"`
}

// conversationPayload is shared by markConversationAsRead, joinConversation and leaveConversation.
type conversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// typingPayload is the inbound payload of a typing event.
type typingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// NewMessagePayload wraps a delivered message for the newMessage event.
type NewMessagePayload struct {
	Message store.Message `json:"message"`
}

// ReadStatusPayload announces a single message's read-flag change.
type ReadStatusPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Read           bool   `json:"read"`
}

// ConversationReadPayload summarizes a bulk mark-conversation-read.
type ConversationReadPayload struct {
	ConversationID string `json:"conversationId"`
	UpdatedCount   int    `json:"updatedCount"`
}

// TypingPayload announces a typing-state change to a conversation room.
type TypingPayload struct {
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// PresencePayload announces a user's online/offline transition.
type PresencePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// AckPayload is the success acknowledgment sent back to the originating connection.
type AckPayload struct {
	Success        bool           `json:"success"`
	ConversationID string         `json:"conversationId,omitempty"`
	Message        *store.Message `json:"message,omitempty"`
}

// ErrorPayload is the error acknowledgment sent back to the originating connection only.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// BridgeEnvelope is the payload published on the broadcast bridge after a
// successful sendMessage so sibling instances can deliver locally.
type BridgeEnvelope struct {
	Origin         string        `json:"origin"`
	Message        store.Message `json:"message"`
	ParticipantIDs []string      `json:"participantIds"`
}
