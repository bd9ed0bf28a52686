/*
Package store defines the synchronous contract the gateway consumes from the
message and user stores, together with the data types crossing that boundary.

The gateway never mutates conversation or message data directly; every write
goes through one of the contract operations below. A Postgres-backed
implementation lives in this package; tests substitute in-memory fakes.
*/
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations. The dispatcher maps these
// to client-facing error acknowledgments.
var (
	// ErrConversationNotFound is returned when the referenced conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned when the referenced message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotParticipant is returned when the caller is not a participant of the conversation.
	ErrNotParticipant = errors.New("caller is not a conversation participant")

	// ErrOwnMessageUnread is returned when a sender attempts to mark their own message as unread.
	ErrOwnMessageUnread = errors.New("sender cannot mark own message as unread")
)

// UserRef identifies a conversation participant.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Profile carries the identity fields used to resolve a user's display name.
type Profile struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email"`
}

// DisplayName resolves the name shown to other users.
// Fallback order: first+last name, username, email, "unknown".
func (p Profile) DisplayName() string {
	if p.FirstName != "" && p.LastName != "" {
		return p.FirstName + " " + p.LastName
	}
	if p.FirstName != "" {
		return p.FirstName
	}
	if p.Username != "" {
		return p.Username
	}
	if p.Email != "" {
		return p.Email
	}
	return "unknown"
}

// Attachment is a stored file reference attached to a message. The file bytes
// themselves live in external object storage and are never handled here.
type Attachment struct {
	ID       string `json:"id"`
	FileKey  string `json:"fileKey"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// AttachmentInput is the client-supplied attachment metadata on sendMessage.
type AttachmentInput struct {
	FileKey  string `json:"fileKey"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// Message is a persisted chat message. Read is interpreted as
// "read by the non-sender" (conversations have exactly two participants).
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Content        string       `json:"content,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Read           bool         `json:"read"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// ReadSummary reports the outcome of a bulk mark-conversation-read operation.
type ReadSummary struct {
	ConversationID string   `json:"conversationId"`
	UpdatedCount   int      `json:"updatedCount"`
	MessageIDs     []string `json:"messageIds"`
}

// MessageStore is the message-side contract consumed by the dispatcher.
type MessageStore interface {
	// CreateMessage persists a new message with optional content and attachments
	// and returns the stored row. The sender must be a conversation participant.
	CreateMessage(ctx context.Context, senderID, conversationID, content string, attachments []AttachmentInput) (Message, error)

	// ConversationParticipants returns both participants of the conversation.
	ConversationParticipants(ctx context.Context, conversationID string) ([]UserRef, error)

	// MarkMessageRead sets the read flag of a single message on behalf of callerID
	// and returns the updated row. Setting read=false on the caller's own message
	// fails with ErrOwnMessageUnread; setting read=true on it is a no-op success.
	MarkMessageRead(ctx context.Context, callerID, messageID string, read bool) (Message, error)

	// MarkConversationRead marks every unread message not sent by callerID as read.
	MarkConversationRead(ctx context.Context, callerID, conversationID string) (ReadSummary, error)
}

// UserStore is the user-side contract consumed by presence and the connection bootstrap.
type UserStore interface {
	// GetDisplayName returns the identity fields of a user for display-name resolution.
	GetDisplayName(ctx context.Context, userID string) (Profile, error)

	// MarkUserOffline records the user's offline transition. Idempotent.
	MarkUserOffline(ctx context.Context, userID string) error
}

// Store is the full contract the gateway depends on.
type Store interface {
	MessageStore
	UserStore
}
