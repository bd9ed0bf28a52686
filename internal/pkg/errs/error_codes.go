/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the gateway and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request or event parameter validation failed.
	ErrInvalidParams = 1001

	// ErrMalformedFrame indicates that an inbound WebSocket frame could not be parsed.
	ErrMalformedFrame = 1002

	// ErrUnsupportedEvent indicates that the client sent an event name the gateway does not handle.
	ErrUnsupportedEvent = 1003

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Conversation and Message Business Logic Errors
const (
	// ErrConversationNotFound indicates that the referenced conversation does not exist.
	ErrConversationNotFound = 2101

	// ErrNotParticipant indicates that the caller is not a participant of the target conversation.
	ErrNotParticipant = 2102

	// ErrEmptyMessage indicates a sendMessage with neither text content nor attachments.
	ErrEmptyMessage = 2201

	// ErrAttachmentCountInvalid indicates that the number of attachments exceeded the per-message limit.
	ErrAttachmentCountInvalid = 2202

	// ErrAttachmentTypeInvalid indicates an attachment with a disallowed or mismatched file type.
	ErrAttachmentTypeInvalid = 2203

	// ErrFileSizeTooLarge indicates an attachment whose declared size exceeds the limit.
	ErrFileSizeTooLarge = 2204

	// ErrMessageContentTooLong indicates that the text content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2205

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = 2301

	// ErrOwnMessageUnread indicates an attempt by a sender to mark their own message as unread.
	ErrOwnMessageUnread = 2302
)

// 3xxx: Session and Security Errors
const (
	// ErrUnauthorized indicates a missing or unverifiable bearer token.
	ErrUnauthorized = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreFailure indicates that a message-store or user-store call failed.
	ErrStoreFailure = 5001
)
