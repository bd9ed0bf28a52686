/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and WebSocket error acknowledgments.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrMalformedFrame:    {Code: ErrMalformedFrame, Message: "Message could not be parsed."},
	ErrUnsupportedEvent:  {Code: ErrUnsupportedEvent, Message: "Unsupported event type."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Conversation and Message Business Logic Errors
	ErrConversationNotFound:   {Code: ErrConversationNotFound, Message: "Conversation not found."},
	ErrNotParticipant:         {Code: ErrNotParticipant, Message: "You are not a participant of this conversation."},
	ErrEmptyMessage:           {Code: ErrEmptyMessage, Message: "Message must contain text or attachments."},
	ErrAttachmentCountInvalid: {Code: ErrAttachmentCountInvalid, Message: "A message can carry at most %d attachments."},
	ErrAttachmentTypeInvalid:  {Code: ErrAttachmentTypeInvalid, Message: "Invalid attachment."},
	ErrFileSizeTooLarge:       {Code: ErrFileSizeTooLarge, Message: "File is too large."},
	ErrMessageContentTooLong:  {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageNotFound:        {Code: ErrMessageNotFound, Message: "Message not found."},
	ErrOwnMessageUnread:       {Code: ErrOwnMessageUnread, Message: "You cannot mark your own message as unread."},

	// 3xxx: Session and Security Errors
	ErrUnauthorized: {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:      {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreFailure: {Code: ErrStoreFailure, Message: "Could not complete the operation. Please try again."},
}
