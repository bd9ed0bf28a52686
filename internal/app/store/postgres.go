package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements the Store contract on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an initialized connection pool (see NewPool) as a Store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// participants loads the two participant ids of a conversation.
func (s *Postgres) participants(ctx context.Context, conversationID string) (userA, userB string, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT user_a, user_b FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&userA, &userB)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrConversationNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	return userA, userB, nil
}

// CreateMessage persists the message row and its attachment metadata in one transaction.
func (s *Postgres) CreateMessage(ctx context.Context, senderID, conversationID, content string, attachments []AttachmentInput) (Message, error) {
	userA, userB, err := s.participants(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}

	if senderID != userA && senderID != userB {
		return Message{}, ErrNotParticipant
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, read, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	for _, input := range attachments {
		attachment := Attachment{
			ID:       uuid.NewString(),
			FileKey:  input.FileKey,
			FileName: input.FileName,
			MimeType: input.MimeType,
			FileSize: input.FileSize,
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO message_attachments (id, message_id, file_key, file_name, mime_type, file_size)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			attachment.ID, msg.ID, attachment.FileKey, attachment.FileName, attachment.MimeType, attachment.FileSize,
		)
		if err != nil {
			return Message{}, fmt.Errorf("failed to insert attachment: %w", err)
		}

		msg.Attachments = append(msg.Attachments, attachment)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("failed to commit message: %w", err)
	}

	return msg, nil
}

// ConversationParticipants returns both participants of the conversation.
func (s *Postgres) ConversationParticipants(ctx context.Context, conversationID string) ([]UserRef, error) {
	userA, userB, err := s.participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, username FROM users WHERE id = $1 OR id = $2`,
		userA, userB,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	refs := make([]UserRef, 0, 2)
	for rows.Next() {
		var ref UserRef
		if err := rows.Scan(&ref.ID, &ref.Username); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// MarkMessageRead sets the read flag of one message on behalf of callerID.
// A sender marking their own message as read is treated as a no-op success;
// marking it as unread is rejected with ErrOwnMessageUnread.
func (s *Postgres) MarkMessageRead(ctx context.Context, callerID, messageID string, read bool) (Message, error) {
	var msg Message
	var userA, userB string

	err := s.pool.QueryRow(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.read, m.created_at, c.user_a, c.user_b
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE m.id = $1`,
		messageID,
	).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Read, &msg.CreatedAt, &userA, &userB)

	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to load message %s: %w", messageID, err)
	}

	if callerID != userA && callerID != userB {
		return Message{}, ErrNotParticipant
	}

	if callerID == msg.SenderID {
		if !read {
			return Message{}, ErrOwnMessageUnread
		}
		// Sender marking own message as read changes nothing.
		return s.withAttachments(ctx, msg)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE messages SET read = $2 WHERE id = $1`,
		messageID, read,
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to update read flag: %w", err)
	}

	msg.Read = read
	return s.withAttachments(ctx, msg)
}

// MarkConversationRead marks every unread message not sent by callerID as read.
func (s *Postgres) MarkConversationRead(ctx context.Context, callerID, conversationID string) (ReadSummary, error) {
	userA, userB, err := s.participants(ctx, conversationID)
	if err != nil {
		return ReadSummary{}, err
	}

	if callerID != userA && callerID != userB {
		return ReadSummary{}, ErrNotParticipant
	}

	rows, err := s.pool.Query(ctx,
		`UPDATE messages SET read = TRUE
		 WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read
		 RETURNING id`,
		conversationID, callerID,
	)
	if err != nil {
		return ReadSummary{}, fmt.Errorf("failed to bulk-mark conversation read: %w", err)
	}
	defer rows.Close()

	summary := ReadSummary{ConversationID: conversationID}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ReadSummary{}, fmt.Errorf("failed to scan updated message id: %w", err)
		}
		summary.MessageIDs = append(summary.MessageIDs, id)
	}

	summary.UpdatedCount = len(summary.MessageIDs)
	return summary, rows.Err()
}

// GetDisplayName returns the identity fields used for display-name resolution.
func (s *Postgres) GetDisplayName(ctx context.Context, userID string) (Profile, error) {
	var profile Profile

	err := s.pool.QueryRow(ctx,
		`SELECT first_name, last_name, username, email FROM users WHERE id = $1`,
		userID,
	).Scan(&profile.FirstName, &profile.LastName, &profile.Username, &profile.Email)

	if err != nil {
		return Profile{}, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	return profile, nil
}

// MarkUserOffline records the offline transition and the last-seen timestamp.
func (s *Postgres) MarkUserOffline(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET is_online = FALSE, last_seen = now() WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark user %s offline: %w", userID, err)
	}

	return nil
}

// withAttachments loads and attaches the attachment rows of the message.
func (s *Postgres) withAttachments(ctx context.Context, msg Message) (Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, file_key, file_name, mime_type, file_size
		 FROM message_attachments WHERE message_id = $1`,
		msg.ID,
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.FileKey, &a.FileName, &a.MimeType, &a.FileSize); err != nil {
			return Message{}, fmt.Errorf("failed to scan attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, a)
	}

	return msg, rows.Err()
}
