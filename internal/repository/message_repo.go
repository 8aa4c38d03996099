package repository

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"

	"github.com/ravi0js/directchat/internal/models"
)

const messageColumns = `id, sender_id, receiver_id, body, file_path, file_original_name, file_mime, is_read, created_at`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists one message. The messages table carries a CHECK
// constraint requiring body or file_path, so an empty payload is
// rejected even if it slips past the service layer.
func (r *MessageRepository) Create(
	ctx context.Context,
	senderID int64,
	receiverID int64,
	content models.MessageContent,
) (*models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, body, file_path, file_original_name, file_mime, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING ` + messageColumns

	var body any
	if content.Text != "" {
		body = content.Text
	}
	var filePath, fileOriginalName, fileMime any
	if content.Attachment != nil {
		filePath = content.Attachment.Path
		fileOriginalName = content.Attachment.OriginalName
		fileMime = content.Attachment.MimeType
	}

	row := r.db.QueryRow(ctx, query, senderID, receiverID, body, filePath, fileOriginalName, fileMime)
	return scanMessage(row)
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`
	return scanMessage(r.db.QueryRow(ctx, query, id))
}

// ListConversation returns every message between the two users, in both
// directions, oldest first. The BIGSERIAL id breaks created_at ties so
// two sends in the same instant still have one defined order.
func (r *MessageRepository) ListConversation(
	ctx context.Context,
	userA int64,
	userB int64,
) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// SearchConversation filters the conversation's message bodies with a
// case-insensitive substring match, newest first.
func (r *MessageRepository) SearchConversation(
	ctx context.Context,
	userA int64,
	userB int64,
	term string,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	pattern := "%" + term + "%"

	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1))
		  AND body ILIKE $3
	`
	var total int
	if err := r.db.QueryRow(ctx, totalQuery, userA, userB, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1))
		  AND body ILIKE $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.Query(ctx, query, userA, userB, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// MarkConversationRead flips every unread message from senderID to
// receiverID to read and reports how many rows changed. The is_read
// guard makes it idempotent and safe under concurrent callers: each
// row is counted by exactly one of them.
func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	receiverID int64,
	senderID int64,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE receiver_id = $1
		  AND sender_id = $2
		  AND is_read = FALSE
	`, receiverID, senderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread reports the receiver's unread total across all senders.
func (r *MessageRepository) CountUnread(ctx context.Context, receiverID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE receiver_id = $1
		  AND is_read = FALSE
	`, receiverID).Scan(&count)
	return count, err
}

// CountUnreadFrom reports the receiver's unread count from one sender.
func (r *MessageRepository) CountUnreadFrom(
	ctx context.Context,
	receiverID int64,
	senderID int64,
) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE receiver_id = $1
		  AND sender_id = $2
		  AND is_read = FALSE
	`, receiverID, senderID).Scan(&count)
	return count, err
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	var body sql.NullString
	var filePath sql.NullString
	var fileOriginalName sql.NullString
	var fileMime sql.NullString

	err := row.Scan(
		&message.ID,
		&message.SenderID,
		&message.ReceiverID,
		&body,
		&filePath,
		&fileOriginalName,
		&fileMime,
		&message.IsRead,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	message.Body = body.String
	if filePath.Valid {
		message.Attachment = &models.Attachment{
			Path:         filePath.String,
			OriginalName: fileOriginalName.String,
			MimeType:     fileMime.String,
		}
	}

	return &message, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		var body sql.NullString
		var filePath sql.NullString
		var fileOriginalName sql.NullString
		var fileMime sql.NullString

		if err := rows.Scan(
			&message.ID,
			&message.SenderID,
			&message.ReceiverID,
			&body,
			&filePath,
			&fileOriginalName,
			&fileMime,
			&message.IsRead,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}

		message.Body = body.String
		if filePath.Valid {
			message.Attachment = &models.Attachment{
				Path:         filePath.String,
				OriginalName: fileOriginalName.String,
				MimeType:     fileMime.String,
			}
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
