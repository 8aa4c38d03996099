package repository

import (
	"context"
	"database/sql"

	"github.com/ravi0js/directchat/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, user.Name, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListContacts returns every other user with the last message exchanged
// with the viewer and the viewer's unread count from them, most recently
// active first.
func (r *UserRepository) ListContacts(ctx context.Context, viewerID int64) ([]models.ContactSummary, error) {
	query := `
		SELECT
			u.id,
			u.name,
			u.email,
			u.created_at,
			u.updated_at,
			lm.id,
			lm.sender_id,
			lm.receiver_id,
			lm.body,
			lm.file_path,
			lm.file_original_name,
			lm.file_mime,
			lm.is_read,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM users u
		LEFT JOIN LATERAL (
			SELECT id, sender_id, receiver_id, body, file_path, file_original_name, file_mime, is_read, created_at
			FROM messages
			WHERE (sender_id = u.id AND receiver_id = $1)
			   OR (sender_id = $1 AND receiver_id = u.id)
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE receiver_id = $1
			  AND sender_id = u.id
			  AND is_read = FALSE
		) uc ON TRUE
		WHERE u.id <> $1
		ORDER BY COALESCE(lm.created_at, u.created_at) DESC, u.id ASC
	`

	rows, err := r.db.Query(ctx, query, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]models.ContactSummary, 0)
	for rows.Next() {
		var contact models.ContactSummary
		var messageID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageReceiverID sql.NullInt64
		var messageBody sql.NullString
		var filePath sql.NullString
		var fileOriginalName sql.NullString
		var fileMime sql.NullString
		var messageIsRead sql.NullBool
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&contact.ID,
			&contact.Name,
			&contact.Email,
			&contact.CreatedAt,
			&contact.UpdatedAt,
			&messageID,
			&messageSenderID,
			&messageReceiverID,
			&messageBody,
			&filePath,
			&fileOriginalName,
			&fileMime,
			&messageIsRead,
			&messageCreatedAt,
			&contact.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			contact.LastMessage = &models.Message{
				ID:         messageID.Int64,
				SenderID:   messageSenderID.Int64,
				ReceiverID: messageReceiverID.Int64,
				Body:       messageBody.String,
				IsRead:     messageIsRead.Bool,
				CreatedAt:  messageCreatedAt.Time,
			}
			if filePath.Valid {
				contact.LastMessage.Attachment = &models.Attachment{
					Path:         filePath.String,
					OriginalName: fileOriginalName.String,
					MimeType:     fileMime.String,
				}
			}
		}

		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return contacts, nil
}
