package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ravi0js/directchat/internal/chat"
	"github.com/ravi0js/directchat/internal/models"
)

const attachmentFolder = "chat_files"

var ErrStorageNotConfigured = errors.New("attachment storage not configured")

type messageStore interface {
	Create(ctx context.Context, senderID, receiverID int64, content models.MessageContent) (*models.Message, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	ListConversation(ctx context.Context, userA, userB int64) ([]models.Message, error)
	SearchConversation(ctx context.Context, userA, userB int64, term string, limit, offset int) ([]models.Message, int, error)
	MarkConversationRead(ctx context.Context, receiverID, senderID int64) (int64, error)
	CountUnread(ctx context.Context, receiverID int64) (int, error)
	CountUnreadFrom(ctx context.Context, receiverID, senderID int64) (int, error)
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListContacts(ctx context.Context, viewerID int64) ([]models.ContactSummary, error)
}

// AttachmentUpload is a file a sender attached to a message, not yet
// persisted.
type AttachmentUpload struct {
	Content      io.Reader
	OriginalName string
	MimeType     string
}

// ChatService is the store-facing half of the chat core: it persists
// messages, answers history and unread queries, and leaves event
// publishing to the session and transport layers.
type ChatService struct {
	messages messageStore
	users    userReader
	storage  StorageService
}

func NewChatService(messages messageStore, users userReader, storage StorageService) *ChatService {
	return &ChatService{
		messages: messages,
		users:    users,
		storage:  storage,
	}
}

func (s *ChatService) History(ctx context.Context, selfID, otherID int64) ([]models.Message, error) {
	if selfID <= 0 || otherID <= 0 || selfID == otherID {
		return nil, chat.ErrInvalidInput
	}
	return s.messages.ListConversation(ctx, selfID, otherID)
}

// SendMessage validates and persists one message, then recomputes the
// receiver's unread count from this sender. Nothing is published here;
// the caller owns fan-out.
func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID int64,
	receiverID int64,
	content models.MessageContent,
) (*chat.Delivery, error) {
	if senderID <= 0 || receiverID <= 0 || senderID == receiverID {
		return nil, chat.ErrInvalidInput
	}
	if content.Empty() {
		return nil, chat.ErrEmptyMessage
	}

	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrRecipientNotFound
		}
		return nil, err
	}

	message, err := s.messages.Create(ctx, senderID, receiverID, content)
	if err != nil {
		return nil, err
	}

	unread, err := s.messages.CountUnreadFrom(ctx, receiverID, senderID)
	if err != nil {
		return nil, err
	}

	return &chat.Delivery{
		Message:        message,
		Key:            chat.NewConversationKey(senderID, receiverID),
		ReceiverUnread: unread,
	}, nil
}

// SendAttachment stores the file first and only then creates the
// message row, so a failed upload never leaves a message pointing at a
// missing file. If the row insert fails the uploaded object is removed
// best-effort.
func (s *ChatService) SendAttachment(
	ctx context.Context,
	senderID int64,
	receiverID int64,
	body string,
	upload AttachmentUpload,
) (*chat.Delivery, error) {
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}
	if upload.Content == nil {
		return nil, chat.ErrInvalidInput
	}

	filename := uuid.NewString() + strings.ToLower(filepath.Ext(upload.OriginalName))
	storedPath, err := s.storage.Store(ctx, upload.Content, filename, attachmentFolder)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	content, err := models.NewMessageContent(body, &models.Attachment{
		Path:         storedPath,
		OriginalName: upload.OriginalName,
		MimeType:     upload.MimeType,
	})
	if err != nil {
		return nil, chat.ErrEmptyMessage
	}

	delivery, err := s.SendMessage(ctx, senderID, receiverID, content)
	if err != nil {
		_ = s.storage.Delete(ctx, storedPath)
		return nil, err
	}

	return delivery, nil
}

// MarkViewed flips every unread message from otherID to viewerID to
// read. Idempotent; the second of two racing calls affects zero rows.
func (s *ChatService) MarkViewed(ctx context.Context, viewerID, otherID int64) (int64, error) {
	if viewerID <= 0 || otherID <= 0 {
		return 0, chat.ErrInvalidInput
	}
	return s.messages.MarkConversationRead(ctx, viewerID, otherID)
}

func (s *ChatService) Message(ctx context.Context, id int64) (*models.Message, error) {
	if id <= 0 {
		return nil, chat.ErrInvalidInput
	}

	message, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrMessageNotFound
		}
		return nil, err
	}
	return message, nil
}

func (s *ChatService) Search(
	ctx context.Context,
	selfID int64,
	otherID int64,
	term string,
	page int,
	limit int,
) ([]models.Message, int, error) {
	if selfID <= 0 || otherID <= 0 || page <= 0 || limit <= 0 {
		return nil, 0, chat.ErrInvalidInput
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, 0, chat.ErrInvalidInput
	}

	return s.messages.SearchConversation(ctx, selfID, otherID, term, limit, (page-1)*limit)
}

func (s *ChatService) Contacts(ctx context.Context, viewerID int64) ([]models.ContactSummary, error) {
	if viewerID <= 0 {
		return nil, chat.ErrInvalidInput
	}
	return s.users.ListContacts(ctx, viewerID)
}

func (s *ChatService) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, chat.ErrInvalidInput
	}
	return s.messages.CountUnread(ctx, userID)
}

func (s *ChatService) AttachmentURL(ctx context.Context, path string) (string, error) {
	if s.storage == nil {
		return "", ErrStorageNotConfigured
	}
	if strings.TrimSpace(path) == "" {
		return "", chat.ErrInvalidInput
	}
	return s.storage.Resolve(ctx, path)
}
