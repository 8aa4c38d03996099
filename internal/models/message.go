package models

import (
	"errors"
	"strings"
	"time"
)

var ErrEmptyContent = errors.New("message has neither text nor attachment")

// Attachment references a file persisted by the storage service. Path is
// the storage-internal object path, not a public URL.
type Attachment struct {
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
}

// MessageContent is what a sender supplies when posting a message: text,
// an attachment, or both. Construct it through NewMessageContent so an
// all-empty payload can never reach the store.
type MessageContent struct {
	Text       string
	Attachment *Attachment
}

func NewMessageContent(text string, attachment *Attachment) (MessageContent, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && attachment == nil {
		return MessageContent{}, ErrEmptyContent
	}
	return MessageContent{Text: trimmed, Attachment: attachment}, nil
}

func (c MessageContent) Empty() bool {
	return c.Text == "" && c.Attachment == nil
}

type Message struct {
	ID         int64       `json:"id"`
	SenderID   int64       `json:"sender_id"`
	ReceiverID int64       `json:"receiver_id"`
	Body       string      `json:"body,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsRead     bool        `json:"is_read"`
	CreatedAt  time.Time   `json:"created_at"`
}
