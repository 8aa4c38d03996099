package realtime

import "github.com/ravi0js/directchat/internal/models"

type EventType string

const (
	// EventMessageSent carries a freshly persisted message to the
	// receiver's sessions.
	EventMessageSent EventType = "message.sent"
	// EventUnreadCountChanged announces a recomputed unread badge for
	// one conversation.
	EventUnreadCountChanged EventType = "unread.changed"
	// EventUserTyping is a best-effort typing hint; clients expire it on
	// their own after a couple of seconds.
	EventUserTyping EventType = "user.typing"
)

// Event is the envelope pushed over a user's private channel. Only the
// fields relevant to Type are set.
type Event struct {
	Type         EventType       `json:"type"`
	Message      *models.Message `json:"message,omitempty"`
	Conversation string          `json:"conversation,omitempty"`
	Count        int             `json:"count,omitempty"`
	From         int64           `json:"from,omitempty"`
}

func NewMessageSent(message *models.Message) Event {
	return Event{Type: EventMessageSent, Message: message}
}

func NewUnreadCountChanged(conversation string, count int) Event {
	return Event{Type: EventUnreadCountChanged, Conversation: conversation, Count: count}
}

func NewUserTyping(from int64) Event {
	return Event{Type: EventUserTyping, From: from}
}
