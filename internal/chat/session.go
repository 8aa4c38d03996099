package chat

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/ravi0js/directchat/internal/models"
	"github.com/ravi0js/directchat/internal/realtime"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateActive
)

// Delivery is what a successful send produces: the persisted message,
// the conversation it belongs to, and the receiver's recomputed unread
// count from this sender.
type Delivery struct {
	Message        *models.Message
	Key            ConversationKey
	ReceiverUnread int
}

// Service is the store-facing surface a session needs.
type Service interface {
	History(ctx context.Context, selfID, otherID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, senderID, receiverID int64, content models.MessageContent) (*Delivery, error)
	MarkViewed(ctx context.Context, viewerID, otherID int64) (int64, error)
	Message(ctx context.Context, id int64) (*models.Message, error)
}

// Bus publishes to a user's private channel. Session bus handles are
// origin-excluding, so a session never hears its own publishes.
type Bus interface {
	Publish(userID int64, event realtime.Event)
}

// Session is the controller for one connected client. At most one
// conversation is active at a time; its view model (the running message
// list) is owned exclusively by this session and updated either by the
// user's own actions or by events delivered off the bus.
type Session struct {
	mu      sync.Mutex
	state   State
	selfID  int64
	otherID int64
	key     ConversationKey
	view    []models.Message
	service Service
	bus     Bus
}

func NewSession(selfID int64, service Service, bus Bus) *Session {
	return &Session{
		state:   StateIdle,
		selfID:  selfID,
		service: service,
		bus:     bus,
	}
}

// Open activates a conversation view: resolve the pair key, clear the
// viewer's unread badge for the counterpart, and load the history.
// The returned slice is the initial view model.
func (s *Session) Open(ctx context.Context, otherID int64) ([]models.Message, error) {
	if otherID <= 0 || otherID == s.selfID {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateLoading
	s.otherID = otherID
	s.key = NewConversationKey(s.selfID, otherID)

	// Clear before loading so the view never holds stale unread flags.
	s.clearUnreadLocked(ctx)

	history, err := s.service.History(ctx, s.selfID, otherID)
	if err != nil {
		s.state = StateIdle
		return nil, err
	}

	s.view = history
	s.state = StateActive

	return s.snapshotLocked(), nil
}

// Send persists a message and echoes it into the local view without
// waiting for any fan-out round trip. Publishes go to the receiver's
// channel only; the sender already holds the local copy.
func (s *Session) Send(ctx context.Context, receiverID int64, content models.MessageContent) (*models.Message, error) {
	if content.Empty() {
		return nil, ErrEmptyMessage
	}

	delivery, err := s.service.SendMessage(ctx, s.selfID, receiverID, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateActive && s.key == delivery.Key {
		s.view = append(s.view, *delivery.Message)
	}
	s.mu.Unlock()

	s.bus.Publish(receiverID, realtime.NewMessageSent(delivery.Message))
	s.bus.Publish(receiverID, realtime.NewUnreadCountChanged(delivery.Key.String(), delivery.ReceiverUnread))

	return delivery.Message, nil
}

// Typing emits a best-effort hint to the counterpart. No state, no
// guarantee; receivers expire it client-side.
func (s *Session) Typing(receiverID int64) {
	if receiverID <= 0 || receiverID == s.selfID {
		return
	}
	s.bus.Publish(receiverID, realtime.NewUserTyping(s.selfID))
}

// HandleEvent processes one event delivered off the bus and reports
// whether it should be forwarded to the client. Message events are
// re-fetched by id so a stale payload can never corrupt the view;
// a message that no longer exists is silently dropped.
func (s *Session) HandleEvent(ctx context.Context, event realtime.Event) (realtime.Event, bool) {
	if event.Type != realtime.EventMessageSent {
		return event, true
	}
	if event.Message == nil {
		return realtime.Event{}, false
	}

	message, err := s.service.Message(ctx, event.Message.ID)
	if err != nil {
		if !errors.Is(err, ErrMessageNotFound) {
			log.Printf("chat session refetch message %d: %v", event.Message.ID, err)
		}
		return realtime.Event{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive && s.key == NewConversationKey(message.SenderID, message.ReceiverID) {
		// Actively viewing: the badge must never show, so the new
		// message is marked read the moment it lands.
		s.clearUnreadLocked(ctx)
		message.IsRead = true
		s.view = append(s.view, *message)
	}

	event.Message = message
	return event, true
}

// Render re-runs the view-side read clear. Deliberately a no-op unless
// a conversation is active; the conditional bulk update underneath
// makes repeated calls cheap.
func (s *Session) Render(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateActive {
		s.clearUnreadLocked(ctx)
	}
}

// Close drops the active view. The session can be reopened.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.otherID = 0
	s.key = ConversationKey{}
	s.view = nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a snapshot of the current view model.
func (s *Session) View() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []models.Message {
	snapshot := make([]models.Message, len(s.view))
	copy(snapshot, s.view)
	return snapshot
}

// clearUnreadLocked marks everything from the counterpart as read and
// always publishes a zero badge to the viewer's own channel, so any
// other open session of the same user drops its count too.
func (s *Session) clearUnreadLocked(ctx context.Context) {
	if _, err := s.service.MarkViewed(ctx, s.selfID, s.otherID); err != nil {
		log.Printf("chat session mark viewed %d/%d: %v", s.selfID, s.otherID, err)
		return
	}
	s.bus.Publish(s.selfID, realtime.NewUnreadCountChanged(s.key.String(), 0))
}
