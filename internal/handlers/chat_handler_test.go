package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ravi0js/directchat/internal/chat"
	"github.com/ravi0js/directchat/internal/models"
	"github.com/ravi0js/directchat/internal/realtime"
	"github.com/ravi0js/directchat/internal/services"
)

type stubChatService struct {
	calls           []string
	contactsResult  []models.ContactSummary
	historyResult   []models.Message
	historyErr      error
	sendResult      *chat.Delivery
	sendErr         error
	attachResult    *chat.Delivery
	attachErr       error
	searchResult    []models.Message
	searchTotal     int
	unreadResult    int
	urlResult       string
	markedViewed    int
	lastSelfID      int64
	lastOtherID     int64
	lastContent     models.MessageContent
	lastAttachment  services.AttachmentUpload
	lastBody        string
	lastSearchTerm  string
	lastSearchPage  int
	lastSearchLimit int
}

func (s *stubChatService) Contacts(_ context.Context, viewerID int64) ([]models.ContactSummary, error) {
	s.lastSelfID = viewerID
	return s.contactsResult, nil
}

func (s *stubChatService) History(_ context.Context, selfID, otherID int64) ([]models.Message, error) {
	s.calls = append(s.calls, "History")
	s.lastSelfID = selfID
	s.lastOtherID = otherID
	return s.historyResult, s.historyErr
}

func (s *stubChatService) SendMessage(_ context.Context, senderID, receiverID int64, content models.MessageContent) (*chat.Delivery, error) {
	s.lastSelfID = senderID
	s.lastOtherID = receiverID
	s.lastContent = content
	return s.sendResult, s.sendErr
}

func (s *stubChatService) SendAttachment(_ context.Context, senderID, receiverID int64, body string, upload services.AttachmentUpload) (*chat.Delivery, error) {
	s.lastSelfID = senderID
	s.lastOtherID = receiverID
	s.lastBody = body
	s.lastAttachment = upload
	return s.attachResult, s.attachErr
}

func (s *stubChatService) MarkViewed(_ context.Context, viewerID, otherID int64) (int64, error) {
	s.calls = append(s.calls, "MarkViewed")
	s.markedViewed++
	return 0, nil
}

func (s *stubChatService) Message(_ context.Context, id int64) (*models.Message, error) {
	return nil, chat.ErrMessageNotFound
}

func (s *stubChatService) Search(_ context.Context, selfID, otherID int64, term string, page, limit int) ([]models.Message, int, error) {
	s.lastSelfID = selfID
	s.lastOtherID = otherID
	s.lastSearchTerm = term
	s.lastSearchPage = page
	s.lastSearchLimit = limit
	return s.searchResult, s.searchTotal, nil
}

func (s *stubChatService) UnreadTotal(_ context.Context, userID int64) (int, error) {
	return s.unreadResult, nil
}

func (s *stubChatService) AttachmentURL(_ context.Context, path string) (string, error) {
	return s.urlResult, nil
}

func newTestApp(service chatApplicationService) (*fiber.App, *ChatHandler) {
	hub := realtime.NewHub()
	go hub.Run()
	handler := NewChatHandler(service, hub, "secret")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "42")
		return c.Next()
	})
	app.Get("/api/v1/contacts", handler.ListContacts)
	app.Get("/api/v1/unread", handler.UnreadTotal)
	app.Get("/api/v1/chat/:id", handler.OpenConversation)
	app.Post("/api/v1/chat/:id/messages", handler.SendMessage)
	app.Get("/api/v1/chat/:id/search", handler.SearchMessages)
	app.Post("/api/v1/chat/:id/typing", handler.NotifyTyping)

	return app, handler
}

func TestOpenConversationReturnsHistoryAndClearsBadge(t *testing.T) {
	service := &stubChatService{
		historyResult: []models.Message{
			{ID: 1, SenderID: 7, ReceiverID: 42, Body: "hi", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
			{ID: 2, SenderID: 42, ReceiverID: 7, Body: "hey", CreatedAt: time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)},
		},
	}
	app, _ := newTestApp(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/7", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSelfID != 42 || service.lastOtherID != 7 {
		t.Fatalf("unexpected participant forwarding: self=%d other=%d", service.lastSelfID, service.lastOtherID)
	}
	if service.markedViewed != 1 {
		t.Fatalf("expected open to clear unread once, got %d", service.markedViewed)
	}
	// The clear runs before the load so the response reflects the rows'
	// post-open read state.
	if len(service.calls) != 2 || service.calls[0] != "MarkViewed" || service.calls[1] != "History" {
		t.Fatalf("expected MarkViewed before History, got %v", service.calls)
	}

	var body struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Messages) != 2 || body.Messages[0].Body != "hi" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestSendMessageCreatesAndReturnsMessage(t *testing.T) {
	message := &models.Message{ID: 9, SenderID: 42, ReceiverID: 7, Body: "hello"}
	service := &stubChatService{
		sendResult: &chat.Delivery{
			Message:        message,
			Key:            chat.NewConversationKey(42, 7),
			ReceiverUnread: 1,
		},
	}
	app, _ := newTestApp(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/7/messages", strings.NewReader(`{"body":"hello"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastContent.Text != "hello" {
		t.Fatalf("expected content forwarded, got %q", service.lastContent.Text)
	}

	var body struct {
		Message models.Message `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Message.ID != 9 {
		t.Fatalf("unexpected message: %+v", body.Message)
	}
}

func TestSendMessageEmptyBodyRejected(t *testing.T) {
	service := &stubChatService{}
	app, _ := newTestApp(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/7/messages", strings.NewReader(`{"body":"   "}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if service.lastContent.Text != "" || service.lastSelfID != 0 {
		t.Fatal("empty send must never reach the service")
	}
}

func TestSendMessageUnknownRecipient(t *testing.T) {
	service := &stubChatService{sendErr: chat.ErrRecipientNotFound}
	app, _ := newTestApp(service)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/99/messages", strings.NewReader(`{"body":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSendMessageWithAttachment(t *testing.T) {
	message := &models.Message{
		ID:         5,
		SenderID:   42,
		ReceiverID: 7,
		Attachment: &models.Attachment{Path: "chat_files/x.png", OriginalName: "x.png", MimeType: "image/png"},
	}
	service := &stubChatService{
		attachResult: &chat.Delivery{
			Message:        message,
			Key:            chat.NewConversationKey(42, 7),
			ReceiverUnread: 3,
		},
	}
	app, _ := newTestApp(service)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "x.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("pngbytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/7/messages", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastAttachment.OriginalName != "x.png" {
		t.Fatalf("expected upload forwarded, got %q", service.lastAttachment.OriginalName)
	}
}

func TestSearchMessagesReturnsPagination(t *testing.T) {
	service := &stubChatService{
		searchResult: []models.Message{{ID: 3, SenderID: 7, ReceiverID: 42, Body: "meeting at noon"}},
		searchTotal:  11,
	}
	app, _ := newTestApp(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/7/search?q=meeting&page=2&limit=5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSearchTerm != "meeting" || service.lastSearchPage != 2 || service.lastSearchLimit != 5 {
		t.Fatalf("unexpected forwarded search: term=%q page=%d limit=%d",
			service.lastSearchTerm, service.lastSearchPage, service.lastSearchLimit)
	}

	var body struct {
		Messages   []models.Message      `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Messages) != 1 || body.Pagination.Total != 11 || body.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected response: %+v %+v", body.Messages, body.Pagination)
	}
}

func TestNotifyTypingAlwaysSucceeds(t *testing.T) {
	app, _ := newTestApp(&stubChatService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/7/typing", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestListContactsReturnsRoster(t *testing.T) {
	service := &stubChatService{
		contactsResult: []models.ContactSummary{
			{
				User:        models.User{ID: 7, Name: "Bob"},
				LastMessage: &models.Message{ID: 4, SenderID: 7, ReceiverID: 42, Body: "see you"},
				UnreadCount: 2,
			},
		},
	}
	app, _ := newTestApp(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Contacts []models.ContactSummary `json:"contacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Contacts) != 1 || body.Contacts[0].UnreadCount != 2 {
		t.Fatalf("unexpected contacts: %+v", body.Contacts)
	}
}

func TestUnreadTotalEndpoint(t *testing.T) {
	app, _ := newTestApp(&stubChatService{unreadResult: 6})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unread", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Unread int `json:"unread"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Unread != 6 {
		t.Fatalf("expected unread 6, got %d", body.Unread)
	}
}
