package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/ravi0js/directchat/internal/chat"
	"github.com/ravi0js/directchat/internal/models"
	"github.com/ravi0js/directchat/internal/realtime"
	"github.com/ravi0js/directchat/internal/services"
)

type chatApplicationService interface {
	Contacts(ctx context.Context, viewerID int64) ([]models.ContactSummary, error)
	History(ctx context.Context, selfID, otherID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, senderID, receiverID int64, content models.MessageContent) (*chat.Delivery, error)
	SendAttachment(ctx context.Context, senderID, receiverID int64, body string, upload services.AttachmentUpload) (*chat.Delivery, error)
	MarkViewed(ctx context.Context, viewerID, otherID int64) (int64, error)
	Message(ctx context.Context, id int64) (*models.Message, error)
	Search(ctx context.Context, selfID, otherID int64, term string, page, limit int) ([]models.Message, int, error)
	UnreadTotal(ctx context.Context, userID int64) (int, error)
	AttachmentURL(ctx context.Context, path string) (string, error)
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *realtime.Hub
	jwtSecret string
}

func NewChatHandler(service chatApplicationService, hub *realtime.Hub, jwtSecret string) *ChatHandler {
	return &ChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

func (h *ChatHandler) ListContacts(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	contacts, err := h.service.Contacts(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"contacts": contacts})
}

// OpenConversation is the HTTP mount path: clear the viewer's badge
// for this counterpart, announce the zero count to the viewer's other
// sessions, and return the full history.
func (h *ChatHandler) OpenConversation(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	otherID, err := parseCounterpartID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	// Clear before loading so the returned rows already carry their
	// post-open read flags.
	if _, err := h.service.MarkViewed(c.Context(), userID, otherID); err != nil {
		return mapChatError(c, err)
	}
	key := chat.NewConversationKey(userID, otherID)
	h.hub.Publish(userID, realtime.NewUnreadCountChanged(key.String(), 0))

	messages, err := h.service.History(c.Context(), userID, otherID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	receiverID, err := parseCounterpartID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	body := strings.TrimSpace(c.FormValue("body"))
	if body == "" {
		var req struct {
			Body string `json:"body"`
		}
		if err := c.BodyParser(&req); err == nil {
			body = strings.TrimSpace(req.Body)
		}
	}

	var delivery *chat.Delivery
	if fileHeader, fileErr := c.FormFile("file"); fileErr == nil && fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unreadable upload"})
		}
		defer file.Close()

		delivery, err = h.service.SendAttachment(c.Context(), userID, receiverID, body, services.AttachmentUpload{
			Content:      file,
			OriginalName: fileHeader.Filename,
			MimeType:     fileHeader.Header.Get("Content-Type"),
		})
		if err != nil {
			return mapChatError(c, err)
		}
	} else {
		content, err := models.NewMessageContent(body, nil)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message is empty"})
		}

		delivery, err = h.service.SendMessage(c.Context(), userID, receiverID, content)
		if err != nil {
			return mapChatError(c, err)
		}
	}

	h.hub.Publish(receiverID, realtime.NewMessageSent(delivery.Message))
	h.hub.Publish(receiverID, realtime.NewUnreadCountChanged(delivery.Key.String(), delivery.ReceiverUnread))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func (h *ChatHandler) SearchMessages(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	otherID, err := parseCounterpartID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	term := c.Query("q")
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.Search(c.Context(), userID, otherID, term, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

// NotifyTyping publishes a best-effort typing hint to the counterpart.
// Always 204: delivery is never guaranteed and never an error.
func (h *ChatHandler) NotifyTyping(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	otherID, err := parseCounterpartID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	if otherID != userID {
		h.hub.Publish(otherID, realtime.NewUserTyping(userID))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) UnreadTotal(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	count, err := h.service.UnreadTotal(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"unread": count})
}

func (h *ChatHandler) AttachmentURL(c *fiber.Ctx) error {
	if _, err := currentUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	path := c.Query("path")
	url, err := h.service.AttachmentURL(c.Context(), path)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"url": url})
}

func parseCounterpartID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, chat.ErrInvalidInput
	}
	return id, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message is empty"})
	case errors.Is(err, chat.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, chat.ErrRecipientNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient not found"})
	case errors.Is(err, chat.ErrMessageNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	case errors.Is(err, services.ErrStorageNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Attachments are not available"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
