package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/ravi0js/directchat/internal/chat"
	"github.com/ravi0js/directchat/internal/models"
	"github.com/ravi0js/directchat/internal/realtime"
	"github.com/ravi0js/directchat/pkg/utils"
)

// Frames a client may send over the socket. "open" activates a
// conversation, "message" sends text into it, "typing" hints the
// counterpart, "focus" re-runs the read clear, "close" drops the view.
type wsFrame struct {
	Type string `json:"type"`
	To   int64  `json:"to,omitempty"`
	Body string `json:"body,omitempty"`
}

type wsHistory struct {
	Type     string           `json:"type"`
	With     int64            `json:"with"`
	Messages []models.Message `json:"messages"`
}

type wsAck struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}

type wsError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	return c.Next()
}

// HandleWebSocket runs one connected session: a registered bus client, a
// session controller, and three loops — socket reads, bus event
// handling, and socket writes serialized through one channel.
func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	raw, _ := conn.Locals("user_id").(string)
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		_ = conn.Close()
		return
	}

	client := realtime.NewClient(h.hub, userID)
	h.hub.Register(client)
	session := chat.NewSession(userID, h.service, h.hub.SessionBus(client))

	send := make(chan []byte, 32)
	events := make(chan struct{})

	go writePump(conn, send)
	go func() {
		defer close(events)
		for event := range client.Events() {
			out, ok := session.HandleEvent(context.Background(), event)
			if !ok {
				continue
			}
			payload, err := json.Marshal(out)
			if err != nil {
				log.Printf("chat ws encode event: %v", err)
				continue
			}
			enqueue(send, payload)
		}
	}()

	h.readPump(conn, session, send)

	h.hub.Unregister(client)
	<-events
	close(send)
	session.Close()
	_ = conn.Close()
}

func (h *ChatHandler) readPump(conn *websocket.Conn, session *chat.Session, send chan []byte) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			writeWSError(send, "invalid message payload")
			continue
		}

		ctx := context.Background()
		switch frame.Type {
		case "open":
			history, err := session.Open(ctx, frame.To)
			if err != nil {
				writeWSError(send, "failed to open conversation")
				continue
			}
			reply, err := json.Marshal(wsHistory{Type: "history", With: frame.To, Messages: history})
			if err != nil {
				log.Printf("chat ws encode history: %v", err)
				continue
			}
			enqueue(send, reply)
		case "message":
			content, err := models.NewMessageContent(frame.Body, nil)
			if err != nil {
				// Empty send: no message, no event, nothing to report.
				continue
			}
			message, err := session.Send(ctx, frame.To, content)
			if err != nil {
				if !errors.Is(err, chat.ErrEmptyMessage) {
					writeWSError(send, "failed to send message")
				}
				continue
			}
			ack, err := json.Marshal(wsAck{Type: "sent", Message: message})
			if err != nil {
				continue
			}
			enqueue(send, ack)
		case "typing":
			session.Typing(frame.To)
		case "focus":
			session.Render(ctx)
		case "close":
			session.Close()
		default:
			writeWSError(send, "unsupported message type")
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte) {
	for payload := range send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// enqueue drops the payload when the socket can't keep up; every frame
// is re-derivable from the store on the next open.
func enqueue(send chan []byte, payload []byte) {
	select {
	case send <- payload:
	default:
	}
}

func writeWSError(send chan []byte, message string) {
	payload, err := json.Marshal(wsError{Type: "error", Error: message})
	if err != nil {
		return
	}
	enqueue(send, payload)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
