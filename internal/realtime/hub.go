package realtime

// The hub is the single-node fan-out bus: it pushes events to every
// currently registered session of a target user and holds no backlog.
// Delivery is at-most-once; publishing to a user with no sessions is a
// silent no-op, because every pushed fact can be re-derived from the
// store on the next conversation open.

type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	publish    chan envelope
}

// Client is one subscribed session of a user. Events arrive on a
// buffered channel; the transport layer drains it and forwards to the
// wire. Clients that stop draining are evicted.
type Client struct {
	hub    *Hub
	userID int64
	events chan Event
}

type envelope struct {
	target int64
	event  Event
	except *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan envelope, 64),
	}
}

func NewClient(hub *Hub, userID int64) *Client {
	return &Client{
		hub:    hub,
		userID: userID,
		events: make(chan Event, 32),
	}
}

func (c *Client) UserID() int64 { return c.userID }

// Events is closed by the hub when the client is unregistered or
// evicted.
func (c *Client) Events() <-chan Event { return c.events }

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.events)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case env := <-h.publish:
			h.deliver(env)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish fans the event out to every session of the target user.
func (h *Hub) Publish(userID int64, event Event) {
	h.publish <- envelope{target: userID, event: event}
}

// PublishExcept is Publish minus the originating session, so a
// connection never receives its own echo.
func (h *Hub) PublishExcept(userID int64, event Event, except *Client) {
	h.publish <- envelope{target: userID, event: event, except: except}
}

func (h *Hub) deliver(env envelope) {
	set, ok := h.clients[env.target]
	if !ok {
		return
	}

	for client := range set {
		if client == env.except {
			continue
		}
		select {
		case client.events <- env.event:
		default:
			delete(set, client)
			close(client.events)
		}
	}
	if len(set) == 0 {
		delete(h.clients, env.target)
	}
}

// SessionBus is the per-connection publish handle handed to a session
// controller: everything it publishes skips its own client.
type SessionBus struct {
	hub    *Hub
	origin *Client
}

func (h *Hub) SessionBus(origin *Client) *SessionBus {
	return &SessionBus{hub: h, origin: origin}
}

func (b *SessionBus) Publish(userID int64, event Event) {
	b.hub.PublishExcept(userID, event, b.origin)
}
