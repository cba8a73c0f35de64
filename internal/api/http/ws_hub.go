package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"moviecatalog/internal/metrics"
	"moviecatalog/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait / 2
	wsReadLimit  = 512
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	hub       *wsHub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type wsDelivery struct {
	client *wsClient
	data   []byte
}

// wsHub owns every client's send channel; only run writes to or closes
// them.
type wsHub struct {
	clients    map[*wsClient]bool
	deliver    chan wsDelivery
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	logger     *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		deliver:    make(chan wsDelivery, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				h.drop(client)
			}
			h.logger.Debug("ws hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.WebsocketClients.Inc()
			h.logger.Debug("ws client connected",
				slog.String("session", client.sessionID),
				slog.Int("total", len(h.clients)),
			)
		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.logger.Debug("ws client disconnected",
					slog.String("session", client.sessionID),
					slog.Int("total", len(h.clients)),
				)
			}
		case d := <-h.deliver:
			if !h.clients[d.client] {
				continue
			}
			select {
			case d.client.send <- d.data:
			default:
				// Slow reader; it reconnects and fetches a fresh view.
				h.drop(d.client)
			}
		}
	}
}

func (h *wsHub) drop(client *wsClient) {
	delete(h.clients, client)
	close(client.send)
	metrics.WebsocketClients.Dec()
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *wsHub) join(client *wsClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *wsHub) leave(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Send queues a typed message for one client. It never blocks; updates are
// dropped when the hub is saturated or stopped.
func (h *wsHub) Send(client *wsClient, msgType string, data any) {
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case h.deliver <- wsDelivery{client: client, data: payload}:
	case <-h.done:
	default:
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS streams the session's view model: the current one on connect,
// then one "view" message per change.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:       s.hub,
		conn:      conn,
		send:      make(chan []byte, 16),
		sessionID: sess.ID(),
	}
	if !s.hub.join(client) {
		_ = conn.Close()
		return
	}
	unsubscribe := sess.Subscribe(func(view session.ViewModel) {
		s.hub.Send(client, "view", view)
	})
	defer unsubscribe()

	s.hub.Send(client, "view", sess.View())
	go client.writePump()
	client.readPump()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		var err error
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			err = c.conn.WriteMessage(websocket.TextMessage, msg)
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

// readPump only services control frames; clients send nothing.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
	c.conn.SetReadLimit(wsReadLimit)
	_ = extend("")
	c.conn.SetPongHandler(extend)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
