// Package feed streams session events to UI clients over WebSocket and
// serves the current map as JSON.
package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/events"
	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/metrics"
	"github.com/crystal-mush/mudmapper/pkg/session"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

const (
	writeWait       = 5 * time.Second
	clientSendQueue = 64
)

// Message is the JSON frame exchanged with clients.
type Message struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Command string    `json:"command,omitempty"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time,omitempty"`
}

// Source is the session side of the feed.
type Source interface {
	GetMapSnapshot() *worldmap.Snapshot
	Send(command string) error
}

// Options configures a Hub.
type Options struct {
	Origins []string // allowed Origin headers; empty allows any
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Hub fans events out to every connected client.
type Hub struct {
	src      Source
	log      *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	started  time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New creates a hub serving src.
func New(src Source, opts Options) *Hub {
	h := &Hub{
		src:     src,
		log:     logging.OrNop(opts.Logger).Named("feed"),
		metrics: opts.Metrics,
		started: time.Now(),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(opts.Origins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range opts.Origins {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Attach forwards the session's hooks to the hub.
func (h *Hub) Attach(s *session.Session) {
	s.OnRoomChange(func(r events.RoomInfo) {
		h.Broadcast(Message{Type: "room", Text: r.Name, Data: r})
	})
	s.OnVitalsChange(func(v events.Vitals) {
		h.Broadcast(Message{Type: "vitals", Data: v})
	})
	s.OnText(func(t session.Text) {
		typ := "text"
		if t.Prompt {
			typ = "prompt"
		}
		h.Broadcast(Message{Type: typ, Text: t.Text, Time: t.Time})
	})
	s.OnStateChange(func(st session.State) {
		h.Broadcast(Message{Type: "state", Text: st.String()})
	})
	s.OnDisconnect(func(err error) {
		msg := Message{Type: "disconnected"}
		if err != nil {
			msg.Text = err.Error()
		}
		h.Broadcast(msg)
	})
}

// Handler returns the feed routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.handleWebSocket)
	mux.HandleFunc("GET /map", h.handleMap)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every client without blocking. A client whose
// queue is full is disconnected.
func (h *Hub) Broadcast(msg Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.log.Warn("dropping slow client", zap.String("addr", c.addr))
		h.remove(c)
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
		<-c.done
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.FeedClients(len(h.clients))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.metrics.FeedClients(len(h.clients))
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := &client{
		conn: conn,
		addr: r.RemoteAddr,
		send: make(chan Message, clientSendQueue),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		conn.Close()
		return
	}
	h.log.Debug("client connected", zap.String("addr", c.addr))
	h.reply(c, Message{Type: "welcome", Data: h.src.GetMapSnapshot()})

	go c.writeLoop()
	h.readLoop(c)
}

// readLoop handles client commands until the socket closes.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		h.log.Debug("client closed", zap.String("addr", c.addr))
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read error", zap.String("addr", c.addr), zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, Message{Type: "error", Text: "invalid JSON message"})
			continue
		}
		switch msg.Type {
		case "command":
			if err := h.src.Send(msg.Command); err != nil {
				h.reply(c, Message{Type: "error", Text: err.Error()})
			}
		case "map":
			h.reply(c, Message{Type: "map", Data: h.src.GetMapSnapshot()})
		default:
			h.reply(c, Message{Type: "error", Text: fmt.Sprintf("unknown message type: %s", msg.Type)})
		}
	}
}

func (h *Hub) handleMap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.src.GetMapSnapshot())
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"clients":        h.Clients(),
		"uptime_seconds": time.Since(h.started).Seconds(),
	})
}

// client is one WebSocket connection. Only writeLoop writes to conn.
type client struct {
	conn *websocket.Conn
	addr string
	send chan Message
	done chan struct{}
}

// reply queues msg for c alone, if c is still connected.
func (h *Hub) reply(c *client, msg Message) {
	msg.Time = time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writeLoop() {
	defer close(c.done)
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
