package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Channels a client may subscribe to
const (
	channelEvents = "events" // every event; "events:<address>" narrows to one sender
	channelBlocks = "blocks"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxRequestSize = 4096
	sendBuffer     = 256
)

// Origins are checked by the cors middleware on the HTTP side.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub maintains active WebSocket connections and fans out channel messages
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex // guards clients and sends on client.send
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
}

// NewHub returns a hub; call Run to start serving registrations.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is done, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws_connect", zap.String("client", client.id), zap.Int("total", total))

		case client := <-h.unregister:
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Debug("ws_disconnect", zap.String("client", client.id), zap.Int("total", len(h.clients)))
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToChannel marshals data once and queues it for every subscriber.
// Subscribers with a full buffer miss the message.
func (h *Hub) BroadcastToChannel(channel string, data interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("ws_marshal", zap.String("channel", channel), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.IsSubscribed(channel) {
			select {
			case client.send <- message:
			default:
			}
		}
	}
}

// Client is one websocket connection and its channel subscriptions.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu        sync.RWMutex
	subscriptions map[string]bool
}

func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) Subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[channel] = true
	c.subsMu.Unlock()
}

func (c *Client) Unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, channel)
	c.subsMu.Unlock()
}

// readPump applies subscription requests until the connection fails
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxRequestSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("ws_read", zap.String("client", c.id), zap.Error(err))
			}
			break
		}

		c.handle(message)
	}
}

// handle applies one subscription request and acknowledges it. Unknown
// channels are reported back and nothing is subscribed.
func (c *Client) handle(message []byte) {
	var req WSSubscribeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.reply(WSAck{Type: "error", Error: "malformed request"})
		return
	}
	if req.Op != "subscribe" && req.Op != "unsubscribe" {
		c.reply(WSAck{Type: "error", Error: fmt.Sprintf("unknown op %q", req.Op)})
		return
	}

	channels := make([]string, 0, len(req.Channels))
	for _, ch := range req.Channels {
		name, ok := canonicalChannel(ch)
		if !ok {
			c.reply(WSAck{Type: "error", Error: fmt.Sprintf("unknown channel %q", ch)})
			return
		}
		channels = append(channels, name)
	}

	for _, ch := range channels {
		if req.Op == "subscribe" {
			c.Subscribe(ch)
		} else {
			c.Unsubscribe(ch)
		}
	}
	c.reply(WSAck{Type: req.Op + "d", Channels: channels})
}

// reply queues a direct message unless the hub already dropped the client.
func (c *Client) reply(ack WSAck) {
	msg, err := json.Marshal(ack)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// canonicalChannel validates a channel name. Address channels are keyed by
// the checksummed address so any hex casing subscribes to the same stream.
func canonicalChannel(ch string) (string, bool) {
	switch ch {
	case channelEvents, channelBlocks:
		return ch, true
	}
	addr, found := strings.CutPrefix(ch, channelEvents+":")
	if !found || !common.IsHexAddress(addr) {
		return "", false
	}
	return eventsChannel(common.HexToAddress(addr)), true
}

func eventsChannel(addr common.Address) string {
	return channelEvents + ":" + addr.Hex()
}

// writePump owns all writes to the connection. It exits when the hub closes
// send or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades the request and registers the client with the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws_upgrade", zap.Error(err))
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            uuid.NewString(),
		subscriptions: make(map[string]bool),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
