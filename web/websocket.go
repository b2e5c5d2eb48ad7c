package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"team-presence/pkg/common"
	"team-presence/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSMessage WebSocket消息结构
type WSMessage struct {
	Type      string      `json:"type"`
	EventType string      `json:"eventType,omitempty"`
	MatchID   string      `json:"matchId,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Client WebSocket客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.RWMutex
	eventTypes map[string]bool // 事件类型过滤器
	matchIDs   map[string]bool // 比赛ID过滤器
}

// Hub WebSocket Hub, 同时实现 services.EventPublisher
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *WSMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once
	logger     common.Logger
	mu         sync.RWMutex
}

// NewHub 创建新的Hub
func NewHub(logger common.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行Hub, 直到 Close 被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered. Total clients: %d", count)

		case message := <-h.broadcast:
			data := h.marshalMessage(message)
			h.mu.Lock()
			for client := range h.clients {
				if !client.shouldReceive(message) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// 发送缓冲已满, 断开慢客户端
					h.remove(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove 调用方持有写锁
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish 把领域事件广播给订阅的客户端
func (h *Hub) Publish(ctx context.Context, event services.Event) error {
	msg := &WSMessage{
		Type:      "event",
		EventType: event.Type,
		MatchID:   event.MatchID.String(),
		Timestamp: event.OccurredAt.Unix(),
		Data:      event.Data,
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止 Hub 并断开所有客户端
func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// marshalMessage 序列化消息
func (h *Hub) marshalMessage(message *WSMessage) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message: %v", err)
		return []byte("{}")
	}
	return data
}

// shouldReceive 检查客户端是否应该接收消息
func (c *Client) shouldReceive(message *WSMessage) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// 未设置的过滤器不做限制
	if len(c.eventTypes) > 0 && !c.eventTypes[message.EventType] {
		return false
	}
	if len(c.matchIDs) > 0 && !c.matchIDs[message.MatchID] {
		return false
	}
	return true
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket error: %v", err)
			}
			break
		}

		// 处理客户端消息(设置过滤器等)
		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
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

// subscribeRequest 客户端订阅消息
type subscribeRequest struct {
	Type       string   `json:"type"`
	EventTypes []string `json:"eventTypes"`
	MatchIDs   []string `json:"matchIds"`
}

// handleMessage 处理客户端发送的消息
func (c *Client) handleMessage(message []byte) {
	var req subscribeRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.hub.logger.Debug("Failed to unmarshal client message: %v", err)
		return
	}

	var matchIDs map[string]bool
	if req.Type == "subscribe" && req.MatchIDs != nil {
		matchIDs = make(map[string]bool)
		for _, id := range req.MatchIDs {
			if parsed, err := uuid.Parse(id); err == nil {
				matchIDs[parsed.String()] = true
			}
		}
		// 全部无效时拒绝, 保留原有过滤器
		if len(req.MatchIDs) > 0 && len(matchIDs) == 0 {
			c.hub.logger.Warn("Rejected subscribe with no valid match ids: %v", req.MatchIDs)
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch req.Type {
	case "subscribe":
		if req.EventTypes != nil {
			c.eventTypes = make(map[string]bool)
			for _, t := range req.EventTypes {
				c.eventTypes[t] = true
			}
		}
		if matchIDs != nil {
			c.matchIDs = matchIDs
		}
		c.hub.logger.Debug("Client subscribed with event types: %v, matches: %v", c.eventTypes, c.matchIDs)

	case "unsubscribe":
		c.eventTypes = nil
		c.matchIDs = nil
	}
}

// handleWebSocket WebSocket连接处理
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
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
