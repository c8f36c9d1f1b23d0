package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/server/wslogs"
	"github.com/teranos/linkpulse/version"
)

// WebSocket timeouts, following the gorilla chat example
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer (queueTargets can be large)
	maxMessageSize = 1024 * 1024
)

// Client is one connected UI surface.
type Client struct {
	id      string
	server  *Server
	conn    *websocket.Conn
	sendMsg chan interface{}
	sendLog chan *wslogs.Batch

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// handleWebSocket upgrades /ws and starts the client pumps
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.State() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable,
			errors.WrapCommunication(errors.Newf("server is %s", s.State()), "websocket upgrade"))
		return
	}
	if !s.checkClientVersion(w, r) {
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			logger.FieldError, err.Error())
		return
	}

	client := &Client{
		id:      uuid.NewString(),
		server:  s,
		conn:    conn,
		sendMsg: make(chan interface{}, MaxClientMessageQueueSize),
		sendLog: make(chan *wslogs.Batch, MaxClientMessageQueueSize),
	}

	// Hello goes out before writePump starts to avoid concurrent writes
	kinds := make([]string, 0, len(pulse.Kinds))
	for _, k := range pulse.Kinds {
		kinds = append(kinds, string(k))
	}
	hello := HelloMessage{
		Type:     "hello",
		ClientID: client.id,
		Version:  version.Get().Version,
		State:    s.State().String(),
		Kinds:    kinds,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		s.logger.Debugw("Failed to send hello",
			logger.FieldClientID, client.id,
			logger.FieldError, err.Error())
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
}

// readPump reads command messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.server.logger.Warnw("JSON unmarshal error",
				logger.FieldClientID, c.id,
				logger.FieldError, err.Error())
			c.enqueue(CommandReply{
				Type:     "response",
				Response: errorResponse(errors.NewValidationError("invalid message: %v", err)),
			})
			continue
		}
		c.routeMessage(&msg)
	}
}

// handleReadError logs unexpected close errors. Ordinary closes are silent.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.server.logger.Warnw("WebSocket read error",
			logger.FieldClientID, c.id,
			logger.FieldError, err.Error())
	}
}

func (c *Client) routeMessage(msg *ClientMessage) {
	switch msg.Type {
	case "command":
		resp := c.server.Execute(c.server.ctx, msg.Command)
		c.enqueue(CommandReply{Type: "response", RequestID: msg.RequestID, Response: resp})
	case "ping":
		c.enqueue(map[string]string{"type": "pong"})
	default:
		c.server.logger.Debugw("Unknown message type",
			"type", msg.Type,
			logger.FieldClientID, c.id)
	}
}

// writePump writes replies, pushes and log batches to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case msg, ok := <-c.sendMsg:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("Message write error",
					logger.FieldClientID, c.id,
					logger.FieldError, err.Error())
				return
			}
		case batch, ok := <-c.sendLog:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			// Log delivery failures don't kill the connection
			if err := c.conn.WriteJSON(LogsMessage{Type: "logs", Data: batch}); err != nil {
				c.server.logger.Debugw("Log batch write error",
					logger.FieldClientID, c.id,
					logger.FieldError, err.Error())
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues msg without blocking. Returns false when the queue is full
// or the client is closed.
func (c *Client) enqueue(msg interface{}) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.sendMsg <- msg:
		return true
	default:
		return false
	}
}

// close closes the client's queues once
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.sendMsg)
		close(c.sendLog)
		c.mu.Unlock()
	})
}
