package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one open channel between a device and the server. Its read pump
// is the per-connection task that handles inbound events in order.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	username string

	ctx    context.Context
	cancel context.CancelFunc
	closed int32
}

func NewClient(hub *Hub, conn *websocket.Conn, username string) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:       uuid.NewString(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.opts.SendBufferSize),
		username: username,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Username() string {
	return c.username
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client closed and cancels its context. The write pump
// then sends a close frame and closes the socket, which ends the read pump
// and runs the disconnect cleanup.
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		slog.Debug("Client marked as closed", "connID", c.id, "username", c.username)
	}
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		slog.Debug("Error closing connection", "connID", c.id, "username", c.username, "error", err)
	}
}

// Send queues msg for delivery. It never blocks: a client whose queue is
// full is closed.
func (c *Client) Send(msg *Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return c.sendRaw(data)
}

func (c *Client) sendRaw(data []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("Send buffer full, closing client", "connID", c.id, "username", c.username)
		c.close()
		return ErrClientDisconnected
	}
}

func (c *Client) sendError(requestID, code, message string) {
	if err := c.Send(NewErrorMessage(requestID, code, message)); err != nil {
		slog.Debug("Failed to deliver error event", "connID", c.id, "username", c.username, "error", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.hub.Disconnect(c)
		c.closeConn()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket error", "connID", c.id, "username", c.username, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "connID", c.id, "username", c.username, "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Debug("Failed to unmarshal request", "connID", c.id, "username", c.username, "error", err)
			c.sendError("", ErrCodeInvalidMessage, "Invalid message format")
			continue
		}

		c.hub.HandleRequest(c.ctx, c, &req)
	}
}

func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
		c.closeConn()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				slog.Debug("Error getting next writer", "connID", c.id, "username", c.username, "error", err)
				return
			}
			if _, err := w.Write(data); err != nil {
				slog.Debug("Error writing message", "connID", c.id, "username", c.username, "error", err)
				w.Close()
				return
			}
			if err := w.Close(); err != nil {
				slog.Debug("Error closing writer", "connID", c.id, "username", c.username, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "connID", c.id, "username", c.username, "error", err)
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ServeWS upgrades the request and runs the channel for username until it
// closes. The username must already be authenticated.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, username string) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "username", username, "error", err)
		return
	}

	client := NewClient(hub, conn, username)
	slog.Info("New WebSocket connection established", "connID", client.id, "username", username)

	// Registration completes before any inbound event is read so that peers
	// see the user online before anything this channel sends.
	hub.Connect(client)

	go client.writePump()
	go client.readPump()
}
