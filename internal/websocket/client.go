package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/game-stats/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 16
)

var clientIDCounter atomic.Uint64

// Client is one connected listener
type Client struct {
	id         uint64
	listenerID string
	hub        *Hub
	conn       *websocket.Conn
	send       chan Message
	logger     *logging.Logger

	sendMu sync.Mutex
	closed bool
}

// NewClient creates a listener bound to a hub
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	listenerID := uuid.New().String()
	return &Client{
		id:         clientIDCounter.Add(1),
		listenerID: listenerID,
		hub:        hub,
		conn:       conn,
		send:       make(chan Message, sendBufferSize),
		logger:     logging.GetGlobalLogger().WithComponent("websocket").WithField("listener_id", listenerID),
	}
}

// ListenerID returns the listener's identifier
func (c *Client) ListenerID() string {
	return c.listenerID
}

// Send queues a message for this listener only. It reports false when the
// buffer is full.
func (c *Client) Send(message Message) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// closeSend closes the send buffer, which makes the write pump close the connection
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes inbound frames so pongs and close frames are processed.
// The only message listeners may send is a ping.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.WithError(err).Error("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("Unexpected websocket close")
			}
			return
		}
		if msg.Type == MessageTypePing {
			c.Send(NewMessage(MessageTypePong, nil))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.WithError(err).Debug("Failed to write message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
