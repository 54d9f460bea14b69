package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

type connState int

const (
	stateAwaitingDevice connState = iota
	stateReady
	stateClosed
)

// Client одно соединение. Реализует eventbus.Subscriber.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	identity models.Identity
	ip       string
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	send     chan []byte
	state    connState
	deviceID string
}

func (c *Client) ID() string { return c.id }

// Send ставит кадр в очередь записи, не блокируясь. Возвращает false,
// если соединение закрыто или буфер заполнен.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	c.cancel()
	close(c.send)
}

func (c *Client) ready() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID, c.state == stateReady
}

func (c *Client) markReady(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return
	}
	c.state = stateReady
	c.deviceID = deviceID
}

// reply отправляет событие только этому соединению.
func (c *Client) reply(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.hub.log.Error("failed to marshal reply", slog.String("event", event), sl.Err(err))
		return
	}
	frame, err := json.Marshal(eventbus.Message{Event: event, Data: data})
	if err != nil {
		return
	}
	if !c.Send(frame) {
		c.hub.log.Warn("reply dropped", slog.String("client", c.id), slog.String("event", event))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read error", slog.String("client", c.id), sl.Err(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			c.reply(eventbus.EventError, errorPayload{Message: "Malformed message"})
			continue
		}
		c.dispatch(msg)
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
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
