package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	mu       sync.RWMutex
	alarmID  string
	settings Settings
}

// IncomingMessage lets a client change its alarm filter after connecting.
type IncomingMessage struct {
	Type    string `json:"type"`
	AlarmID string `json:"alarm_id,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, alarmID string) *Client {
	settings := hub.Settings()
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, settings.ClientBuffer),
		alarmID:  alarmID,
		settings: settings,
	}
}

// Accepts reports whether a transition of alarmID should reach this client.
// An empty filter receives every alarm.
func (c *Client) Accepts(alarmID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alarmID == "" || c.alarmID == alarmID
}

func (c *Client) AlarmID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alarmID
}

func (c *Client) setAlarmID(alarmID string) {
	c.mu.Lock()
	c.alarmID = alarmID
	c.mu.Unlock()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message so clients can decode each as JSON.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		c.setAlarmID(msg.AlarmID)
		logger.WithAlarm(msg.AlarmID).Info("WebSocket client subscribed")
		c.sendConfirmation("subscribed", msg.AlarmID)
	case "unsubscribe":
		previous := c.AlarmID()
		c.setAlarmID("")
		logger.Info("WebSocket client cleared alarm filter")
		c.sendConfirmation("unsubscribed", previous)
	}
}

func (c *Client) sendConfirmation(action, alarmID string) {
	data, err := json.Marshal(map[string]interface{}{
		"type":      "subscription_update",
		"action":    action,
		"alarm_id":  alarmID,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		logger.Errorf("Failed to marshal confirmation: %v", err)
		return
	}

	// The hub may close send concurrently on shutdown.
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		logger.Warn("Client send channel full, dropping confirmation")
	}
}

// ServeWebSocket upgrades the request; the optional alarm_id query narrows the stream.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	settings := hub.Settings()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  settings.ReadBufferSize,
		WriteBufferSize: settings.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(c *gin.Context) {
		if hub.Full() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many websocket connections"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(hub, conn, c.Query("alarm_id"))
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
