package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// wsClient wraps a websocket connection with a write mutex; the dispatcher
// and the ping loop both write to it.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// controlMessage is the inbound subscription protocol:
//
//	{"type": "subscribe", "symbols": ["AAPL", "TSLA"]}
//	{"type": "unsubscribe", "symbols": ["AAPL"]}
//
// Anything malformed is ignored without closing the connection.
type controlMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	client := &wsClient{conn: conn}
	h.Register(client)

	// Read pump: handle subscription messages and detect disconnects.
	go func() {
		defer func() {
			h.Unregister(client)
			conn.Close()
		}()

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "subscribe":
				h.Subscribe(client, msg.Symbols)
			case "unsubscribe":
				h.Unsubscribe(client, msg.Symbols)
			}
			// Other message types are ignored.
		}
	}()

	// Ping ticker to keep the connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.Lock()
			_, ok := h.clients[client]
			h.mu.Unlock()
			if !ok {
				return
			}
			if err := client.ping(); err != nil {
				return
			}
		}
	}()
}
