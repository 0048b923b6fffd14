// cashpilot/internal/notify/hub.go
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Хаб толкает события дашборду (новые алерты, эскалации, карточки действий)
// через WebSocket. Один подключенный клиент на пользователя.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Для разработки разрешаем все источники
	},
}

// Event - одно событие дашборда.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// Hub хранит активные подключения по пользователям.
type Hub struct {
	clients    map[uint]*wsClient
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.Mutex
}

// GlobalHub - единственный экземпляр хаба для всего приложения.
var GlobalHub = NewHub()

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]*wsClient),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = client
			h.mu.Unlock()
			slog.Info("Dashboard client registered", "userID", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.userID]; ok {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.mu.Unlock()
			slog.Info("Dashboard client unregistered", "userID", client.userID)
		}
	}
}

// PushEvent отправляет событие подключенному клиенту пользователя.
// Отсутствие подключения - норма, событие просто теряется (дашборд
// перечитает очереди при следующем открытии).
func PushEvent(userID uint, eventType string, payload interface{}) {
	GlobalHub.mu.Lock()
	client, ok := GlobalHub.clients[userID]
	GlobalHub.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		slog.Error("Failed to marshal dashboard event", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		// Переполненный буфер клиента не должен блокировать детекцию.
		slog.Warn("Dashboard client send buffer full, dropping event", "userID", userID)
	}
}

// ServeWS апгрейдит HTTP-соединение и регистрирует клиента в хабе.
func ServeWS(w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64), userID: userID}
	GlobalHub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		GlobalHub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Unexpected websocket close error", "error", err)
			}
			break
		}
		// Входящие сообщения дашборда игнорируются: канал односторонний.
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			slog.Error("Failed to write message to websocket", "error", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
