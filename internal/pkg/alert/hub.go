// internal/pkg/alert/hub.go
package alert

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Notifier 是运维告警通道。补偿失败等需要人工介入的事件通过它上报。
type Notifier interface {
	Notify(level, message string)
}

// Message 是推送给运维端的告警载体。
type Message struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 告警面板可能部署在其他域名下，这里放开跨域
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub 维护所有在线的运维告警连接并负责广播。
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewHub 创建一个告警广播中心。
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// ServeWs 把一个 HTTP 请求升级为告警 websocket 连接。
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade alert websocket")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("operator connected to alert channel")

	// 读循环只用于感知连接关闭
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Notify 向所有在线运维端广播一条告警。没有人在线时告警只保留在日志里。
func (h *Hub) Notify(level, message string) {
	payload, err := json.Marshal(Message{Level: level, Message: message, At: time.Now()})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal alert message")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(c)
		}
	}
}

// NopNotifier 在测试和 memory 模式下替代 websocket 通道。
type NopNotifier struct{}

func (NopNotifier) Notify(level, message string) {}
