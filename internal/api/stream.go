package api

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/model"
	"github.com/opcron/opcron/internal/perm"
)

// streamEvent is one message pushed to live-feed subscribers.
type streamEvent struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Hub fans audit and job-log events out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger,
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast sends an event to every subscriber. Dead connections are
// dropped on write failure.
func (h *Hub) Broadcast(event streamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	var dead []*websocket.Conn
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// BroadcastJobLog pushes one job execution record to subscribers.
func (h *Hub) BroadcastJobLog(log *model.JobLog) {
	h.Broadcast(streamEvent{Kind: "job_log", Payload: log})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (a *API) streamEndpoint() Endpoint {
	return Endpoint{
		LogType:      model.LogLogView,
		AuthRequired: true,
		Related:      []string{perm.UserLog, perm.JobLog, perm.ErrorLog},
		Handle:       a.handleStream,
	}
}

// handleStream upgrades the connection and keeps it registered until the
// client goes away. The read loop exists only to observe closure.
func (a *API) handleStream(c *Context) (any, error) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return Raw, nil
	}
	a.hub.add(conn)
	a.logger.Info("log stream subscriber connected",
		zap.String("ip", c.ip),
		zap.String("user", c.User.Username),
	)

	go func() {
		defer a.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return Raw, nil
}
