package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/gorilla/websocket"
)

const hubWriteWait = 10 * time.Second

// hub tracks one live connection per user. A fresh connection for the
// same user replaces the previous one (last login wins).
type hub struct {
	mu    sync.Mutex
	conns map[int64]*websocket.Conn
}

func newHub() *hub {
	return &hub{conns: make(map[int64]*websocket.Conn)}
}

func (h *hub) register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	old := h.conns[userID]
	h.conns[userID] = conn
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (h *hub) unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[userID] == conn {
		delete(h.conns, userID)
	}
	h.mu.Unlock()
}

// sendTo delivers a frame to userID if connected. Writes are serialized
// under the hub lock; the stub has no per-client pump.
func (h *hub) sendTo(userID int64, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("devserver marshal frame: %v", err)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[userID]
	if !ok {
		return false
	}
	if err := conn.SetWriteDeadline(time.Now().Add(hubWriteWait)); err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Errorf("devserver write to %d: %v", userID, err)
		return false
	}
	return true
}
