package events

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

// Hub fans training-run completions out to a user's connected websocket
// clients. Implements training.Notifier.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*websocket.Conn]bool),
	}
}

func (h *Hub) Subscribe(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[*websocket.Conn]bool)
	}
	h.subscribers[userID][conn] = true

	logger.Debug("Training events subscriber added", zap.String("user_id", userID))
}

func (h *Hub) Unsubscribe(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subscribers[userID], conn)
	if len(h.subscribers[userID]) == 0 {
		delete(h.subscribers, userID)
	}
}

func (h *Hub) TrainingCompleted(userID, industry string, log *models.TrainingLog) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subscribers[userID]))
	for conn := range h.subscribers[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	msg := map[string]interface{}{
		"type":             "training_completed",
		"industry":         industry,
		"training_type":    log.TrainingType,
		"data_points_used": log.DataPointsUsed,
		"status":           log.Status,
		"after_metrics":    log.AfterMetrics,
		"improvements":     log.Improvements,
	}

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("Failed to push training event", zap.Error(err))
		}
	}

	logger.Info("Training event broadcast",
		zap.String("user_id", userID),
		zap.String("industry", industry),
		zap.Int("subscribers", len(conns)),
	)
}
