package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kastrel/nest/internal/infrastructure/logging"
	"github.com/kastrel/nest/internal/infrastructure/monitoring"
	"github.com/kastrel/nest/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is CORS middleware's job.
	},
}

// Handler manages dashboard viewer WebSocket connections.
type Handler struct {
	nest        *service.Nest
	logger      *logging.Logger
	metrics     *monitoring.Metrics
	sendTimeout time.Duration
}

// NewHandler creates a new WebSocket handler.
func NewHandler(nest *service.Nest, logger *logging.Logger, metrics *monitoring.Metrics, sendTimeout time.Duration) *Handler {
	return &Handler{
		nest:        nest,
		logger:      logger,
		metrics:     metrics,
		sendTimeout: sendTimeout,
	}
}

// HandleConnection upgrades the request, subscribes the viewer, and then
// parks in a read loop whose only purpose is detecting disconnection.
// Client messages are ignored; updates flow one way, hub to viewer.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	viewerID := uuid.New().String()
	ch := newChannel(conn, h.sendTimeout)

	h.nest.Hub().Subscribe(ch)
	h.metrics.WSConnections.Inc()
	h.logger.Info("viewer connected",
		zap.String("viewer_id", viewerID),
		zap.Int("viewers", h.nest.Viewers()),
	)

	welcome, _ := sonic.Marshal(map[string]interface{}{
		"type":    "system",
		"message": "Connected to Kastrel Nest",
		"stats":   h.nest.Stats(),
	})
	if err := ch.Send(welcome); err != nil {
		h.teardown(ch, conn, viewerID)
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.teardown(ch, conn, viewerID)
}

func (h *Handler) teardown(ch *channel, conn *websocket.Conn, viewerID string) {
	h.nest.Hub().Unsubscribe(ch)
	conn.Close()
	h.metrics.WSConnections.Dec()
	h.logger.Info("viewer disconnected",
		zap.String("viewer_id", viewerID),
		zap.Int("viewers", h.nest.Viewers()),
	)
}
