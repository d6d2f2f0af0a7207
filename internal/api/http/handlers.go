package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kastrel/nest/internal/api/middleware"
	"github.com/kastrel/nest/internal/auth"
	"github.com/kastrel/nest/internal/demo"
	"github.com/kastrel/nest/internal/infrastructure/logging"
	"github.com/kastrel/nest/internal/infrastructure/monitoring"
	"github.com/kastrel/nest/internal/relay"
	"github.com/kastrel/nest/internal/service"
)

// defaultTraceLimit bounds dashboard trace queries that omit a limit.
const defaultTraceLimit = 100

// Handlers contains all HTTP handlers
type Handlers struct {
	nest     *service.Nest
	relay    *relay.Client
	demo     *demo.Loader
	sessions *auth.Sessions
	password string
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandlers creates a new handler set
func NewHandlers(
	nest *service.Nest,
	relayClient *relay.Client,
	loader *demo.Loader,
	sessions *auth.Sessions,
	password string,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
) *Handlers {
	return &Handlers{
		nest:     nest,
		relay:    relayClient,
		demo:     loader,
		sessions: sessions,
		password: password,
		logger:   logger,
		metrics:  metrics,
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Kastrel Nest",
		"version": "0.2.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	stats := h.nest.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"stats":             stats,
		"connected_viewers": h.nest.Viewers(),
		"auth_enabled":      h.password != "",
		"summary_service":   gin.H{"healthy": h.relay.Health(c.Request.Context())},
	})
}

// AgentHealth is the lightweight probe perch agents poll before pushing.
func (h *Handlers) AgentHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type registerRequest struct {
	AgentID   string                 `json:"agent_id" binding:"required"`
	ModelInfo map[string]interface{} `json:"model_info"`
}

// RegisterAgent records a perch agent's presence
func (h *Handlers) RegisterAgent(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}

	h.nest.RegisterAgent(req.AgentID, req.ModelInfo)
	c.JSON(http.StatusOK, gin.H{
		"status":   "registered",
		"agent_id": req.AgentID,
	})
}

type tracesRequest struct {
	AgentID  string                 `json:"agent_id" binding:"required"`
	Traces   map[string]interface{} `json:"traces"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ReceiveTraces ingests one trace payload from a perch agent
func (h *Handlers) ReceiveTraces(c *gin.Context) {
	var req tracesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}

	h.nest.IngestTraces(req.AgentID, req.Traces, req.Metadata)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// ListTraces returns recent trace history for the dashboard
func (h *Handlers) ListTraces(c *gin.Context) {
	limit := defaultTraceLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	entries := h.nest.Traces(limit, c.Query("agent_id"))
	c.JSON(http.StatusOK, gin.H{
		"traces": entries,
		"count":  len(entries),
	})
}

// ListAgents returns every agent the nest has heard from
func (h *Handlers) ListAgents(c *gin.Context) {
	agents := h.nest.Agents()
	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}

// GetStats returns aggregate statistics over the trace history
func (h *Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.nest.Stats())
}

// ListAvailableData lists the local demo fixture files
func (h *Handlers) ListAvailableData(c *gin.Context) {
	names, err := h.demo.List()
	if err != nil {
		h.logger.Error("failed to list demo data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list demo data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"files": names,
		"count": len(names),
	})
}

// LoadLocalData replays recorded trace fixtures through the normal
// ingestion path, so viewers see them exactly like live pushes.
func (h *Handlers) LoadLocalData(c *gin.Context) {
	filename := c.Query("filename")

	entries, err := h.demo.Load(filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	for _, e := range entries {
		h.nest.IngestTraces(e.AgentID, e.Traces, e.Metadata)
	}

	h.logger.Info("loaded demo data",
		zap.String("filename", filename),
		zap.Int("entries", len(entries)),
	)
	c.JSON(http.StatusOK, gin.H{
		"status":  "loaded",
		"entries": len(entries),
	})
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login exchanges the dashboard password for a session token
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	if !auth.VerifyPassword(req.Password, h.password) {
		h.logger.Warn("failed login attempt", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token := h.sessions.Create()
	c.SetCookie(middleware.SessionCookie, token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"status": "authenticated",
		"token":  token,
	})
}

// Logout revokes the caller's session
func (h *Handlers) Logout(c *gin.Context) {
	token := ""
	if cookie, err := c.Cookie(middleware.SessionCookie); err == nil {
		token = cookie
	}
	h.sessions.Revoke(token)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}
