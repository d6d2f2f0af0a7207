package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/kastrel/nest/internal/hub"
	"github.com/kastrel/nest/internal/infrastructure/logging"
	"github.com/kastrel/nest/internal/infrastructure/monitoring"
	"github.com/kastrel/nest/internal/trace"
)

// Update is the message shape broadcast to dashboard viewers.
type Update struct {
	Type      string                 `json:"type"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Nest owns the trace store and the viewer hub and exposes the two
// capability sets on top of them: perch-facing ingestion and
// dashboard-facing live view. Composition, not inheritance: handlers get
// a *Nest, never the store or hub directly.
type Nest struct {
	store   *trace.Store
	hub     *hub.Hub
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New assembles the service around an existing store and hub.
func New(store *trace.Store, h *hub.Hub, logger *logging.Logger, metrics *monitoring.Metrics) *Nest {
	return &Nest{
		store:   store,
		hub:     h,
		logger:  logger,
		metrics: metrics,
	}
}

// RegisterAgent upserts the agent's registration record and notifies
// viewers. Always acks.
func (n *Nest) RegisterAgent(agentID string, modelInfo map[string]interface{}) {
	n.store.Register(agentID, modelInfo)
	n.metrics.AgentsRegistered.Inc()

	modelName, _ := modelInfo["model_name"].(string)
	n.logger.Info("perch registered",
		zap.String("agent_id", agentID),
		zap.String("model", modelName),
	)

	n.hub.Publish(Update{
		Type:      "agent_registered",
		AgentID:   agentID,
		Data:      map[string]interface{}{"model_info": modelInfo},
		Timestamp: time.Now().Unix(),
	})
}

// IngestTraces appends a trace entry and broadcasts the update to every
// live viewer. Broadcast failures never reach the submitting agent.
func (n *Nest) IngestTraces(agentID string, traces, metadata map[string]interface{}) {
	n.store.Append(agentID, traces, metadata)
	n.metrics.TracesIngested.Inc()

	n.logger.Info("received traces",
		zap.String("agent_id", agentID),
		zap.Int("layers", len(traces)),
	)

	n.hub.Publish(Update{
		Type:      "trace_update",
		AgentID:   agentID,
		Data:      map[string]interface{}{"traces": traces, "metadata": metadata},
		Timestamp: time.Now().Unix(),
	})
}

// Traces returns the most recent limit entries, optionally one agent's.
func (n *Nest) Traces(limit int, agentID string) []trace.Entry {
	return n.store.List(limit, agentID)
}

// Agents returns the merged agent presence list.
func (n *Nest) Agents() []trace.Agent {
	return n.store.Agents()
}

// Stats recomputes aggregate statistics over the full history.
func (n *Nest) Stats() trace.Stats {
	return n.store.Aggregate()
}

// Viewers reports the number of currently connected dashboard viewers.
func (n *Nest) Viewers() int {
	return n.hub.Size()
}

// Hub exposes the viewer hub for connection handlers.
func (n *Nest) Hub() *hub.Hub {
	return n.hub
}
