package trace

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Entry is one submitted observation from an agent, keyed by layer name.
// Entries are immutable once appended.
type Entry struct {
	AgentID  string                 `json:"agent_id"`
	Traces   map[string]interface{} `json:"traces"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Agent merges registration data with trace-derived presence.
// LastSeen is nil when the agent has neither a registration time nor a
// valid numeric timestamp in any of its traces.
type Agent struct {
	AgentID   string                 `json:"agent_id"`
	LastSeen  *float64               `json:"last_seen"`
	ModelInfo map[string]interface{} `json:"model_info,omitempty"`
}

// Stats is the aggregate view over the full history.
type Stats struct {
	TotalTraces    int      `json:"total_traces"`
	UniqueAgents   int      `json:"unique_agents"`
	LayersObserved []string `json:"layers_observed"`
}

type registration struct {
	registeredAt float64
	modelInfo    map[string]interface{}
}

// Store holds the append-only trace history and per-agent registrations.
// All methods are safe for concurrent use; readers may observe a shorter
// snapshot than a concurrent appender, never a torn one.
type Store struct {
	mu      sync.RWMutex
	history []Entry
	agents  map[string]registration
	limit   int // 0 = unbounded
}

// NewStore creates an empty store with unbounded history.
func NewStore() *Store {
	return &Store{
		agents: make(map[string]registration),
	}
}

// WithLimit caps the history length. When the cap is exceeded the oldest
// entries are dropped on append. Zero means unbounded.
func (s *Store) WithLimit(limit int) *Store {
	s.limit = limit
	return s
}

// Register upserts the registration record for an agent. A later
// registration overwrites any prior record for the same id.
func (s *Store) Register(agentID string, modelInfo map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agentID] = registration{
		registeredAt: float64(time.Now().Unix()),
		modelInfo:    modelInfo,
	}
}

// Append adds a new entry to the history.
func (s *Store) Append(agentID string, traces, metadata map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Entry{
		AgentID:  agentID,
		Traces:   traces,
		Metadata: metadata,
	})
	if s.limit > 0 && len(s.history) > s.limit {
		// Drop the oldest entries; copy so the backing array does not pin them.
		trimmed := make([]Entry, s.limit)
		copy(trimmed, s.history[len(s.history)-s.limit:])
		s.history = trimmed
	}
}

// List returns the most recent limit entries in insertion order,
// optionally filtered to one agent. The filter applies within the tail
// window, so a busy neighbor can crowd a quiet agent out of the result.
func (s *Store) List(limit int, agentID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tail := s.history
	if limit > 0 && len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}

	out := make([]Entry, 0, len(tail))
	for _, e := range tail {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len reports the current history length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Aggregate recomputes the aggregate view from the full history.
// Layers are returned sorted for stable output.
func (s *Store) Aggregate() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make(map[string]struct{}, len(s.agents))
	for id := range s.agents {
		agents[id] = struct{}{}
	}
	layers := make(map[string]struct{})
	for _, e := range s.history {
		agents[e.AgentID] = struct{}{}
		for layer := range e.Traces {
			layers[layer] = struct{}{}
		}
	}

	observed := make([]string, 0, len(layers))
	for layer := range layers {
		observed = append(observed, layer)
	}
	sort.Strings(observed)

	return Stats{
		TotalTraces:    len(s.history),
		UniqueAgents:   len(agents),
		LayersObserved: observed,
	}
}

// Agents merges registrations and trace-derived presence, sorted by id.
// last_seen is the max of the registration time and any numeric trace
// timestamp; malformed timestamps are skipped, never an error.
func (s *Store) Agents() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]*Agent)
	for id, reg := range s.agents {
		t := reg.registeredAt
		merged[id] = &Agent{
			AgentID:   id,
			LastSeen:  &t,
			ModelInfo: reg.modelInfo,
		}
	}

	for _, e := range s.history {
		a, ok := merged[e.AgentID]
		if !ok {
			a = &Agent{AgentID: e.AgentID}
			merged[e.AgentID] = a
		}
		if ts, ok := numericTimestamp(e.Metadata); ok {
			if a.LastSeen == nil || ts > *a.LastSeen {
				a.LastSeen = &ts
			}
		}
		if a.ModelInfo == nil {
			if mi, ok := e.Metadata["model_info"].(map[string]interface{}); ok {
				a.ModelInfo = mi
			}
		}
	}

	out := make([]Agent, 0, len(merged))
	for _, a := range merged {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// numericTimestamp extracts a numeric "timestamp" metadata field.
// Non-numeric values are treated as absent.
func numericTimestamp(metadata map[string]interface{}) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata["timestamp"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
