package hub

import (
	"io"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/kastrel/nest/internal/infrastructure/logging"
	"github.com/kastrel/nest/internal/infrastructure/monitoring"
)

// Channel is one live push connection to a viewer. Send must honor its own
// deadline: a hung write is the implementation's problem to time out, and
// the hub treats a deadline-exceeded send the same as a failed one.
type Channel interface {
	Send(data []byte) error
}

// Hub fans published messages out to every live channel. Delivery is
// best-effort: a channel whose send fails is evicted as part of the
// publish, and the failure never reaches the publisher.
type Hub struct {
	mu       sync.RWMutex
	channels map[Channel]struct{}
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates an empty hub.
func New(logger *logging.Logger) *Hub {
	return &Hub{
		channels: make(map[Channel]struct{}),
		logger:   logger,
	}
}

// WithMetrics attaches broadcast metrics.
func (h *Hub) WithMetrics(m *monitoring.Metrics) *Hub {
	h.metrics = m
	return h
}

// Subscribe records a channel as live.
func (h *Hub) Subscribe(ch Channel) {
	h.mu.Lock()
	h.channels[ch] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes a channel. Removing an unknown channel is a no-op.
func (h *Hub) Unsubscribe(ch Channel) {
	h.mu.Lock()
	delete(h.channels, ch)
	h.mu.Unlock()
}

// Size reports the current number of live channels.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Publish serializes msg once and delivers it to every live channel.
// The lock covers only set manipulation, never the sends, so one slow
// peer cannot stall subscribes, unsubscribes, or other publishers.
func (h *Hub) Publish(msg interface{}) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Warn("dropping unserializable broadcast", zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.BroadcastsTotal.Inc()
	}

	h.mu.RLock()
	live := make([]Channel, 0, len(h.channels))
	for ch := range h.channels {
		live = append(live, ch)
	}
	h.mu.RUnlock()

	var dead []Channel
	for _, ch := range live {
		if err := ch.Send(data); err != nil {
			h.logger.Debug("evicting broken channel", zap.Error(err))
			dead = append(dead, ch)
		}
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, ch := range dead {
		delete(h.channels, ch)
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.BroadcastEvictions.Add(float64(len(dead)))
	}
	for _, ch := range dead {
		if closer, ok := ch.(io.Closer); ok {
			closer.Close()
		}
	}
}
