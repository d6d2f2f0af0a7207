package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kastrel/nest/internal/relay"
	"github.com/kastrel/nest/internal/summary"
)

// tokenFrame is the wire shape re-emitted to the dashboard for each
// upstream token event.
type tokenFrame struct {
	Type              string   `json:"type"`
	Order             int      `json:"order"`
	Token             string   `json:"token"`
	HallucinationProb *float64 `json:"hallucination_prob,omitempty"`
}

// Summarize relays a streaming summary for one subject. The response is
// SSE regardless of outcome: upstream failures after the request is
// accepted surface as a terminal error frame, not a status code, because
// by then the stream may already be half-delivered. Client disconnect
// cancels the upstream request through the request context.
func (h *Handlers) Summarize(c *gin.Context) {
	subjectID := c.Param("id")

	var bundle summary.Bundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	stream, err := h.relay.Summarize(c.Request.Context(), summary.BuildRequest(subjectID, bundle))
	if err != nil {
		h.metrics.RelayRequests.WithLabelValues("error").Inc()
		h.logger.Error("summarize request failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": serviceMessage(err)})
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()

	for {
		event, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.metrics.RelayRequests.WithLabelValues("ok").Inc()
				writeFrame(c.Writer, gin.H{"type": "done"})
				return
			}
			h.metrics.RelayRequests.WithLabelValues("error").Inc()
			h.logger.Error("summary stream failed",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
			writeFrame(c.Writer, gin.H{"type": "error", "message": serviceMessage(err)})
			return
		}

		h.metrics.RelayTokens.Inc()
		writeFrame(c.Writer, tokenFrame{
			Type:              "token",
			Order:             event.Order,
			Token:             event.Token,
			HallucinationProb: event.HallucinationProb,
		})
	}
}

// writeFrame emits one SSE data frame and flushes it immediately so
// tokens reach the browser as they arrive, not when the response ends.
func writeFrame(w gin.ResponseWriter, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.Flush()
}

// serviceMessage unwraps the relay error for caller display, stripping
// the internal prefix.
func serviceMessage(err error) string {
	var se *relay.ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
