package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/kastrel/nest/internal/infrastructure/logging"
	"github.com/kastrel/nest/internal/infrastructure/resilience"
)

// ServiceError is the single error type surfaced to summarize callers.
// It covers connection failures, timeouts, non-success status codes, and
// in-band error frames sent by the summary service itself.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "summary service: " + e.Message
}

// TokenEvent is one upstream-delivered unit of a summary stream.
type TokenEvent struct {
	Order             int      `json:"order"`
	Token             string   `json:"token"`
	HallucinationProb *float64 `json:"hallucination_prob,omitempty"`
}

// Request is the body of a summarize call.
type Request struct {
	Prompt      string                   `json:"prompt"`
	SubjectData map[string]interface{}   `json:"subject_data"`
	Documents   []map[string]interface{} `json:"documents"`
	Messages    []map[string]interface{} `json:"messages"`
}

// Config holds relay client settings.
type Config struct {
	BaseURL        string
	Timeout        time.Duration // overall request budget for a stream
	ConnectTimeout time.Duration

	// BreakerThreshold is the number of consecutive failures before the
	// client stops trying the upstream for BreakerCooldown.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// Client performs streaming summarize requests against the summary
// service. It holds no shared mutable state; each Summarize call owns an
// independent upstream connection.
type Client struct {
	rest    *resty.Client
	logger  *logging.Logger
	breaker *resilience.Breaker

	connectTimeout time.Duration
}

// NewClient builds a relay client for the given upstream base URL.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "kastrel-nest/0.2")

	// Bound the dial separately from the overall budget so "cannot reach
	// the service" reports quickly instead of eating the whole timeout.
	transport := retryClient.HTTPClient.Transport
	if t, ok := transport.(*http.Transport); ok {
		t = t.Clone()
		t.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
		transport = t
	}
	rest.SetTransport(transport)

	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	breaker := resilience.New("summary-service", resilience.Settings{
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("summary service circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		rest:           rest,
		logger:         logger,
		breaker:        breaker,
		connectTimeout: cfg.ConnectTimeout,
	}
}

// Summarize opens one streaming POST to the summary service and returns a
// Stream yielding TokenEvents in upstream arrival order. The stream is
// single-consumption; consuming it fully, calling Close, or cancelling ctx
// all release the underlying connection. Repeated failures trip the
// circuit breaker, after which calls fail fast until the cooldown passes.
func (c *Client) Summarize(ctx context.Context, req Request) (*Stream, error) {
	var (
		stream    *Stream
		cancelErr error
	)
	err := c.breaker.Do(func() error {
		s, err := c.open(ctx, req)
		if err != nil {
			// A caller that went away says nothing about upstream health.
			if ctx.Err() != nil {
				cancelErr = err
				return nil
			}
			return err
		}
		stream = s
		return nil
	})
	if cancelErr != nil {
		return nil, cancelErr
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, &ServiceError{Message: "temporarily unavailable, retry later"}
		}
		return nil, err
	}
	return stream, nil
}

func (c *Client) open(ctx context.Context, req Request) (*Stream, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Content-Type", "application/json").
		SetDoNotParseResponse(true).
		Post("/api/v1/summarize")
	if err != nil {
		return nil, translateTransportError(err)
	}

	if resp.StatusCode() != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.RawBody(), 4096))
		resp.RawBody().Close()
		return nil, &ServiceError{
			Message: fmt.Sprintf("returned status %d: %s", resp.StatusCode(), strings.TrimSpace(string(body))),
		}
	}

	c.logger.Info("streaming summary from summary service",
		zap.Int("num_documents", len(req.Documents)),
		zap.Int("num_messages", len(req.Messages)),
	)

	return &Stream{
		body:    resp.RawBody(),
		scanner: bufio.NewScanner(resp.RawBody()),
		logger:  c.logger,
	}, nil
}

// Health probes the summary service. Any connection problem reports false
// rather than an error; the probe is bounded by the connect timeout.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	resp, err := c.rest.R().SetContext(ctx).Get("/health")
	if err != nil {
		c.logger.Warn("summary service health check failed", zap.Error(err))
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

// Stream is a single-consumption sequence of TokenEvents. Not safe for
// concurrent use; one caller consumes one stream.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *logging.Logger
	err     error
	done    bool
}

// sseFrame is the superset of frames the summary service emits.
type sseFrame struct {
	Type              string   `json:"type"`
	Message           string   `json:"message"`
	Order             int      `json:"order"`
	Token             string   `json:"token"`
	HallucinationProb *float64 `json:"hallucination_prob"`
}

// Next returns the next token event. It returns io.EOF when the upstream
// completed normally and a *ServiceError when the upstream failed or sent
// an in-band error frame. After either, Next never yields again.
func (s *Stream) Next() (*TokenEvent, error) {
	if s.done {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())

		// SSE framing: only "data: " lines carry payloads; blank lines and
		// comment/other fields are protocol noise.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var frame sseFrame
		if err := sonic.Unmarshal([]byte(payload), &frame); err != nil {
			s.logger.Warn("skipping malformed summary frame",
				zap.String("payload", payload),
				zap.Error(err),
			)
			continue
		}

		if frame.Type == "error" {
			msg := frame.Message
			if msg == "" {
				msg = "unknown error"
			}
			return nil, s.finish(&ServiceError{Message: msg})
		}

		return &TokenEvent{
			Order:             frame.Order,
			Token:             frame.Token,
			HallucinationProb: frame.HallucinationProb,
		}, nil
	}

	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			// Caller-side cancellation is a normal early termination.
			s.finish(nil)
			return nil, io.EOF
		}
		return nil, s.finish(translateTransportError(err))
	}

	s.finish(nil)
	return nil, io.EOF
}

// Close releases the upstream connection. Safe to call multiple times and
// required when abandoning a stream early.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.finish(nil)
	return nil
}

func (s *Stream) finish(err error) error {
	s.done = true
	s.err = err
	s.body.Close()
	return err
}

// translateTransportError maps connectivity and timeout failures onto the
// caller-facing error type.
func translateTransportError(err error) *ServiceError {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err):
		return &ServiceError{Message: fmt.Sprintf("request timed out: %v", err)}
	case errors.Is(err, context.Canceled):
		return &ServiceError{Message: fmt.Sprintf("request cancelled: %v", err)}
	default:
		return &ServiceError{Message: fmt.Sprintf("cannot connect: %v", err)}
	}
}
