package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	eventbus "github.com/hanpama/graphsync/internal/eventbus"
	events "github.com/hanpama/graphsync/internal/events"
	"golang.org/x/time/rate"
)

// HTTPExecutor posts operations to a GraphQL endpoint with bearer
// authentication.
type HTTPExecutor struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	seq      atomic.Uint64
}

type Option func(*HTTPExecutor)

// WithHTTPClient replaces the default client. Its Timeout is kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(e *HTTPExecutor) { e.client = c }
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(e *HTTPExecutor) {
		c := *e.client
		c.Timeout = d
		e.client = &c
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(e *HTTPExecutor) {
		if perSecond <= 0 {
			e.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *HTTPExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewHTTPExecutor(endpoint, token string, opts ...Option) *HTTPExecutor {
	e := &HTTPExecutor{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *HTTPExecutor) Execute(ctx context.Context, op Operation) (*Response, error) {
	seq := e.seq.Add(1)
	start := time.Now()
	eventbus.Publish(ctx, events.RemoteStart{Seq: seq, OperationName: op.Name, Endpoint: e.endpoint})

	resp, status, err := e.do(ctx, op)

	finish := events.RemoteFinish{
		Seq:           seq,
		OperationName: op.Name,
		Endpoint:      e.endpoint,
		StatusCode:    status,
		Err:           err,
		Duration:      time.Since(start),
	}
	if resp != nil {
		finish.ErrorCount = len(resp.Errors)
	}
	eventbus.Publish(ctx, finish)

	if err != nil {
		e.logger.WarnContext(ctx, "remote operation failed",
			"operation", op.Name, "status", status, "error", err)
		return nil, err
	}
	e.logger.DebugContext(ctx, "remote operation",
		"operation", op.Name, "status", status, "duration", finish.Duration, "errors", finish.ErrorCount)
	return resp, nil
}

func (e *HTTPExecutor) do(ctx context.Context, op Operation) (*Response, int, error) {
	fail := func(status int, err error) (*Response, int, error) {
		return nil, status, &TransportError{Operation: op.Name, StatusCode: status, Err: err}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return fail(0, err)
		}
	}

	body, err := json.Marshal(op)
	if err != nil {
		return fail(0, fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	httpResp, err := e.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fail(httpResp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return fail(httpResp.StatusCode, fmt.Errorf("decode body: %w", err))
	}
	ok := httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	if !ok && len(out.Data) == 0 && len(out.Errors) == 0 {
		return fail(httpResp.StatusCode, errors.New(http.StatusText(httpResp.StatusCode)))
	}
	return &out, httpResp.StatusCode, nil
}
