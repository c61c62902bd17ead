// Package sandbox evaluates expression-capable templates in isolation.
//
// Requests cross into the sandbox as JSON, so a template never sees a live
// runtime value (integration handles, element references, callbacks) and
// cannot reach back into the caller. The Worker runs the evaluation on a pool
// of goroutines inside the current process; Serve exposes the same protocol
// over a byte stream for subprocess isolation.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/templates"
)

// ErrClosed is returned by Render after Close.
var ErrClosed = errors.New("sandbox closed")

// Worker is an in-process template sandbox backed by a fixed pool of goroutines.
type Worker struct {
	jobs      chan job
	done      chan struct{}
	logger    *slog.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type job struct {
	payload []byte
	reply   chan []byte
}

// Option configures a Worker.
type Option func(*workerConfig)

type workerConfig struct {
	concurrency int
	logger      *slog.Logger
}

// WithConcurrency sets the number of evaluation goroutines.
func WithConcurrency(n int) Option {
	return func(c *workerConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger used for recovered evaluation panics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *workerConfig) {
		c.logger = logger
	}
}

// NewWorker starts a sandbox worker pool. Call Close to stop it.
func NewWorker(opts ...Option) *Worker {
	cfg := workerConfig{concurrency: 4}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNop()
	}

	w := &Worker{
		jobs:   make(chan job),
		done:   make(chan struct{}),
		logger: cfg.logger,
	}
	for i := 0; i < cfg.concurrency; i++ {
		w.wg.Add(1)
		go w.loop()
	}
	return w
}

// Render sends req into the sandbox and waits for the reply.
func (w *Worker) Render(ctx context.Context, req domain.SandboxRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.AsCancel(err)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", &domain.ConfigurationError{Message: "template context is not serializable", Err: err}
	}

	j := job{payload: payload, reply: make(chan []byte, 1)}
	select {
	case w.jobs <- j:
	case <-w.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", domain.AsCancel(ctx.Err())
	}

	select {
	case raw := <-j.reply:
		return DecodeResponse(raw)
	case <-ctx.Done():
		return "", domain.AsCancel(ctx.Err())
	}
}

// Close stops the pool. In-flight evaluations finish first.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case j := <-w.jobs:
			j.reply <- w.evaluate(j.payload)
		}
	}
}

// evaluate decodes, renders and encodes one request without touching caller memory.
func (w *Worker) evaluate(payload []byte) (reply []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Sandbox evaluation panicked", "panic", r)
			reply = encodeResponse("", fmt.Errorf("sandbox evaluation panicked: %v", r))
		}
	}()

	req, err := DecodeRequest(payload)
	if err != nil {
		return encodeResponse("", err)
	}
	out, err := templates.RenderIsolated(req)
	return encodeResponse(out, err)
}

// DecodeRequest parses a wire request. Whole JSON numbers decode as ints so
// templates print "3" rather than "3.000000".
func DecodeRequest(payload []byte) (domain.SandboxRequest, error) {
	var req domain.SandboxRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("failed to decode sandbox request: %w", err)
	}
	req.Context, _ = normalizeNumbers(req.Context).(map[string]any)
	return req, nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	}
	return v
}

func encodeResponse(out string, err error) []byte {
	resp := domain.SandboxResponse{Output: out}
	if err != nil {
		resp.Error = &domain.SerializedError{Name: "TemplateError", Message: err.Error()}
		var ce *domain.ConfigurationError
		if errors.As(err, &ce) {
			resp.Error = &domain.SerializedError{Name: "ConfigurationError", Message: ce.Message}
		}
	}
	raw, _ := json.Marshal(resp)
	return raw
}

// DecodeResponse turns a wire reply into output or a local error.
func DecodeResponse(raw []byte) (string, error) {
	var resp domain.SandboxResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode sandbox response: %w", err)
	}
	if resp.Error != nil {
		if resp.Error.Name == "ConfigurationError" {
			return "", &domain.ConfigurationError{Message: resp.Error.Message}
		}
		return "", errors.New(resp.Error.Message)
	}
	return resp.Output, nil
}
