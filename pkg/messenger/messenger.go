// Package messenger carries named calls between execution contexts.
//
// Each frame owns an Endpoint with a handler table. A Hub routes calls to
// the endpoints it hosts; every argument, result and error crosses the hop
// as JSON, so the receiving side never shares memory with the caller.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/google/uuid"
)

var (
	// ErrNoReceiver is returned when no endpoint is registered for a target.
	ErrNoReceiver = errors.New("no receiver for target")
	// ErrNoHandler is returned when an endpoint has no handler for a method.
	ErrNoHandler = errors.New("no handler registered")
)

// Call is an invocation as seen by its handler.
type Call struct {
	Method string
	// Target is the frame handling the call.
	Target domain.Target
	Args   []any
}

// Decode decodes argument i into out.
func (c Call) Decode(i int, out any) error {
	if i < 0 || i >= len(c.Args) {
		return fmt.Errorf("%s: missing argument %d", c.Method, i)
	}
	return DecodeArg(c.Args[i], out)
}

// Handler serves one method of an endpoint.
type Handler func(ctx context.Context, call Call) (any, error)

// Endpoint is the handler table of one frame.
type Endpoint struct {
	target   domain.Target
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewEndpoint creates an empty endpoint for target.
func NewEndpoint(target domain.Target) *Endpoint {
	return &Endpoint{target: target, handlers: make(map[string]Handler)}
}

// Target returns the frame the endpoint serves.
func (e *Endpoint) Target() domain.Target { return e.target }

// Handle registers h for method, replacing any previous handler.
func (e *Endpoint) Handle(method string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[method] = h
}

// Dispatch runs the handler for method with args that have already crossed the wire.
func (e *Endpoint) Dispatch(ctx context.Context, method string, args []any) (any, error) {
	e.mu.RLock()
	h, ok := e.handlers[method]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, method)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.AsCancel(err)
	}
	return h(ctx, Call{Method: method, Target: e.target, Args: args})
}

// Hub routes calls between in-process endpoints.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[domain.Target]*Endpoint
	logger    *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger for message traffic.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates a hub without endpoints.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{endpoints: make(map[domain.Target]*Endpoint)}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger)
	return h
}

// Endpoint returns the endpoint of target, creating it on first use.
func (h *Hub) Endpoint(target domain.Target) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	ep, ok := h.endpoints[target]
	if !ok {
		ep = NewEndpoint(target)
		h.endpoints[target] = ep
	}
	return ep
}

// Remove unregisters the endpoint of target, as when a frame navigates away.
func (h *Hub) Remove(target domain.Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, target)
}

// Invoke calls method on the endpoint of target.
func (h *Hub) Invoke(ctx context.Context, method string, target domain.Target, args ...any) (any, error) {
	h.mu.RLock()
	ep, ok := h.endpoints[target]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tab %d frame %d", ErrNoReceiver, target.TabID, target.FrameID)
	}

	wire, err := normalizeArgs(args)
	if err != nil {
		return nil, err
	}

	nonce := uuid.NewString()
	h.logger.Debug("Sending message", "method", method, "nonce", nonce, "tab_id", target.TabID, "frame_id", target.FrameID)

	// The receiver may ignore ctx, so the caller stops waiting on its own.
	type reply struct {
		result any
		err    error
	}
	replies := make(chan reply, 1)
	go func() {
		result, err := ep.Dispatch(ctx, method, wire)
		replies <- reply{result, err}
	}()

	var rep reply
	select {
	case rep = <-replies:
	case <-ctx.Done():
		h.logger.Debug("Message abandoned", "method", method, "nonce", nonce, "err", ctx.Err())
		return nil, domain.AsCancel(ctx.Err())
	}
	if rep.err != nil {
		h.logger.Debug("Message rejected", "method", method, "nonce", nonce, "err", rep.err)
		return nil, DeserializeError(SerializeError(rep.err))
	}
	return Normalize(rep.result)
}

// Frames lists the registered frames of a tab, top frame first.
func (h *Hub) Frames(_ context.Context, tabID int) ([]domain.Target, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var frames []domain.Target
	for target := range h.endpoints {
		if target.TabID == tabID {
			frames = append(frames, target)
		}
	}
	slices.SortFunc(frames, func(a, b domain.Target) int { return a.FrameID - b.FrameID })
	return frames, nil
}
