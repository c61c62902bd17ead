package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client invokes messenger methods on a remote Server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the traced default client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// Invoke implements ports.Messenger.
func (c *Client) Invoke(ctx context.Context, method string, target domain.Target, args ...any) (any, error) {
	wire, err := messenger.Normalize(args)
	if err != nil {
		return nil, err
	}
	if wire == nil {
		wire = []any{}
	}
	body, err := json.Marshal(map[string]any{"args": wire})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rpc/%d/%d/%s", c.baseURL, target.TabID, target.FrameID, url.PathEscape(method))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	nonce := uuid.NewString()
	c.logger.Debug("Sending message", "method", method, "nonce", nonce, "tab_id", target.TabID, "frame_id", target.FrameID)

	var env envelope
	status, err := c.do(req, &env)
	if err != nil {
		return nil, err
	}
	if env.Error != nil {
		c.logger.Debug("Message rejected", "method", method, "nonce", nonce, "status", status)
		if env.Error.Name == noReceiverName {
			return nil, fmt.Errorf("%w: tab %d frame %d", messenger.ErrNoReceiver, target.TabID, target.FrameID)
		}
		return nil, messenger.DeserializeError(env.Error)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", status, method)
	}
	return env.Result, nil
}

// Frames implements ports.FrameLister.
func (c *Client) Frames(ctx context.Context, tabID int) ([]domain.Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/frames/%d", c.baseURL, tabID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	var frames []domain.Target
	status, err := c.do(req, &frames)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d listing frames", status)
	}
	return frames, nil
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return 0, domain.AsCancel(ctxErr)
		}
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}
