// Package mcp exposes a brick runtime as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/internal/runtime"
	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/schema"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RunResponse is the structured result of the run tools.
type RunResponse struct {
	RunID    string                  `json:"runId" jsonschema_description:"Id correlating the run's traces"`
	Output   any                     `json:"output,omitempty" jsonschema_description:"Output of the last step"`
	Renderer *domain.RendererPayload `json:"renderer,omitempty" jsonschema_description:"What the renderer would have displayed (headless runs)"`
}

// BrickInfo describes a registered brick.
type BrickInfo struct {
	ID       domain.RegistryID `json:"id"`
	Kind     domain.BrickKind  `json:"kind"`
	Locality domain.Locality   `json:"locality"`
	Inputs   schema.Schema     `json:"inputs,omitempty"`
}

// Server wraps an Engine and a pipeline library as an MCP server.
type Server struct {
	engine    *runtime.Engine
	library   *memory.Library
	logger    *slog.Logger
	version   string
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server. library may be nil when no named
// pipelines are served.
func NewServer(engine *runtime.Engine, library *memory.Library, opts ...Option) *Server {
	s := &Server{engine: engine, library: library, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	s.mcpServer = server.NewMCPServer("brickrt-mcp", s.version)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_brick",
		mcp.WithDescription("Run a single registered brick with the given config."),
		mcp.WithString("brick_id", mcp.Required(), mcp.Description("Registry id, e.g. @brickrt/identity")),
		mcp.WithString("config", mcp.Description("JSON object of brick config; expressions use the {__type__, __value__} form")),
		mcp.WithString("input", mcp.Description("JSON value bound as @input")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.HandleRunBrick))

	if s.library != nil {
		s.mcpServer.AddTool(mcp.NewTool("run_pipeline",
			mcp.WithDescription("Run a named pipeline."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Pipeline name")),
			mcp.WithString("input", mcp.Description("JSON value bound as @input")),
			mcp.WithBoolean("headless", mcp.Description("Return the renderer payload instead of displaying it")),
			mcp.WithOutputSchema[RunResponse](),
		), mcp.NewStructuredToolHandler(s.HandleRunPipeline))
	}

	s.mcpServer.AddTool(mcp.NewTool("list_bricks",
		mcp.WithDescription("List the registered bricks."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(s.bricks())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	})
}

// HandleRunBrick runs one brick.
func (s *Server) HandleRunBrick(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	id, _ := args["brick_id"].(string)
	if id == "" {
		return RunResponse{}, errors.New("brick_id is required")
	}
	var config map[string]any
	if err := decodeJSONArg(args, "config", &config); err != nil {
		return RunResponse{}, err
	}
	var input any
	if err := decodeJSONArg(args, "input", &input); err != nil {
		return RunResponse{}, err
	}

	initial := runtime.InitialValues{Input: input}
	opts := runtime.RunOptions{RunID: uuid.NewString()}
	res, err := s.engine.RunBrick(ctx, domain.BrickConfig{ID: domain.RegistryID(id), Config: config},
		runtime.IntermediateState{Scope: initial.Scope(), PreviousOutput: input, IsLastBrick: true}, opts)
	if err != nil {
		s.logger.Debug("MCP run_brick failed", "brick_id", id, "err", err)
		return RunResponse{}, fmt.Errorf("run failed: %w", err)
	}
	return RunResponse{RunID: opts.RunID, Output: domain.Deref(res.Output)}, nil
}

// HandleRunPipeline runs a pipeline from the library.
func (s *Server) HandleRunPipeline(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	name, _ := args["name"].(string)
	pipeline, err := s.library.Get(name)
	if err != nil {
		return RunResponse{}, err
	}
	var input any
	if err := decodeJSONArg(args, "input", &input); err != nil {
		return RunResponse{}, err
	}
	headless, _ := args["headless"].(bool)

	runID := uuid.NewString()
	initial := runtime.InitialValues{Input: input}
	opts := runtime.RunOptions{RunID: runID}
	if headless {
		payload, err := s.engine.RunRendererPipeline(ctx, pipeline, initial, opts)
		if err != nil {
			return RunResponse{}, fmt.Errorf("run failed: %w", err)
		}
		return RunResponse{RunID: runID, Renderer: payload}, nil
	}

	out, err := s.engine.ReducePipeline(ctx, pipeline, initial, opts)
	if err != nil {
		return RunResponse{}, fmt.Errorf("run failed: %w", err)
	}
	return RunResponse{RunID: runID, Output: domain.Deref(out)}, nil
}

func (s *Server) bricks() []BrickInfo {
	defs := s.engine.Registry().List()
	out := make([]BrickInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, BrickInfo{ID: d.ID, Kind: d.Kind, Locality: d.Locality, Inputs: d.Inputs})
	}
	return out
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("brickrt://bricks", "Registered bricks",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, err := json.Marshal(s.bricks())
		if err != nil {
			return nil, fmt.Errorf("failed to list bricks: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "brickrt://bricks", MIMEType: "application/json", Text: string(raw)},
		}, nil
	})

	if s.library == nil {
		return
	}
	s.mcpServer.AddResource(mcp.NewResource("brickrt://pipelines", "Named pipelines",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, _ := json.Marshal(s.library.Names())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "brickrt://pipelines", MIMEType: "application/json", Text: string(raw)},
		}, nil
	})
}

func decodeJSONArg(args map[string]any, key string, out any) error {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", key, err)
	}
	return nil
}
