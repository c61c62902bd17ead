package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/brickrt/internal/runtime"
	brickhttp "github.com/aretw0/brickrt/pkg/adapters/http"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
)

// ServeOptions configures the messenger server.
type ServeOptions struct {
	Config
	Addr  string
	TabID int
	// Frames is the number of frames the tab exposes, numbered from 0.
	Frames int
}

// NewServeHandler builds the hub and HTTP handler for a simulated tab whose
// frames all run page bricks with env's engine.
func NewServeHandler(env *Env, opts ServeOptions) (http.Handler, *messenger.Hub) {
	hub := messenger.NewHub(messenger.WithLogger(env.Logger))
	frames := opts.Frames
	if frames < 1 {
		frames = 1
	}
	for frameID := 0; frameID < frames; frameID++ {
		endpoint := hub.Endpoint(domain.Target{TabID: opts.TabID, FrameID: frameID})
		runtime.RegisterHandlers(endpoint, env.Engine)
	}
	handler := brickhttp.NewHandler(hub,
		brickhttp.WithLogger(env.Logger),
		brickhttp.WithMetricsHandler(env.Metrics.Handler()),
	)
	return handler, hub
}

// Serve runs the messenger server until ctx is done.
func Serve(ctx context.Context, opts ServeOptions, w io.Writer) error {
	env, err := NewEnv(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	handler, _ := NewServeHandler(env, opts)
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(w, "Serving tab %d (%d frames) on %s", opts.TabID, max(opts.Frames, 1), opts.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			env.Logger.Error("Graceful shutdown did not complete", "err", err)
			return srv.Close()
		}
		printSystemMessage(w, "Server stopped gracefully")
		return nil
	}
}
