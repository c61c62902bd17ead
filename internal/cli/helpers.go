package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// NewLogger configures the application logger. Without debug only warnings
// and errors reach stderr.
func NewLogger(debug, jsonFormat bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	if jsonFormat {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStatus: func(_ context.Context, e *domain.RunEvent) {
			logger.Debug("Run status", "run_id", e.RunID, "status", e.Status, "index", e.Index)
		},
		OnBrickStart: func(_ context.Context, e *domain.BrickEvent) {
			logger.Debug("Brick start", "brick_id", e.BrickID, "instance_id", e.InstanceID)
		},
		OnBrickFinish: func(_ context.Context, e *domain.BrickEvent) {
			if e.Err != nil {
				logger.Debug("Brick finish (error)", "brick_id", e.BrickID, "err", e.Err, "duration", e.Duration)
				return
			}
			logger.Debug("Brick finish", "brick_id", e.BrickID, "duration", e.Duration)
		},
		OnBrickSkip: func(_ context.Context, e *domain.BrickEvent) {
			logger.Debug("Brick skipped", "brick_id", e.BrickID, "instance_id", e.InstanceID)
		},
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || domain.IsCancel(err)
}

// handleExecutionError swallows interruptions so Ctrl+C exits cleanly.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
