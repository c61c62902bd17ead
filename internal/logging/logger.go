package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/brickrt/pkg/domain"
)

// New creates a configured application logger.
// It writes to Stderr so Stdout stays free for pipeline output and the stdio protocols.
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
}

// NewJSON creates a JSON logger on w, for hosts that ship logs elsewhere.
func NewJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger
}

// ForRun scopes a logger to a pipeline run.
func ForRun(logger *slog.Logger, runID string, ref domain.ModComponentRef) *slog.Logger {
	logger = logger.With("run_id", runID)
	if ref.ModComponentID != "" {
		logger = logger.With("mod_id", ref.ModID, "mod_component_id", ref.ModComponentID)
	}
	return logger
}

// ForBrick scopes a logger to one step.
func ForBrick(logger *slog.Logger, id domain.RegistryID, instanceID string) *slog.Logger {
	return logger.With("brick_id", string(id), "instance_id", instanceID)
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	// Standardize 'error' key to 'err'
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}
