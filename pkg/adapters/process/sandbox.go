package process

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/sandbox"
)

// Sandbox is a ports.TemplateSandbox backed by a child process speaking the
// line protocol of sandbox.Serve. The child is started on first use and
// restarted after it dies or a render is cancelled.
type Sandbox struct {
	command string
	args    []string
	env     []string
	logger  *slog.Logger

	mu    sync.Mutex
	child *child
}

type child struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies chan []byte
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithEnv adds environment variables to the child.
func WithEnv(env ...string) SandboxOption {
	return func(s *Sandbox) {
		s.env = append(s.env, env...)
	}
}

// WithSandboxLogger sets the logger for child lifecycle events.
func WithSandboxLogger(logger *slog.Logger) SandboxOption {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// NewSandbox creates a sandbox that runs command with args, e.g.
// NewSandbox(os.Args[0], []string{"sandbox"}).
func NewSandbox(command string, args []string, opts ...SandboxOption) *Sandbox {
	s := &Sandbox{command: command, args: args}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

// Render implements ports.TemplateSandbox. Requests are answered one at a time.
func (s *Sandbox) Render(ctx context.Context, req domain.SandboxRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", &domain.ConfigurationError{Message: "template context is not serializable", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", domain.AsCancel(err)
	}
	c, err := s.ensureChild()
	if err != nil {
		return "", err
	}

	if _, err := c.stdin.Write(append(payload, '\n')); err != nil {
		s.stopChild()
		return "", fmt.Errorf("failed to write to sandbox: %w", err)
	}

	select {
	case raw, ok := <-c.replies:
		if !ok {
			s.stopChild()
			return "", errors.New("sandbox process exited")
		}
		return sandbox.DecodeResponse(raw)
	case <-ctx.Done():
		// The reply is now out of step with the next request.
		s.stopChild()
		return "", domain.AsCancel(ctx.Err())
	}
}

// Close stops the child process.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopChild()
	return nil
}

func (s *Sandbox) ensureChild() (*child, error) {
	if s.child != nil {
		return s.child, nil
	}

	cmd := exec.Command(s.command, s.args...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to start sandbox: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to start sandbox: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start sandbox: %w", err)
	}

	c := &child{cmd: cmd, stdin: stdin, replies: make(chan []byte, 1)}
	go func() {
		defer close(c.replies)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 8<<20)
		for scanner.Scan() {
			c.replies <- append([]byte(nil), scanner.Bytes()...)
		}
	}()

	s.logger.Debug("Sandbox process started", "pid", cmd.Process.Pid)
	s.child = c
	return c, nil
}

func (s *Sandbox) stopChild() {
	if s.child == nil {
		return
	}
	c := s.child
	s.child = nil
	_ = c.stdin.Close()
	_ = c.cmd.Process.Kill()
	go func() {
		for range c.replies {
		}
		_ = c.cmd.Wait()
	}()
	s.logger.Debug("Sandbox process stopped", "pid", c.cmd.Process.Pid)
}
