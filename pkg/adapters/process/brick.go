// Package process runs local processes on behalf of the runtime: allow-listed
// commands exposed as bricks, and the template sandbox as a subprocess.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/brickrt/pkg/domain"
)

// ArgPrefix prefixes the environment variables that carry brick args.
const ArgPrefix = "BRICKRT_ARG_"

// BrickOption configures process bricks.
type BrickOption func(*brickConfig)

type brickConfig struct {
	baseDir string
}

// WithBaseDir sets the working directory of executed commands.
func WithBaseDir(dir string) BrickOption {
	return func(c *brickConfig) {
		c.baseDir = dir
	}
}

// BrickID returns the registry id of the process brick named name.
func BrickID(name string) domain.RegistryID {
	return domain.RegistryID("@process/" + name)
}

// Bricks turns configs into effect bricks.
func Bricks(configs []ProcessConfig, opts ...BrickOption) []domain.Brick {
	var cfg brickConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	bricks := make([]domain.Brick, 0, len(configs))
	for _, pc := range configs {
		bricks = append(bricks, newBrick(pc, cfg))
	}
	return bricks
}

func newBrick(pc ProcessConfig, cfg brickConfig) domain.Brick {
	locality := domain.LocalityAny
	if pc.Page {
		locality = domain.LocalityPage
	}
	meta := domain.Metadata{
		ID:          BrickID(pc.Name),
		Name:        pc.Name,
		Description: pc.Description,
		Kind:        domain.KindEffect,
		Locality:    locality,
	}
	return domain.NewBrick(meta, func(ctx context.Context, args map[string]any, _ domain.BrickOptions) (any, error) {
		return execute(ctx, pc, cfg, args)
	})
}

// execute runs the command. Args are passed as environment variables, never
// as command-line flags, so a value cannot inject options.
func execute(ctx context.Context, pc ProcessConfig, cfg brickConfig, args map[string]any) (any, error) {
	cmd := exec.CommandContext(ctx, pc.Command, pc.Args...)
	cmd.Dir = cfg.baseDir

	env := cmd.Environ()
	for k, v := range pc.Environment {
		env = append(env, k+"="+v)
	}
	cmd.Env = append(env, argEnv(args)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, domain.AsCancel(ctx.Err())
		}
		return nil, &domain.BusinessError{
			Message: fmt.Sprintf("%s failed: %s", pc.Name, strings.TrimSpace(stderr.String())),
			Err:     err,
		}
	}

	trimmed := strings.TrimSpace(stdout.String())
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var out any
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			return out, nil
		}
	}
	return trimmed, nil
}

func argEnv(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		var val string
		switch v := domain.Deref(args[k]).(type) {
		case nil:
		case string:
			val = v
		case int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		default:
			if raw, err := json.Marshal(v); err == nil {
				val = string(raw)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(k))
		env = append(env, ArgPrefix+name+"="+val)
	}
	return env
}
