package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/brickrt/pkg/adapters/memory"
	"github.com/aretw0/brickrt/pkg/ports"
)

// definitionExts are the file extensions read as definitions.
var definitionExts = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// LoadLibrary parses every definition in dir into a library keyed by the
// definition name, or the file name without extension when unnamed.
// The process bricks file is skipped.
func LoadLibrary(ctx context.Context, dir string, registry ports.BrickRegistry, skip ...string) (*memory.Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read library: %w", err)
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[filepath.Clean(s)] = true
	}

	library, err := memory.NewLibrary(nil)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !definitionExts[ext] || skipped[filepath.Clean(path)] {
			continue
		}
		def, err := LoadDefinition(ctx, path, registry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := def.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ext)
		}
		if err := library.Put(name, def.Pipeline); err != nil {
			errs = append(errs, err)
		}
	}
	return library, errors.Join(errs...)
}
