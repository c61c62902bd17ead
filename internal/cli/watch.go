package cli

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/aretw0/brickrt/internal/presentation/tui"
	"github.com/fsnotify/fsnotify"
)

// debounce lets editors finish writing before a reload.
const debounce = 100 * time.Millisecond

// Watch runs the definition, then re-runs it every time the file changes.
// A run still in flight when the file changes is cancelled. It returns when
// ctx is done.
func Watch(ctx context.Context, opts RunOptions, w io.Writer) error {
	env, err := NewEnv(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	target, err := filepath.Abs(opts.Path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	tui.PrintBanner(w)
	env.Logger.Info("Starting watcher", "path", target)
	printSystemMessage(w, "Watching '%s'.", opts.Path)

	changes := make(chan struct{}, 1)
	go forwardChanges(ctx, watcher, target, changes, env)

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- runOnce(runCtx, env, opts, w) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case <-changes:
			cancel()
			<-done
			printSystemMessage(w, "Change detected, reloading.")
			continue
		case err := <-done:
			cancel()
			if err != nil && !isInterrupted(err) {
				env.Logger.Error("Run failed", "err", err)
			}
			printSystemMessage(w, "Waiting for changes...")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			printSystemMessage(w, "Change detected, reloading.")
		}
	}
}

func forwardChanges(ctx context.Context, watcher *fsnotify.Watcher, target string, changes chan<- struct{}, env *Env) {
	var timer *time.Timer
	fire := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			env.Logger.Debug("File changed", "event", event.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fire)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, context.Canceled) {
				env.Logger.Warn("Watcher error", "err", err)
			}
		}
	}
}
