package app

import (
	"context"
	"errors"
	"log/slog"

	"codeintel/internal/core/watcher"

	"golang.org/x/sync/errgroup"
)

// Watch feeds file changes under root into the change analyzer until ctx is
// cancelled. Pending changes are flushed before it returns.
func (e *Engine) Watch(ctx context.Context, root string) error {
	w, err := watcher.NewWatcher(root, e.Config.Exclude.Dirs, e.Config.Exclude.Files)
	if err != nil {
		return err
	}
	if err := w.Watch(); err != nil {
		_ = w.Close()
		return err
	}
	slog.Info("watching for changes", "root", root, "debounce", e.Config.Watch.Debounce)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Events closes once the watcher does; Run flushes on close.
		return e.analyzer.Run(context.Background(), w.Events())
	})
	g.Go(func() error {
		<-gctx.Done()
		return w.Close()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
