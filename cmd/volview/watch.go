package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/volren/render"
	"github.com/gogpu/volren/transfer"
)

// settle is how long to wait for a burst of write events to end before
// reading the file.
const settle = 50 * time.Millisecond

// watchTransferFunction reloads the 1D transfer function at path into the
// first view whenever the file changes, repainting all views. It returns
// after d or when ctx is cancelled.
func watchTransferFunction(ctx context.Context, path string, d time.Duration, views []*render.Context, log *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// Editors replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	name := filepath.Clean(path)
	log.Info("volview: watching transfer function", "path", name, "for", d)

	deadline := time.After(d)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			log.Warn("volview: watch error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if filepath.Clean(ev.Name) != name || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			pending = time.After(settle)
		case <-pending:
			pending = nil
			if err := reload(path, views[0]); err != nil {
				log.Error("volview: reload failed", "path", path, "error", err)
				continue
			}
			log.Info("volview: transfer function reloaded", "path", path)
			if err := paint(ctx, views); err != nil {
				return err
			}
		}
	}
}

func reload(path string, v *render.Context) error {
	fn, err := transfer.Load1DFile(path)
	if err != nil {
		return err
	}
	return v.Edit1DTransferFunction(func(f *transfer.Function1D) {
		f.CopyFrom(fn)
	})
}
