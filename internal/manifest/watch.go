package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the manifest at path whenever it changes and sends every
// successfully parsed version on the returned channel. Invalid versions are
// logged and skipped. The channel is closed when ctx ends.
//
// The containing directory is watched rather than the file, so editors that
// replace the file on save are handled.
func Watch(ctx context.Context, log *slog.Logger, path string) (<-chan *Manifest, error) {
	log = log.With("component", "manifest", "path", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()

		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	ch := make(chan *Manifest, 1)

	go func() {
		defer close(ch)
		defer watcher.Close()

		baseName := filepath.Base(path)

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Base(event.Name) != baseName {
					continue
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				m, err := Load(path)
				if err != nil {
					log.Warn("Ignoring invalid manifest update", "error", err)

					continue
				}

				log.Debug("Manifest reloaded", "sessions", len(m.Sessions))

				select {
				case ch <- m:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				log.Debug("Watcher error", "error", err)
			}
		}
	}()

	return ch, nil
}
