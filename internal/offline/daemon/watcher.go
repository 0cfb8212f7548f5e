package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchBundles watches the offline file namespace for documents written by
// other processes (a provisioning script dropping a route plan, a manual
// copy). Events are debounced per bundle so a writer doing many small
// writes produces one notification.
func (d *Daemon) watchBundles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create bundle watcher: %w", err)
	}
	if err := watcher.Add(d.store.FileDir()); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch bundle directory: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer watcher.Close()
		d.watchLoop(ctx, watcher)
	}()
	return nil
}

func (d *Daemon) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	// Pending bundle names accumulated during the debounce window.
	pending := make(map[string]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			pending[strings.TrimSuffix(name, ".json")] = struct{}{}
			flush = time.After(d.config.WatchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Printf("Bundle watcher error: %v", err)

		case <-flush:
			for name := range pending {
				d.logger.Printf("Offline bundle changed: %s", name)
				d.notifyBundleChange(name)
			}
			pending = make(map[string]struct{})
			flush = nil
		}
	}
}
