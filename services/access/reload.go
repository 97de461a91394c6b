package access

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader watches the model registry file and hot-reloads it on change
type Reloader struct {
	watcher *fsnotify.Watcher
	service *Service
	path    string
	logger  *zap.Logger
}

// NewReloader creates a file watcher for the registry path
func NewReloader(service *Service, path string, logger *zap.Logger) (*Reloader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model registry %q not readable: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Reloader{
		watcher: watcher,
		service: service,
		path:    path,
		logger:  logger,
	}, nil
}

// Run watches for file changes and reloads the registry. Blocks until ctx
// is cancelled. Writes are debounced so editors that write in bursts do not
// trigger repeated loads.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.service.LoadFile(r.path); err != nil {
						r.logger.Error("model registry hot-reload failed",
							zap.String("path", r.path),
							zap.Error(err))
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("model registry watcher error", zap.Error(err))
		}
	}
}
