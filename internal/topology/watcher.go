package topology

import (
	"context"
	"os"
	"sync"
	"time"
)

// DefaultPollInterval is how often FileWatcher checks the topology file.
const DefaultPollInterval = 5 * time.Second

// FileWatcher applies a topology file whenever its modification time or size
// changes. It stands in for cluster pushed topology notifications.
type FileWatcher struct {
	path     string
	interval time.Duration
	updater  Updater

	mu      sync.Mutex
	modTime time.Time
	size    int64
}

// NewFileWatcher creates a watcher for path. A non-positive interval uses
// DefaultPollInterval.
func NewFileWatcher(path string, interval time.Duration, updater Updater) *FileWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &FileWatcher{path: path, interval: interval, updater: updater}
}

// Run polls until ctx is done. The file is applied once at start.
func (w *FileWatcher) Run(ctx context.Context) {
	if _, err := w.Check(); err != nil {
		log.Warnf("Failed to apply topology from %s: %v", w.path, err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				log.Warnf("Failed to apply topology from %s: %v", w.path, err)
			}
		}
	}
}

// Check applies the file if it changed since the last successful apply and
// reports whether it did.
func (w *FileWatcher) Check() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	if info.ModTime().Equal(w.modTime) && info.Size() == w.size {
		return false, nil
	}

	doc, err := Load(w.path)
	if err != nil {
		return false, err
	}
	if err := Apply(doc, w.updater); err != nil {
		return false, err
	}

	w.modTime = info.ModTime()
	w.size = info.Size()
	log.Infof("Applied topology from %s: %d server(s), %d ring entries", w.path, len(doc.Servers), len(doc.Ring))
	return true, nil
}
