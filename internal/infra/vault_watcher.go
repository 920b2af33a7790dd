package infra

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultWatchDebounce collapses the burst of writes a single vault
// transaction produces (db, journal, wal).
const DefaultWatchDebounce = 200 * time.Millisecond

// VaultWatcher reports changes to the vault file made by any process.
type VaultWatcher struct {
	dir      string
	base     string
	debounce time.Duration
	logger   *zap.Logger
}

// NewVaultWatcher watches the directory containing vaultPath.
func NewVaultWatcher(vaultPath string, debounce time.Duration, logger *zap.Logger) *VaultWatcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	return &VaultWatcher{
		dir:      filepath.Dir(vaultPath),
		base:     filepath.Base(vaultPath),
		debounce: debounce,
		logger:   logger,
	}
}

// Run calls onChange once per debounced burst of vault changes until ctx
// is canceled.
func (w *VaultWatcher) Run(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// SQLite replaces journal files, so watch the directory, not the file.
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	w.logger.Debug("vault watcher started", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if w.isVaultFile(event.Name) && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				timer.Reset(w.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			w.logger.Warn("vault watcher error", zap.Error(err))

		case <-timer.C:
			onChange()
		}
	}
}

// isVaultFile matches the vault and its -journal, -wal and -shm siblings.
func (w *VaultWatcher) isVaultFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), w.base)
}
