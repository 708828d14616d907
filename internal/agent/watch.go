package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/quorum/internal/logging"
)

const rulesDebounce = 200 * time.Millisecond

// WatchRules reloads the rules file at path whenever it changes and hands the
// result to onChange. Load errors are logged and the previous rules stay in
// effect. The parent directory is watched so editors that replace the file by
// rename are seen. WatchRules blocks until ctx is done.
func WatchRules(ctx context.Context, path string, onChange func(*Rules), log *slog.Logger) error {
	log = logging.OrNop(log).With("rules_file", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving rules path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(rulesDebounce)
			} else {
				timer.Reset(rulesDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			rules, err := LoadRules(abs)
			if err != nil {
				log.Warn("rules reload failed, keeping previous rules", "error", err)
				continue
			}
			log.Info("rules reloaded", "focus", len(rules.Focus), "required", len(rules.Required))
			onChange(rules)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("rules watcher error", "error", err)
		}
	}
}
