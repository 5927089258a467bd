// Package watcher feeds vault file-change events into the note index, the
// search index, and the organizer's debounced queue.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/storage"
)

// Config carries the watcher's collaborators.
type Config struct {
	Store     storage.Provider
	Index     *noteindex.Index
	Search    search.NoteSearch
	VaultRoot string
	Logger    *slog.Logger

	// OnEvent is called after each successful mutation with kind
	// "created", "updated", or "deleted".
	OnEvent func(kind, path string)

	// InboxFolder paths of created/updated notes are handed to Enqueue for
	// organizer processing. Only the inbox is enqueued: the organizer's own
	// writes elsewhere in the vault must not re-trigger it.
	InboxFolder string
	Enqueue     func(path string)
}

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// index entries whose files no longer exist on disk.
func Watch(ctx context.Context, cfg Config) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, cfg.VaultRoot); err != nil {
		return err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("watcher: started", slog.String("root", cfg.VaultRoot))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(cfg, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories: add to watcher and index their contents.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(cfg, logger, absPath)
					continue
				}
			}

			// Only process .md files from here on.
			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(cfg.VaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if err := applyChange(cfg, rel); err != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
				notify(cfg, kind, rel)
				enqueueInbox(cfg, rel)

			case ev.Op&fsnotify.Remove != 0:
				applyDelete(cfg, logger, rel)
				notify(cfg, "deleted", rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new path
				// arrives as a separate Create event (if it stays within a
				// watched dir). Delete the old entry immediately and
				// schedule a short reconciliation pass for stragglers.
				applyDelete(cfg, logger, rel)
				notify(cfg, "deleted", rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// applyChange refreshes both indexes for one changed file.
func applyChange(cfg Config, rel string) error {
	if _, err := cfg.Index.Upsert(rel); err != nil {
		return err
	}
	if cfg.Search != nil {
		data, err := cfg.Store.Read(rel)
		if err != nil {
			return err
		}
		return search.IndexFile(cfg.Search, rel, data)
	}
	return nil
}

func applyDelete(cfg Config, logger *slog.Logger, rel string) {
	cfg.Index.Remove(rel)
	if cfg.Search != nil {
		if err := cfg.Search.DeleteNote(rel); err != nil {
			logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
	logger.Debug("watcher: deleted", slog.String("path", rel))
}

func notify(cfg Config, kind, rel string) {
	if cfg.OnEvent != nil {
		cfg.OnEvent(kind, rel)
	}
}

func enqueueInbox(cfg Config, rel string) {
	if cfg.Enqueue == nil || cfg.InboxFolder == "" {
		return
	}
	if strings.HasPrefix(rel, cfg.InboxFolder+"/") {
		cfg.Enqueue(rel)
	}
}

// reconcile does a lightweight sync after renames: index entries without a
// corresponding file on disk are removed, and on-disk files that are
// missing or stale in the indexes are re-indexed.
func reconcile(cfg Config, logger *slog.Logger) {
	metas, err := cfg.Store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for rec := range cfg.Index.Query(func(noteindex.Record) bool { return true }) {
		if _, ok := disk[rec.Path]; !ok {
			applyDelete(cfg, logger, rec.Path)
			notify(cfg, "deleted", rec.Path)
		}
	}

	var known map[string]string
	if cfg.Search != nil {
		if known, err = cfg.Search.AllChecksums(); err != nil {
			logger.Warn("reconcile: checksums failed", slog.String("error", err.Error()))
			known = nil
		}
	}

	for p, cs := range disk {
		_, indexed := cfg.Index.Get(p)
		if indexed && known != nil && known[p] == cs {
			continue
		}
		if err := applyChange(cfg, p); err != nil {
			continue
		}
		if !indexed {
			logger.Debug("reconcile: indexed new", slog.String("path", p))
			notify(cfg, "created", p)
			enqueueInbox(cfg, p)
		}
	}
}

// indexNewDir indexes any .md files found in a newly created directory.
func indexNewDir(cfg Config, logger *slog.Logger, dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(cfg.VaultRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if err := applyChange(cfg, rel); err == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			notify(cfg, "created", rel)
			enqueueInbox(cfg, rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
