package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

type env struct {
	vaultDir string
	store    storage.Provider
	index    *noteindex.Index

	mu      sync.Mutex
	events  []string
	queued  []string
	cfg     Config
}

func watcherEnv(t *testing.T) *env {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	e := &env{
		vaultDir: vaultDir,
		store:    store,
		index:    testutil.TestIndex(t, store),
	}
	e.cfg = Config{
		Store:       store,
		Index:       e.index,
		VaultRoot:   vaultDir,
		Logger:      testutil.DiscardLogger(),
		InboxFolder: "inbox",
		OnEvent: func(kind, path string) {
			e.mu.Lock()
			e.events = append(e.events, kind+":"+path)
			e.mu.Unlock()
		},
		Enqueue: func(path string) {
			e.mu.Lock()
			e.queued = append(e.queued, path)
			e.mu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Watch(ctx, e.cfg)
	time.Sleep(100 * time.Millisecond)
	return e
}

func (e *env) sawEvent(want string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev == want {
			return true
		}
	}
	return false
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	e := watcherEnv(t)

	_ = os.WriteFile(filepath.Join(e.vaultDir, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.index.Get("new.md")
		return ok
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return e.sawEvent("created:new.md")
	}, "expected created:new.md callback")
}

func TestWatcher_InboxEnqueued(t *testing.T) {
	e := watcherEnv(t)

	_ = os.MkdirAll(filepath.Join(e.vaultDir, "inbox"), 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(e.vaultDir, "inbox", "cap.md"), []byte("# Capture"), 0o644)
	_ = os.WriteFile(filepath.Join(e.vaultDir, "other.md"), []byte("# Other"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		for _, p := range e.queued {
			if p == "inbox/cap.md" {
				return true
			}
		}
		return false
	}, "inbox file not enqueued")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.index.Get("other.md")
		return ok
	}, "non-inbox file not indexed")

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.queued {
		if p == "other.md" {
			t.Error("non-inbox path was enqueued")
		}
	}
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	e := watcherEnv(t)

	_ = os.WriteFile(filepath.Join(e.vaultDir, "del.md"), []byte("# Delete Me"), 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.index.Get("del.md")
		return ok
	}, "file not indexed before delete")

	_ = os.Remove(filepath.Join(e.vaultDir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.index.Get("del.md")
		return !ok
	}, "deleted file still indexed")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return e.sawEvent("deleted:del.md")
	}, "expected deleted:del.md callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	e := watcherEnv(t)

	subDir := filepath.Join(e.vaultDir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.index.Get("subdir/deep.md")
		return ok
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	e := watcherEnv(t)

	old := filepath.Join(e.vaultDir, "old.md")
	_ = os.WriteFile(old, []byte("# Old"), 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.index.Get("old.md")
		return ok
	}, "file not indexed before rename")

	_ = os.Rename(old, filepath.Join(e.vaultDir, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, oldThere := e.index.Get("old.md")
		_, newThere := e.index.Get("renamed.md")
		return !oldThere && newThere
	}, "rename not reconciled")
}
