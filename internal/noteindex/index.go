// Package noteindex maintains the in-memory metadata index of every vault
// note, keyed by store-relative path. The index is the authoritative view of
// note metadata for retrieval and linking; full-text search is a separate
// concern backed by SQLite.
package noteindex

import (
	"iter"
	"log/slog"
	"sync"

	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/storage"
)

// Record is the lightweight metadata held per note.
type Record struct {
	Path     string
	Title    string
	Keywords []string
	Kind     note.Kind
	Project  string
}

// Index is a mutex-guarded map from path to Record.
// It is safe for concurrent use.
type Index struct {
	store  storage.Provider
	logger *slog.Logger

	mu      sync.RWMutex
	records map[string]Record
}

// New creates an empty index backed by the given store.
func New(store storage.Provider, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:   store,
		logger:  logger,
		records: make(map[string]Record),
	}
}

// Rebuild clears the index and repopulates it by scanning every document in
// the store. A document that cannot be read is skipped with a warning; a
// document with malformed metadata is indexed with defaults. Rebuild never
// aborts on one bad document.
func (ix *Index) Rebuild() error {
	metas, err := ix.store.List("")
	if err != nil {
		return err
	}

	records := make(map[string]Record, len(metas))
	for _, m := range metas {
		data, readErr := ix.store.Read(m.Path)
		if readErr != nil {
			ix.logger.Warn("noteindex: read failed",
				slog.String("path", m.Path),
				slog.String("error", readErr.Error()))
			continue
		}
		records[m.Path] = deriveRecord(m.Path, data)
	}

	ix.mu.Lock()
	ix.records = records
	ix.mu.Unlock()

	ix.logger.Debug("noteindex: rebuilt", slog.Int("notes", len(records)))
	return nil
}

// Upsert re-derives the record for path from the store and replaces it.
func (ix *Index) Upsert(path string) (Record, error) {
	data, err := ix.store.Read(path)
	if err != nil {
		return Record{}, err
	}
	rec := deriveRecord(path, data)

	ix.mu.Lock()
	ix.records[path] = rec
	ix.mu.Unlock()
	return rec, nil
}

// Remove deletes the record for path, if present.
func (ix *Index) Remove(path string) {
	ix.mu.Lock()
	delete(ix.records, path)
	ix.mu.Unlock()
}

// Get returns the record for path.
func (ix *Index) Get(path string) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.records[path]
	return rec, ok
}

// Len returns the number of indexed notes.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Query returns a restartable sequence of records matching pred.
// Enumeration order is unspecified and not stable across rebuilds.
func (ix *Index) Query(pred func(Record) bool) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range ix.snapshot() {
			if pred != nil && !pred(rec) {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// CountKind returns the number of notes of the given kind.
func (ix *Index) CountKind(kind note.Kind) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, rec := range ix.records {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}

// snapshot copies the current records so iteration never holds the lock
// while caller code runs.
func (ix *Index) snapshot() []Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Record, 0, len(ix.records))
	for _, rec := range ix.records {
		out = append(out, rec)
	}
	return out
}

func deriveRecord(path string, data []byte) Record {
	doc := note.Parse(data)
	return Record{
		Path:     path,
		Title:    doc.Title(),
		Keywords: doc.Meta.Keywords,
		Kind:     doc.Meta.Kind,
		Project:  doc.Meta.Project,
	}
}
