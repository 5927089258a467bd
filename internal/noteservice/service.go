// Package noteservice coordinates storage, the in-memory note index, and
// the search index for the read/write note API.
package noteservice

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Checksum  string    `json:"checksum"`
	Keywords  []string  `json:"keywords"`
	Kind      string    `json:"kind,omitempty"`
	Project   string    `json:"project,omitempty"`
	Links     []Link    `json:"links"`
	Backlinks []string  `json:"backlinks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is one entry in a note's linked-notes section.
type Link struct {
	Target    string  `json:"target"`
	Relevance float64 `json:"relevance,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Keywords  []string  `json:"keywords"`
	Kind      string    `json:"kind,omitempty"`
	Project   string    `json:"project,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates storage and index operations.
type Service struct {
	store storage.Provider
	index *noteindex.Index
	db    search.NoteSearch
}

// NewService creates a new note service.
func NewService(store storage.Provider, index *noteindex.Index, db search.NoteSearch) *Service {
	return &Service{store: store, index: index, db: db}
}

// GetNote reads a note from storage, parses it, and enriches with backlinks.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data)
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	if err := s.store.Create(path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, content); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content)
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, content); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content)
}

// DeleteNote removes a note from storage and both indexes.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	s.index.Remove(path)
	return s.db.DeleteNote(path)
}

// ListNotes returns paginated notes with optional project and kind filters.
func (s *Service) ListNotes(_ context.Context, limit, offset int, project, kind, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, project, kind, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Keywords:  nonNilSlice(r.Keywords),
			Kind:      r.Kind,
			Project:   r.Project,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the search index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]search.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Backlinks returns all note paths that link to the given target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	return s.db.Backlinks(strings.TrimSuffix(target, ".md"))
}

// IndexFile parses data and upserts it into both indexes. Exported so
// that sync and the watcher can reuse it.
func (s *Service) IndexFile(path string, data []byte) error {
	if _, err := s.index.Upsert(path); err != nil {
		return err
	}
	return search.IndexFile(s.db, path, data)
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	doc := note.Parse(data)
	bl, err := s.db.Backlinks(strings.TrimSuffix(path, ".md"))
	if err != nil {
		return nil, err
	}
	links := make([]Link, len(doc.Links))
	for i, l := range doc.Links {
		links[i] = Link{Target: l.Target, Relevance: l.Relevance, Reason: l.Reason}
	}
	return &NoteDetail{
		Path:      path,
		Title:     doc.Title(),
		Content:   string(data),
		Checksum:  checksum.Sum(data),
		Keywords:  nonNilSlice(doc.Meta.Keywords),
		Kind:      doc.Meta.Kind.String(),
		Project:   doc.Meta.Project,
		Links:     links,
		Backlinks: nonNilSlice(bl),
		UpdatedAt: time.Now(),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
