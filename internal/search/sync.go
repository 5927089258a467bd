package search

import (
	"log/slog"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/storage"
)

// Sync walks the vault and brings the search index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db NoteSearch, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile parses data and upserts it into the search index. Link rows
// cover both inline wikilinks and the linked-notes section.
func IndexFile(db NoteSearch, path string, data []byte) error {
	doc := note.Parse(data)

	links := note.Wikilinks(doc.Body)
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		seen[l] = struct{}{}
	}
	for _, l := range doc.Links {
		if _, dup := seen[l.Target]; dup {
			continue
		}
		seen[l.Target] = struct{}{}
		links = append(links, l.Target)
	}

	title := doc.Title()
	if title == "" {
		title = strings.TrimSuffix(path, ".md")
	}

	row := NoteRow{
		Path:      path,
		Title:     title,
		Checksum:  checksum.Sum(data),
		Keywords:  doc.Meta.Keywords,
		Kind:      doc.Meta.Kind.String(),
		Project:   doc.Meta.Project,
		UpdatedAt: time.Now(),
	}
	return db.UpsertNote(row, doc.Body, links)
}
