// Package registry tracks project hub ("map of content") documents and
// their note membership.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/storage"
)

// ProjectHub is one registered project hub document.
type ProjectHub struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	ProjectID string `json:"project_id"`
}

// Registry maps projectId → ProjectHub. At most one hub per projectId;
// when duplicate hub documents exist the last one scanned wins.
type Registry struct {
	store   storage.Provider
	index   *noteindex.Index
	gateway classifier.Client
	logger  *slog.Logger

	mu   sync.RWMutex
	hubs map[string]ProjectHub
}

// New creates an empty registry.
func New(store storage.Provider, index *noteindex.Index, gateway classifier.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   store,
		index:   index,
		gateway: gateway,
		logger:  logger,
		hubs:    make(map[string]ProjectHub),
	}
}

// Scan repopulates the registry from the note index. Hub documents are
// those with kind=ProjectHub; a hub without an explicit project id is keyed
// by its base file name. Scan order is path-lexical, so for duplicate ids
// the hub at the later path wins.
func (r *Registry) Scan() {
	var recs []noteindex.Record
	for rec := range r.index.Query(func(rec noteindex.Record) bool {
		return rec.Kind == note.KindProjectHub
	}) {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })

	hubs := make(map[string]ProjectHub, len(recs))
	for _, rec := range recs {
		id := rec.Project
		if id == "" {
			id = strings.TrimSuffix(path.Base(rec.Path), ".md")
		}
		hubs[id] = ProjectHub{Path: rec.Path, Title: rec.Title, ProjectID: id}
	}

	r.mu.Lock()
	r.hubs = hubs
	r.mu.Unlock()

	r.logger.Debug("registry: scanned", slog.Int("projects", len(hubs)))
}

// Get returns the hub registered for projectID.
func (r *Registry) Get(projectID string) (ProjectHub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hub, ok := r.hubs[projectID]
	return hub, ok
}

// Projects returns all registered hubs sorted by project id.
func (r *Registry) Projects() []ProjectHub {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProjectHub, 0, len(r.hubs))
	for _, hub := range r.hubs {
		out = append(out, hub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// ProjectIDs returns the sorted ids of all registered projects.
func (r *Registry) ProjectIDs() []string {
	hubs := r.Projects()
	out := make([]string, len(hubs))
	for i, hub := range hubs {
		out[i] = hub.ProjectID
	}
	return out
}

// DetectProject asks the classifier which known project (if any) a note
// belongs to.
func (r *Registry) DetectProject(ctx context.Context, title string, keywords []string) (classifier.ProjectDetection, error) {
	return r.gateway.DetectProject(ctx, title, keywords, r.ProjectIDs())
}

// AddLink appends a note link to the project hub document. It is
// idempotent: a hub that already links the note is left untouched. It
// reports false without error when projectID is unknown.
func (r *Registry) AddLink(projectID, noteTitle, notePath string) (bool, error) {
	hub, ok := r.Get(projectID)
	if !ok {
		r.logger.Debug("registry: add link to unknown project",
			slog.String("project", projectID),
			slog.String("note", notePath))
		return false, nil
	}

	data, err := r.store.Read(hub.Path)
	if err != nil {
		return false, fmt.Errorf("registry: read hub %s: %w", hub.Path, err)
	}
	doc := note.Parse(data)

	target := strings.TrimSuffix(notePath, ".md")
	if !doc.AddLink(note.Link{Target: target, Reason: noteTitle}) {
		return true, nil // already linked
	}

	out, err := doc.Serialize()
	if err != nil {
		return false, err
	}
	if err := r.store.Write(hub.Path, out); err != nil {
		return false, fmt.Errorf("registry: write hub %s: %w", hub.Path, err)
	}
	if _, err := r.index.Upsert(hub.Path); err != nil {
		r.logger.Warn("registry: reindex hub failed",
			slog.String("path", hub.Path),
			slog.String("error", err.Error()))
	}
	return true, nil
}

// CreateHub registers (and if needed creates) a hub document for
// projectID under parentFolder. It is idempotent: an already-registered
// project is returned as-is, and an existing backing document is adopted
// rather than duplicated.
func (r *Registry) CreateHub(projectID, parentFolder string) (ProjectHub, error) {
	if hub, ok := r.Get(projectID); ok {
		return hub, nil
	}

	hubPath := path.Join(parentFolder, projectID+".md")
	hub := ProjectHub{Path: hubPath, Title: projectID, ProjectID: projectID}

	if !r.store.Exists(hubPath) {
		doc := &note.Document{
			Meta: note.Frontmatter{
				Title:   projectID,
				Kind:    note.KindProjectHub,
				Project: projectID,
			},
			Body: "# " + projectID + "\n\nNotes belonging to this project are linked below.",
		}
		data, err := doc.Serialize()
		if err != nil {
			return ProjectHub{}, err
		}
		if err := r.store.Create(hubPath, data); err != nil {
			return ProjectHub{}, fmt.Errorf("registry: create hub %s: %w", hubPath, err)
		}
	}

	if _, err := r.index.Upsert(hubPath); err != nil {
		r.logger.Warn("registry: index hub failed",
			slog.String("path", hubPath),
			slog.String("error", err.Error()))
	}

	r.mu.Lock()
	r.hubs[projectID] = hub
	r.mu.Unlock()

	r.logger.Info("registry: project hub created",
		slog.String("project", projectID),
		slog.String("path", hubPath))
	return hub, nil
}
