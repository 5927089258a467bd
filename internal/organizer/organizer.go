// Package organizer coordinates the note filing pipeline: incoming text is
// classified, filed into the project hierarchy, mined for atomic Zettel
// ideas, and cross-linked with related notes. A single worker processes one
// note at a time; bulk work is sequential with a pacing delay because the
// classifier gateway serializes calls.
package organizer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/linker"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/registry"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/zkindex"
)

// Event names published to the Notifier.
const (
	EventNoteFiled        = "note_filed"
	EventZettelCreated    = "zettel_created"
	EventZettelMerged     = "zettel_merged"
	EventStructureUpdated = "structure_updated"
)

// Destination kinds returned by the classifier.
const (
	destNote         = "note"
	destZettelSource = "zettel-source"
)

const (
	defaultQuiescence = 3 * time.Second
	defaultPacing     = 500 * time.Millisecond
)

// Notifier receives pipeline events. Implementations must not block.
type Notifier interface {
	Notify(event string, data map[string]string)
}

// Result summarizes one filed note.
type Result struct {
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Project string   `json:"project,omitempty"`
	Created []string `json:"created,omitempty"` // new Zettel paths
	Merged  []string `json:"merged,omitempty"`  // merge target paths
}

// Config carries the service's collaborators and folder layout.
type Config struct {
	Store     storage.Provider
	Index     *noteindex.Index
	Gateway   classifier.Client
	Registry  *registry.Registry
	Engine    *linker.Engine
	Structure *zkindex.StructureIndex
	Notifier  Notifier
	Logger    *slog.Logger

	InboxFolder    string        // watched capture folder, default "inbox"
	NotesFolder    string        // filed notes, default "notes"
	ProjectsFolder string        // project hub documents, default "projects"
	Quiescence     time.Duration // debounce window, default 3s
	Pacing         time.Duration // delay between sequential bulk items
}

// Service is the organizer worker. All processing runs on the goroutine
// that calls CaptureText, ProcessNote, or Run, never in parallel against
// the same document.
type Service struct {
	store     storage.Provider
	index     *noteindex.Index
	gateway   classifier.Client
	registry  *registry.Registry
	engine    *linker.Engine
	structure *zkindex.StructureIndex
	notifier  Notifier
	logger    *slog.Logger

	inboxFolder    string
	notesFolder    string
	projectsFolder string
	pacing         time.Duration

	queue *queue
}

// New creates the organizer service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	quiescence := cfg.Quiescence
	if quiescence <= 0 {
		quiescence = defaultQuiescence
	}
	pacing := cfg.Pacing
	if pacing <= 0 {
		pacing = defaultPacing
	}

	s := &Service{
		store:          cfg.Store,
		index:          cfg.Index,
		gateway:        cfg.Gateway,
		registry:       cfg.Registry,
		engine:         cfg.Engine,
		structure:      cfg.Structure,
		notifier:       cfg.Notifier,
		logger:         logger,
		inboxFolder:    orDefault(cfg.InboxFolder, "inbox"),
		notesFolder:    orDefault(cfg.NotesFolder, "notes"),
		projectsFolder: orDefault(cfg.ProjectsFolder, "projects"),
		pacing:         pacing,
	}
	s.queue = newQueue(quiescence)
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// InboxFolder returns the watched capture folder.
func (s *Service) InboxFolder() string { return s.inboxFolder }

// CaptureText files a free-form text capture: the classifier picks a
// destination, the text is written as a note, and texts carrying multiple
// atomic ideas get Zettel notes extracted and cross-linked.
func (s *Service) CaptureText(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("organizer: empty capture")
	}

	dest, err := s.gateway.ClassifyDestination(ctx, text, s.registry.ProjectIDs())
	if err != nil {
		return nil, fmt.Errorf("organizer: classify destination: %w", err)
	}

	title := dest.Title
	if title == "" {
		title = firstLine(text)
	}

	doc := &note.Document{
		Meta: note.Frontmatter{Title: title},
		Body: text,
	}
	if dest.Summary != "" {
		doc.Meta.Extra = map[string]any{"summary": dest.Summary}
	}

	notePath := s.freePath(s.notesFolder, title)
	data, err := doc.Serialize()
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(notePath, data); err != nil {
		return nil, fmt.Errorf("organizer: create note: %w", err)
	}
	if _, err := s.index.Upsert(notePath); err != nil {
		return nil, err
	}

	return s.organize(ctx, notePath, dest.Kind != destNote)
}

// ProcessNote runs the filing pipeline for one existing document, moving
// it out of the inbox first so extracted Zettels link its final location.
func (s *Service) ProcessNote(ctx context.Context, notePath string) (*Result, error) {
	data, err := s.store.Read(notePath)
	if err != nil {
		return nil, fmt.Errorf("organizer: read %s: %w", notePath, err)
	}
	doc := note.Parse(data)

	if strings.HasPrefix(notePath, s.inboxFolder+"/") {
		title := doc.Title()
		if title == "" {
			title = strings.TrimSuffix(path.Base(notePath), ".md")
		}
		filed := s.freePath(s.notesFolder, title)
		if err := s.store.Move(notePath, filed); err != nil {
			return nil, fmt.Errorf("organizer: move %s: %w", notePath, err)
		}
		s.index.Remove(notePath)
		if _, err := s.index.Upsert(filed); err != nil {
			return nil, err
		}
		notePath = filed
	}

	return s.organize(ctx, notePath, true)
}

// organize runs the shared pipeline steps on an already-stored note:
// keyword extraction, project detection and hub linking, and (when
// extract is set) Zettel extraction through the merge/link engine.
func (s *Service) organize(ctx context.Context, notePath string, extract bool) (*Result, error) {
	data, err := s.store.Read(notePath)
	if err != nil {
		return nil, fmt.Errorf("organizer: read %s: %w", notePath, err)
	}
	doc := note.Parse(data)
	title := doc.Title()

	if len(doc.Meta.Keywords) == 0 {
		kws, err := s.gateway.ExtractKeywords(ctx, doc.Body)
		if err != nil {
			return nil, fmt.Errorf("organizer: extract keywords: %w", err)
		}
		doc.Meta.Keywords = note.NormalizeKeywords(kws)
	}

	projectID, err := s.resolveProject(ctx, title, doc.Meta.Keywords)
	if err != nil {
		return nil, err
	}
	doc.Meta.Project = projectID

	out, err := doc.Serialize()
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(notePath, out); err != nil {
		return nil, fmt.Errorf("organizer: write %s: %w", notePath, err)
	}
	if _, err := s.index.Upsert(notePath); err != nil {
		return nil, err
	}

	res := &Result{Path: notePath, Title: title, Project: projectID}

	if extract {
		if err := s.extractZettels(ctx, doc.Body, notePath, res); err != nil {
			return nil, err
		}
	}

	if projectID != "" {
		if _, err := s.registry.AddLink(projectID, title, notePath); err != nil {
			s.logger.Warn("organizer: hub link failed",
				slog.String("project", projectID),
				slog.String("error", err.Error()))
		}
	}

	s.notify(EventNoteFiled, map[string]string{"path": notePath, "project": projectID})
	s.logger.Info("organizer: note filed",
		slog.String("path", notePath),
		slog.String("project", projectID),
		slog.Int("created", len(res.Created)),
		slog.Int("merged", len(res.Merged)))
	return res, nil
}

// resolveProject maps a detection onto a registered project id, creating a
// hub for newly proposed projects.
func (s *Service) resolveProject(ctx context.Context, title string, keywords []string) (string, error) {
	det, err := s.registry.DetectProject(ctx, title, keywords)
	if err != nil {
		return "", fmt.Errorf("organizer: detect project: %w", err)
	}
	switch {
	case det.None():
		return "", nil
	case det.ProjectID != "":
		return det.ProjectID, nil
	default:
		hub, err := s.registry.CreateHub(slugify(det.NewName), s.projectsFolder)
		if err != nil {
			return "", fmt.Errorf("organizer: create hub: %w", err)
		}
		return hub.ProjectID, nil
	}
}

// extractZettels mines the body for atomic ideas and commits each through
// the merge/link engine. A failed candidate aborts only itself.
func (s *Service) extractZettels(ctx context.Context, body, sourcePath string, res *Result) error {
	cands, err := s.gateway.ExtractZettels(ctx, body)
	if err != nil {
		return fmt.Errorf("organizer: extract zettels: %w", err)
	}

	for _, cand := range cands {
		outcome, err := s.engine.Commit(ctx, cand, sourcePath)
		if err != nil {
			s.logger.Warn("organizer: candidate failed",
				slog.String("candidate", cand.Title),
				slog.String("source", sourcePath),
				slog.String("error", err.Error()))
			continue
		}
		if outcome.Merged {
			res.Merged = append(res.Merged, outcome.Path)
			s.notify(EventZettelMerged, map[string]string{"path": outcome.Path, "source": sourcePath})
		} else {
			res.Created = append(res.Created, outcome.Path)
			s.notify(EventZettelCreated, map[string]string{"path": outcome.Path, "id": outcome.ID})
		}
		if rec, ok := s.index.Get(outcome.Path); ok {
			if err := s.structure.Patch(rec); err != nil {
				s.logger.Warn("organizer: structure patch failed",
					slog.String("path", outcome.Path),
					slog.String("error", err.Error()))
			} else {
				s.notify(EventStructureUpdated, map[string]string{"path": s.structure.Path()})
			}
		}
	}
	return nil
}

func (s *Service) notify(event string, data map[string]string) {
	if s.notifier != nil {
		s.notifier.Notify(event, data)
	}
}

// freePath returns an unused .md path for title under folder, suffixing a
// counter when the slug is taken.
func (s *Service) freePath(folder, title string) string {
	slug := slugify(title)
	p := path.Join(folder, slug+".md")
	for i := 2; s.store.Exists(p); i++ {
		p = path.Join(folder, fmt.Sprintf("%s-%d.md", slug, i))
	}
	return p
}

func firstLine(text string) string {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	if line == "" {
		return "untitled"
	}
	return line
}

// slugify lowercases title and keeps alphanumerics joined by hyphens.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= 60 {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "note"
	}
	return slug
}
