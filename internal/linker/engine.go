// Package linker commits extracted atomic ideas into the vault: it decides
// merge-vs-create against existing Zettel notes and keeps the linked-notes
// sections of all affected documents mutually consistent.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/retrieval"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/zettelid"
)

// DefaultMergeThreshold is the relevance above which a candidate is
// proposed as an addition to an existing note.
const DefaultMergeThreshold = 0.8

// DecisionResolver obtains the merge-or-create decision for a candidate
// whose best match clears the merge threshold. Implementations may ask the
// user; processing of the candidate blocks until the decision resolves.
type DecisionResolver interface {
	ResolveMerge(ctx context.Context, cand classifier.ZkCandidate, target retrieval.Result) (bool, error)
}

// ResolverFunc adapts a function to the DecisionResolver interface.
type ResolverFunc func(ctx context.Context, cand classifier.ZkCandidate, target retrieval.Result) (bool, error)

// ResolveMerge implements DecisionResolver.
func (f ResolverFunc) ResolveMerge(ctx context.Context, cand classifier.ZkCandidate, target retrieval.Result) (bool, error) {
	return f(ctx, cand, target)
}

// AlwaysMerge resolves every proposal in favour of merging.
var AlwaysMerge = ResolverFunc(func(context.Context, classifier.ZkCandidate, retrieval.Result) (bool, error) {
	return true, nil
})

// Outcome reports what Commit did with a candidate.
type Outcome struct {
	Merged bool
	Path   string // merge target, or the new note's path
	ID     string // allocated identifier on the create path
	Linked []retrieval.Result
}

// Config carries the engine's construction parameters.
type Config struct {
	Store          storage.Provider
	Index          *noteindex.Index
	Searcher       *retrieval.Searcher
	Allocator      *zettelid.Allocator
	Resolver       DecisionResolver
	Logger         *slog.Logger
	ZettelFolder   string  // folder new Zettel notes are created in
	MergeThreshold float64 // clamped to [0.5, 1.0]; 0 means default
}

// Engine implements the merge/link flow.
type Engine struct {
	store     storage.Provider
	index     *noteindex.Index
	searcher  *retrieval.Searcher
	alloc     *zettelid.Allocator
	resolver  DecisionResolver
	logger    *slog.Logger
	folder    string
	threshold float64
	now       func() time.Time
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	threshold := cfg.MergeThreshold
	if threshold == 0 {
		threshold = DefaultMergeThreshold
	}
	threshold = min(max(threshold, 0.5), 1.0)

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = AlwaysMerge
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	folder := cfg.ZettelFolder
	if folder == "" {
		folder = "zettel"
	}

	return &Engine{
		store:     cfg.Store,
		index:     cfg.Index,
		searcher:  cfg.Searcher,
		alloc:     cfg.Allocator,
		resolver:  resolver,
		logger:    logger,
		folder:    folder,
		threshold: threshold,
		now:       time.Now,
	}
}

// Commit files one extracted candidate against its source document. It
// searches the Zettel population for a close match; above the merge
// threshold the resolver decides merge-vs-create, otherwise a new note is
// created and cross-linked with its related notes.
func (e *Engine) Commit(ctx context.Context, cand classifier.ZkCandidate, sourcePath string) (Outcome, error) {
	results, err := e.searcher.FindRelated(ctx, retrieval.Query{
		Title:      cand.Title,
		Keywords:   cand.Keywords,
		ZettelOnly: true,
	})
	if err != nil {
		return Outcome{}, err
	}

	if len(results) > 0 && results[0].Relevance >= e.threshold {
		top := results[0]
		e.logger.Info("linker: merge proposed",
			slog.String("candidate", cand.Title),
			slog.String("target", top.Record.Path),
			slog.Float64("relevance", top.Relevance))

		merge, err := e.resolver.ResolveMerge(ctx, cand, top)
		if err != nil {
			return Outcome{}, fmt.Errorf("linker: resolve merge decision: %w", err)
		}
		if merge {
			return e.merge(cand, top.Record.Path)
		}
	}

	return e.create(ctx, cand, sourcePath)
}

// merge appends the candidate as a dated addendum to the existing target
// and unions the keyword sets. The index is updated only after the write
// succeeds.
func (e *Engine) merge(cand classifier.ZkCandidate, targetPath string) (Outcome, error) {
	data, err := e.store.Read(targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Outcome{}, fmt.Errorf("linker: merge target %s: %w", targetPath, apperr.ErrNotFound)
		}
		return Outcome{}, err
	}

	doc := note.Parse(data)
	doc.AppendAddendum(e.now().Format("2006-01-02"), cand.Body)
	doc.MergeKeywords(cand.Keywords)

	out, err := doc.Serialize()
	if err != nil {
		return Outcome{}, err
	}
	if err := e.store.Write(targetPath, out); err != nil {
		return Outcome{}, err
	}
	if _, err := e.index.Upsert(targetPath); err != nil {
		return Outcome{}, err
	}

	e.logger.Info("linker: merged into existing note",
		slog.String("candidate", cand.Title),
		slog.String("target", targetPath))
	return Outcome{Merged: true, Path: targetPath}, nil
}

// create allocates an identifier, writes the new Zettel note, indexes it,
// then cross-links it with related Zettel notes bidirectionally.
func (e *Engine) create(ctx context.Context, cand classifier.ZkCandidate, sourcePath string) (Outcome, error) {
	id := e.alloc.Next()
	newPath := path.Join(e.folder, id+".md")

	if e.store.Exists(newPath) {
		// The seeding contract makes this unreachable; treat a detected
		// collision as fatal for this allocation and reseed for recovery.
		e.reseed()
		return Outcome{}, fmt.Errorf("linker: identifier %s already in use: %w", id, apperr.ErrConflict)
	}

	doc := buildZettel(cand, sourcePath)
	data, err := doc.Serialize()
	if err != nil {
		return Outcome{}, err
	}
	if err := e.store.Create(newPath, data); err != nil {
		return Outcome{}, err
	}
	if _, err := e.index.Upsert(newPath); err != nil {
		return Outcome{}, err
	}

	related, err := e.searcher.FindRelated(ctx, retrieval.Query{
		Title:       cand.Title,
		Keywords:    cand.Keywords,
		ExcludePath: newPath,
		ZettelOnly:  true,
	})
	if err != nil {
		return Outcome{}, err
	}

	if err := e.linkBidirectional(newPath, related); err != nil {
		return Outcome{}, err
	}

	e.logger.Info("linker: zettel created",
		slog.String("id", id),
		slog.String("path", newPath),
		slog.Int("linked", len(related)))
	return Outcome{Path: newPath, ID: id, Linked: related}, nil
}

// linkBidirectional adds a link for every related note to the new
// document's linked-notes section and a reciprocal backlink in each related
// document. Both directions are idempotent, so re-running with identical
// inputs never duplicates entries.
func (e *Engine) linkBidirectional(newPath string, related []retrieval.Result) error {
	newData, err := e.store.Read(newPath)
	if err != nil {
		return err
	}
	newDoc := note.Parse(newData)
	newTarget := strings.TrimSuffix(newPath, ".md")

	changed := false
	for _, r := range related {
		if newDoc.AddLink(note.Link{
			Target:    strings.TrimSuffix(r.Record.Path, ".md"),
			Relevance: r.Relevance,
			Reason:    r.Reason,
		}) {
			changed = true
		}
	}
	if changed {
		out, err := newDoc.Serialize()
		if err != nil {
			return err
		}
		if err := e.store.Write(newPath, out); err != nil {
			return err
		}
		if _, err := e.index.Upsert(newPath); err != nil {
			return err
		}
	}

	for _, r := range related {
		if err := e.addBacklink(r.Record.Path, newTarget, r); err != nil {
			return fmt.Errorf("linker: backlink %s: %w", r.Record.Path, err)
		}
	}
	return nil
}

// addBacklink inserts a link to newTarget into the related document unless
// one already exists.
func (e *Engine) addBacklink(relatedPath, newTarget string, r retrieval.Result) error {
	data, err := e.store.Read(relatedPath)
	if err != nil {
		return err
	}
	doc := note.Parse(data)
	if !doc.AddLink(note.Link{Target: newTarget, Relevance: r.Relevance, Reason: r.Reason}) {
		return nil // already linked
	}
	out, err := doc.Serialize()
	if err != nil {
		return err
	}
	if err := e.store.Write(relatedPath, out); err != nil {
		return err
	}
	_, err = e.index.Upsert(relatedPath)
	return err
}

// reseed rebuilds the allocator state from the identifiers currently in
// the index.
func (e *Engine) reseed() {
	var ids []string
	count := 0
	for rec := range e.index.Query(func(rec noteindex.Record) bool {
		return rec.Kind == note.KindZettel
	}) {
		ids = append(ids, zettelid.IDFromPath(rec.Path))
		count++
	}
	e.alloc.Seed(ids, count)
	e.logger.Warn("linker: allocator reseeded", slog.Int("zettels", count))
}

// buildZettel renders a candidate into a new Zettel document referencing
// its source.
func buildZettel(cand classifier.ZkCandidate, sourcePath string) *note.Document {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(cand.Title)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(cand.Body))
	b.WriteString("\n")
	if len(cand.RelatedConcepts) > 0 {
		b.WriteString("\nRelated concepts: ")
		b.WriteString(strings.Join(cand.RelatedConcepts, ", "))
		b.WriteString("\n")
	}
	if sourcePath != "" {
		b.WriteString("\nSource: [[")
		b.WriteString(strings.TrimSuffix(sourcePath, ".md"))
		b.WriteString("]]\n")
	}

	meta := note.Frontmatter{
		Title:    cand.Title,
		Kind:     note.KindZettel,
		Keywords: note.NormalizeKeywords(cand.Keywords),
	}
	if cand.Importance != "" {
		meta.Extra = map[string]any{"importance": cand.Importance}
	}
	return &note.Document{Meta: meta, Body: b.String()}
}
