package retrieval

import (
	"context"
	"log/slog"

	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/noteindex"
)

// Result is one related note found by the hybrid pipeline.
type Result struct {
	Record    noteindex.Record
	Relevance float64
	Matched   []string
	Reason    string
	Type      classifier.ConnectionType
}

// Query parameterises one related-note search.
type Query struct {
	Title       string
	Keywords    []string
	ExcludePath string
	ZettelOnly  bool // restrict the scanned population to Zettel notes
}

// Searcher composes the prefilter and the classifier gateway into the
// two-stage retrieval pipeline. It holds no per-query state.
type Searcher struct {
	index   *noteindex.Index
	gateway classifier.Client
	logger  *slog.Logger
}

// NewSearcher creates a Searcher over the given index and gateway.
func NewSearcher(index *noteindex.Index, gateway classifier.Client, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{index: index, gateway: gateway, logger: logger}
}

// FindRelated runs the pipeline with the query's own keywords:
// prefilter, then gateway re-ranking, then mapping scored indices back to
// records. Empty keywords or an empty candidate set short-circuit to an
// empty result. Scored indices outside the candidate list are discarded.
func (s *Searcher) FindRelated(ctx context.Context, q Query) ([]Result, error) {
	if len(q.Keywords) == 0 {
		return nil, nil
	}

	pred := func(noteindex.Record) bool { return true }
	if q.ZettelOnly {
		pred = func(rec noteindex.Record) bool { return rec.Kind == note.KindZettel }
	}

	hits := Prefilter(s.index.Query(pred), q.Keywords, q.ExcludePath)
	if len(hits) == 0 {
		return nil, nil
	}

	candidates := make([]classifier.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = classifier.Candidate{
			Title:    h.Record.Title,
			Keywords: h.Record.Keywords,
		}
	}

	scored, err := s.gateway.FindRelated(ctx, q.Title, q.Keywords, candidates)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(scored))
	for _, r := range scored {
		if r.Index < 0 || r.Index >= len(hits) {
			s.logger.Warn("retrieval: dropping out-of-range result",
				slog.Int("index", r.Index),
				slog.Int("candidates", len(hits)))
			continue
		}
		hit := hits[r.Index]
		results = append(results, Result{
			Record:    hit.Record,
			Relevance: r.Relevance,
			Matched:   hit.Matched,
			Reason:    r.Reason,
			Type:      r.Type,
		})
	}
	return results, nil
}

// FindRelatedToText extracts keywords from text via the gateway, then runs
// FindRelated with them.
func (s *Searcher) FindRelatedToText(ctx context.Context, title, text string, zettelOnly bool) ([]Result, error) {
	keywords, err := s.gateway.ExtractKeywords(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.FindRelated(ctx, Query{
		Title:      title,
		Keywords:   keywords,
		ZettelOnly: zettelOnly,
	})
}
