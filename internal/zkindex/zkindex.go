// Package zkindex maintains the derived structure-index document: a single
// note summarising the Zettel population as a recent list and topic
// clusters. The document is parsed into a model, mutated, and re-rendered,
// never patched textually.
package zkindex

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/zettelid"
)

// DefaultPath is where the structure index lives unless configured.
const DefaultPath = "zk-index.md"

// maxRecent caps the length of the recent-notes section.
const maxRecent = 10

const (
	recentHeading = "## Recent"
	topicHeading  = "## By Topic"
	indexTitle    = "Zettel Structure Index"
)

// uncategorised is the cluster for notes without keywords.
const uncategorised = "uncategorised"

type entry struct {
	target string // wikilink target
	title  string
}

// model is the parsed content of the structure index document.
type model struct {
	recent []entry
	topics map[string][]entry
	order  []string // topic insertion order
}

// StructureIndex regenerates the structure index document.
type StructureIndex struct {
	store  storage.Provider
	index  *noteindex.Index
	path   string
	logger *slog.Logger
}

// New creates a StructureIndex writing to path (DefaultPath when empty).
func New(store storage.Provider, index *noteindex.Index, path string, logger *slog.Logger) *StructureIndex {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StructureIndex{store: store, index: index, path: path, logger: logger}
}

// Path returns the document path of the structure index.
func (s *StructureIndex) Path() string { return s.path }

// Patch incrementally records one new or updated Zettel: it is prepended
// to the recent section (capped, deduplicated by target) and appended to
// its primary-keyword topic cluster if not already present.
func (s *StructureIndex) Patch(rec noteindex.Record) error {
	m := s.load()

	e := entry{target: strings.TrimSuffix(rec.Path, ".md"), title: rec.Title}

	// Recent: newest first, dedup by identity, cap length.
	pruned := make([]entry, 0, len(m.recent)+1)
	pruned = append(pruned, e)
	for _, old := range m.recent {
		if old.target != e.target {
			pruned = append(pruned, old)
		}
	}
	if len(pruned) > maxRecent {
		pruned = pruned[:maxRecent]
	}
	m.recent = pruned

	topic := primaryKeyword(rec)
	if !containsTarget(m.topics[topic], e.target) {
		if _, ok := m.topics[topic]; !ok {
			m.order = append(m.order, topic)
		}
		m.topics[topic] = append(m.topics[topic], e)
	}

	return s.write(m)
}

// Rebuild re-derives the whole document from the current Zettel
// population: clusters grouped by primary keyword, entries ordered by
// inferred creation recency (identifiers sort chronologically under the
// timestamp and date-sequence schemes).
func (s *StructureIndex) Rebuild() error {
	var recs []noteindex.Record
	for rec := range s.index.Query(func(rec noteindex.Record) bool {
		return rec.Kind == note.KindZettel
	}) {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return zettelid.IDFromPath(recs[i].Path) > zettelid.IDFromPath(recs[j].Path)
	})

	m := &model{topics: make(map[string][]entry)}
	for _, rec := range recs {
		e := entry{target: strings.TrimSuffix(rec.Path, ".md"), title: rec.Title}
		if len(m.recent) < maxRecent {
			m.recent = append(m.recent, e)
		}
		topic := primaryKeyword(rec)
		if _, ok := m.topics[topic]; !ok {
			m.order = append(m.order, topic)
		}
		m.topics[topic] = append(m.topics[topic], e)
	}
	sort.Strings(m.order)

	return s.write(m)
}

func primaryKeyword(rec noteindex.Record) string {
	if len(rec.Keywords) == 0 {
		return uncategorised
	}
	return strings.ToLower(rec.Keywords[0])
}

func containsTarget(entries []entry, target string) bool {
	for _, e := range entries {
		if e.target == target {
			return true
		}
	}
	return false
}

// load parses the current document, or returns an empty model when the
// document does not exist or cannot be read.
func (s *StructureIndex) load() *model {
	m := &model{topics: make(map[string][]entry)}

	data, err := s.store.Read(s.path)
	if err != nil {
		return m
	}
	doc := note.Parse(data)

	var section string // "recent" | "topic"
	var topic string
	for _, line := range strings.Split(doc.Body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == recentHeading:
			section = "recent"
		case trimmed == topicHeading:
			section = "topic"
		case strings.HasPrefix(trimmed, "### ") && section == "topic":
			topic = strings.TrimSpace(trimmed[4:])
			if _, ok := m.topics[topic]; !ok {
				m.topics[topic] = nil
				m.order = append(m.order, topic)
			}
		case strings.HasPrefix(trimmed, "- [["):
			e, ok := parseEntry(trimmed)
			if !ok {
				continue
			}
			switch section {
			case "recent":
				if !containsTarget(m.recent, e.target) {
					m.recent = append(m.recent, e)
				}
			case "topic":
				if topic != "" && !containsTarget(m.topics[topic], e.target) {
					m.topics[topic] = append(m.topics[topic], e)
				}
			}
		}
	}
	return m
}

func parseEntry(line string) (entry, bool) {
	rest := strings.TrimPrefix(line, "- [[")
	end := strings.Index(rest, "]]")
	if end < 0 {
		return entry{}, false
	}
	e := entry{target: strings.TrimSpace(rest[:end])}
	if e.target == "" {
		return entry{}, false
	}
	tail := strings.TrimSpace(rest[end+2:])
	e.title = strings.TrimSpace(strings.TrimPrefix(tail, ":"))
	return e, true
}

// write renders the model and stores the document.
func (s *StructureIndex) write(m *model) error {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(indexTitle)
	b.WriteString("\n\n")
	b.WriteString(recentHeading)
	b.WriteString("\n\n")
	for _, e := range m.recent {
		b.WriteString(formatEntry(e))
	}
	b.WriteString("\n")
	b.WriteString(topicHeading)
	b.WriteString("\n")
	for _, topic := range m.order {
		entries := m.topics[topic]
		if len(entries) == 0 {
			continue
		}
		b.WriteString("\n### ")
		b.WriteString(topic)
		b.WriteString("\n\n")
		for _, e := range entries {
			b.WriteString(formatEntry(e))
		}
	}

	doc := &note.Document{
		Meta: note.Frontmatter{Title: indexTitle, Kind: note.KindZkIndex},
		Body: b.String(),
	}
	data, err := doc.Serialize()
	if err != nil {
		return err
	}
	if err := s.store.Write(s.path, data); err != nil {
		return fmt.Errorf("zkindex: write %s: %w", s.path, err)
	}
	if _, err := s.index.Upsert(s.path); err != nil {
		s.logger.Warn("zkindex: reindex failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
	}
	return nil
}

func formatEntry(e entry) string {
	if e.title == "" {
		return "- [[" + e.target + "]]\n"
	}
	return "- [[" + e.target + "]]: " + e.title + "\n"
}
