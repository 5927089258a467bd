// Package note implements the structured document model for vault notes:
// a YAML frontmatter block, a Markdown body, and an optional linked-notes
// section. Documents are parsed into this model, mutated, and re-serialized
// rather than patched textually.
package note

import (
	"strings"
)

// Kind classifies a note by its frontmatter "type" field.
type Kind int

const (
	KindPlain Kind = iota
	KindZettel
	KindZkIndex
	KindProjectHub
)

// Frontmatter type values recognised in vault documents.
const (
	typeZettel     = "zettel"
	typeZkIndex    = "zk-index"
	typeProjectHub = "project-moc"
)

// ParseKind maps a frontmatter "type" value to a Kind.
// Unrecognised or empty values map to KindPlain.
func ParseKind(s string) Kind {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case typeZettel:
		return KindZettel
	case typeZkIndex:
		return KindZkIndex
	case typeProjectHub:
		return KindProjectHub
	default:
		return KindPlain
	}
}

// String returns the frontmatter "type" value for the kind.
// KindPlain serialises to the empty string (the field is omitted).
func (k Kind) String() string {
	switch k {
	case KindZettel:
		return typeZettel
	case KindZkIndex:
		return typeZkIndex
	case KindProjectHub:
		return typeProjectHub
	default:
		return ""
	}
}

// Frontmatter holds the recognised metadata keys of a document plus any
// unrecognised keys, which are preserved across a parse/serialize round trip.
type Frontmatter struct {
	Title    string
	Keywords []string
	Kind     Kind
	Project  string
	Extra    map[string]any
}

// Link is one entry in a document's linked-notes section.
type Link struct {
	Target    string  // wikilink target, the note path without .md
	Relevance float64 // 0 when unknown
	Reason    string
}

// Document is the structured form of one vault note.
type Document struct {
	Meta  Frontmatter
	Body  string
	Links []Link
}

// Title returns the frontmatter title, falling back to the first H1 heading.
func (d *Document) Title() string {
	if d.Meta.Title != "" {
		return d.Meta.Title
	}
	for _, line := range strings.Split(d.Body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// HasLink reports whether the linked-notes section already references target.
func (d *Document) HasLink(target string) bool {
	for _, l := range d.Links {
		if l.Target == target {
			return true
		}
	}
	return false
}

// AddLink appends a link to the linked-notes section unless one with the
// same target exists. It reports whether the link was added.
func (d *Document) AddLink(l Link) bool {
	if l.Target == "" || d.HasLink(l.Target) {
		return false
	}
	d.Links = append(d.Links, l)
	return true
}

// AppendAddendum appends dated text to the document body. The linked-notes
// section is held separately in the model, so the addendum always lands
// before it on serialization.
func (d *Document) AppendAddendum(date string, text string) {
	var b strings.Builder
	b.WriteString(strings.TrimRight(d.Body, "\n"))
	b.WriteString("\n\n---\n\n**")
	b.WriteString(date)
	b.WriteString("**\n\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")
	d.Body = b.String()
}

// MergeKeywords unions new keywords into the frontmatter keyword set:
// existing keywords keep their positions, new ones are appended in the
// given order, comparison is case-insensitive.
func (d *Document) MergeKeywords(kws []string) {
	d.Meta.Keywords = MergeKeywordSets(d.Meta.Keywords, kws)
}

// MergeKeywordSets returns existing with any entries of extra that are not
// already present (case-insensitive) appended in order.
func MergeKeywordSets(existing, extra []string) []string {
	out := NormalizeKeywords(existing)
	seen := make(map[string]struct{}, len(out))
	for _, k := range out {
		seen[strings.ToLower(k)] = struct{}{}
	}
	for _, k := range extra {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(k)]; dup {
			continue
		}
		seen[strings.ToLower(k)] = struct{}{}
		out = append(out, k)
	}
	return out
}

// NormalizeKeywords trims entries and removes duplicates while preserving
// insertion order.
func NormalizeKeywords(kws []string) []string {
	seen := make(map[string]struct{}, len(kws))
	out := make([]string, 0, len(kws))
	for _, k := range kws {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(k)]; dup {
			continue
		}
		seen[strings.ToLower(k)] = struct{}{}
		out = append(out, k)
	}
	return out
}
