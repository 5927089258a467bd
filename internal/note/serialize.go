package note

import (
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterYAML fixes the emission order of recognised keys; unrecognised
// keys are inlined after them.
type frontmatterYAML struct {
	Title    string         `yaml:"title,omitempty"`
	Type     string         `yaml:"type,omitempty"`
	Project  string         `yaml:"project,omitempty"`
	Keywords []string       `yaml:"keywords,omitempty"`
	Extra    map[string]any `yaml:",inline"`
}

// Serialize renders the document back to Markdown bytes: frontmatter block,
// body, then the linked-notes section when any links exist.
func (d *Document) Serialize() ([]byte, error) {
	var b strings.Builder

	fm := frontmatterYAML{
		Title:    d.Meta.Title,
		Type:     d.Meta.Kind.String(),
		Project:  d.Meta.Project,
		Keywords: d.Meta.Keywords,
		Extra:    d.Meta.Extra,
	}
	if fm.Title != "" || fm.Type != "" || fm.Project != "" || len(fm.Keywords) > 0 || len(fm.Extra) > 0 {
		y, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("note: marshal frontmatter: %w", err)
		}
		b.WriteString("---\n")
		b.Write(y)
		b.WriteString("---\n\n")
	}

	b.WriteString(strings.TrimRight(d.Body, "\n"))
	b.WriteString("\n")

	if len(d.Links) > 0 {
		b.WriteString("\n")
		b.WriteString(LinkedNotesHeading)
		b.WriteString("\n\n")
		for _, l := range d.Links {
			b.WriteString(formatLink(l))
			b.WriteString("\n")
		}
	}

	return []byte(b.String()), nil
}

func formatLink(l Link) string {
	var b strings.Builder
	b.WriteString("- [[")
	b.WriteString(l.Target)
	b.WriteString("]]")
	if l.Relevance > 0 {
		fmt.Fprintf(&b, " (%d%%)", int(math.Round(l.Relevance*100)))
	}
	if l.Reason != "" {
		b.WriteString(": ")
		b.WriteString(l.Reason)
	}
	return b.String()
}
