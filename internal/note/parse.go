package note

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LinkedNotesHeading is the section heading that holds the link list.
const LinkedNotesHeading = "## Linked Notes"

// linkLineRe matches one linked-notes bullet:
//
//	- [[target]] (85%): reason text
//
// Relevance and reason are optional.
var linkLineRe = regexp.MustCompile(`^-\s*\[\[([^\]|]+)(?:\|[^\]]*)?\]\]\s*(?:\((\d+)%\))?\s*(?::\s*(.*))?$`)

// Parse builds a Document from raw Markdown bytes. A missing or malformed
// frontmatter block yields default metadata rather than an error, so one
// bad document can never abort indexing.
func Parse(data []byte) *Document {
	fm, body := splitFrontmatter(data)
	body, links := splitLinkedNotes(body)

	return &Document{
		Meta:  fm,
		Body:  body,
		Links: links,
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found, or the YAML does not
// parse, the entire content is body and metadata stays at defaults.
func splitFrontmatter(data []byte) (Frontmatter, string) {
	const delim = "---"
	var fm Frontmatter

	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var raw map[string]any
	if err := yaml.Unmarshal(yamlBlock, &raw); err != nil {
		return fm, string(data)
	}

	for key, val := range raw {
		switch key {
		case "title":
			fm.Title = asString(val)
		case "type":
			fm.Kind = ParseKind(asString(val))
		case "project":
			fm.Project = asString(val)
		case "keywords":
			fm.Keywords = asStringList(val)
		default:
			if fm.Extra == nil {
				fm.Extra = make(map[string]any)
			}
			fm.Extra[key] = val
		}
	}
	fm.Keywords = NormalizeKeywords(fm.Keywords)

	return fm, body
}

// splitLinkedNotes separates the linked-notes section from the body and
// parses its bullet lines. Lines inside the section that are not link
// bullets are dropped; the section is model-owned.
func splitLinkedNotes(body string) (string, []Link) {
	idx := strings.LastIndex(body, LinkedNotesHeading)
	if idx < 0 {
		return body, nil
	}
	// The heading must start a line.
	if idx > 0 && body[idx-1] != '\n' {
		return body, nil
	}

	section := body[idx+len(LinkedNotesHeading):]
	rest := strings.TrimRight(body[:idx], "\n")

	var links []Link
	seen := make(map[string]struct{})
	for _, line := range strings.Split(section, "\n") {
		m := linkLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		var rel float64
		if m[2] != "" {
			if pct, err := strconv.Atoi(m[2]); err == nil {
				rel = float64(pct) / 100
			}
		}
		links = append(links, Link{
			Target:    target,
			Relevance: rel,
			Reason:    strings.TrimSpace(m[3]),
		})
	}
	return rest, links
}

var wikilinkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]*)?\]\]`)

// Wikilinks returns the deduplicated inline wikilink targets in body,
// normalising aliases ([[Target|Alias]] → Target).
func Wikilinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func asStringList(v any) []string {
	switch list := v.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case string:
		// Tolerate a comma-separated scalar.
		var out []string
		for _, s := range strings.Split(list, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
