package classifier

import (
	"encoding/json"
	"strings"

	"github.com/starford/ansuz/internal/note"
)

// The decode helpers turn raw model output into typed results. A response
// that does not parse as the expected structure yields an empty value, so
// retrieval degrades to "nothing found" instead of failing the operation.

// stripFences removes a Markdown code fence around a JSON payload. Models
// occasionally wrap JSON despite being asked not to.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeStringList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return nil
	}
	return note.NormalizeKeywords(out)
}

func decodeRelated(raw string) []Related {
	var rows []struct {
		Index     int     `json:"index"`
		Relevance float64 `json:"relevance"`
		Reason    string  `json:"reason"`
		Type      string  `json:"type"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &rows); err != nil {
		return nil
	}
	out := make([]Related, 0, len(rows))
	for _, r := range rows {
		out = append(out, Related{
			Index:     r.Index,
			Relevance: r.Relevance,
			Reason:    strings.TrimSpace(r.Reason),
			Type:      ParseConnectionType(r.Type),
		})
	}
	return out
}

func decodeProjectDetection(raw string) ProjectDetection {
	var row struct {
		Project    string `json:"project"`
		NewProject string `json:"new_project"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &row); err != nil {
		return ProjectDetection{}
	}
	return ProjectDetection{
		ProjectID: strings.TrimSpace(row.Project),
		NewName:   strings.TrimSpace(row.NewProject),
	}
}

func decodeDestination(raw string) Destination {
	var row struct {
		Kind    string `json:"kind"`
		Project string `json:"project"`
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &row); err != nil {
		return Destination{}
	}
	return Destination{
		Kind:    strings.TrimSpace(row.Kind),
		Project: strings.TrimSpace(row.Project),
		Title:   strings.TrimSpace(row.Title),
		Summary: strings.TrimSpace(row.Summary),
	}
}

func decodeZkCandidates(raw string) []ZkCandidate {
	var rows []struct {
		Title           string   `json:"title"`
		Body            string   `json:"body"`
		Keywords        []string `json:"keywords"`
		Importance      string   `json:"importance"`
		RelatedConcepts []string `json:"related_concepts"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &rows); err != nil {
		return nil
	}
	out := make([]ZkCandidate, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Body) == "" {
			continue
		}
		out = append(out, ZkCandidate{
			Title:           strings.TrimSpace(r.Title),
			Body:            strings.TrimSpace(r.Body),
			Keywords:        note.NormalizeKeywords(r.Keywords),
			Importance:      strings.TrimSpace(r.Importance),
			RelatedConcepts: r.RelatedConcepts,
		})
	}
	return out
}
