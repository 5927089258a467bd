// Package classifier adapts the external generative-AI service used for
// keyword extraction, relatedness scoring, project detection, and atomic
// idea extraction. The Gateway type adds the call discipline (global
// serialization, pacing, retry with backoff) that the rest of the system
// depends on.
package classifier

import (
	"context"
	"strings"
)

// ConnectionType describes how a related note connects to the query note.
type ConnectionType int

const (
	ConnectionUnspecified ConnectionType = iota
	ConnectionExpansion
	ConnectionRebuttal
	ConnectionExample
	ConnectionPremise
	ConnectionApplication
)

// ParseConnectionType maps a classifier string to a ConnectionType.
func ParseConnectionType(s string) ConnectionType {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "expansion":
		return ConnectionExpansion
	case "rebuttal":
		return ConnectionRebuttal
	case "example":
		return ConnectionExample
	case "premise":
		return ConnectionPremise
	case "application":
		return ConnectionApplication
	default:
		return ConnectionUnspecified
	}
}

func (c ConnectionType) String() string {
	switch c {
	case ConnectionExpansion:
		return "expansion"
	case ConnectionRebuttal:
		return "rebuttal"
	case ConnectionExample:
		return "example"
	case ConnectionPremise:
		return "premise"
	case ConnectionApplication:
		return "application"
	default:
		return "unspecified"
	}
}

// Candidate is one entry in the candidate list passed to FindRelated.
type Candidate struct {
	Title    string
	Keywords []string
}

// Related is one relatedness score. Index refers positionally into the
// candidate list supplied to FindRelated.
type Related struct {
	Index     int
	Relevance float64
	Reason    string
	Type      ConnectionType
}

// ProjectDetection is the result of DetectProject. The zero value means
// "no project". When the classifier proposes a project that does not exist
// yet, NewName carries the proposed name and ProjectID is empty.
type ProjectDetection struct {
	ProjectID string
	NewName   string
}

// None reports whether no project was detected.
func (p ProjectDetection) None() bool {
	return p.ProjectID == "" && p.NewName == ""
}

// Destination is the result of ClassifyDestination for an incoming text.
type Destination struct {
	Kind    string // "note" or "zettel-source"
	Project string // detected project name, empty when none
	Title   string
	Summary string
}

// ZkCandidate is one atomic idea extracted from a longer text. It is
// consumed once per creation attempt by the merge/link engine.
type ZkCandidate struct {
	Title           string
	Body            string
	Keywords        []string
	Importance      string
	RelatedConcepts []string
}

// Client is the external classifier capability. Implementations perform one
// remote call per method and are side-effect-free from the caller's
// perspective. Callers should go through a Gateway, which adds the pacing
// and retry discipline.
type Client interface {
	// ExtractKeywords returns an ordered list of keywords for text.
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
	// FindRelated scores each candidate's relatedness to the query note.
	FindRelated(ctx context.Context, title string, keywords []string, candidates []Candidate) ([]Related, error)
	// DetectProject matches a note against the known project list.
	DetectProject(ctx context.Context, title string, keywords []string, projects []string) (ProjectDetection, error)
	// ClassifyDestination decides where an incoming text belongs.
	ClassifyDestination(ctx context.Context, text string, projects []string) (Destination, error)
	// ExtractZettels extracts atomic ideas from a longer text.
	ExtractZettels(ctx context.Context, text string) ([]ZkCandidate, error)
}
