// Package retrieval finds notes related to a query in two stages: a local
// keyword prefilter narrows the candidate set, then the classifier gateway
// re-ranks the survivors.
package retrieval

import (
	"iter"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/noteindex"
)

// maxCandidates caps how many records the prefilter returns.
const maxCandidates = 10

// Hit is one prefilter candidate.
type Hit struct {
	Record  noteindex.Record
	Matched []string // stored keywords that matched the query
}

// keywordsMatch reports whether two keywords match: comparison is
// case-insensitive and either side may be a substring of the other.
// Deliberately loose; short keywords can over-match (e.g. "IoT" matches
// "IoTron") and the second retrieval stage filters those out.
func keywordsMatch(a, b string) bool {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Prefilter scans records and returns up to maxCandidates hits ordered by
// descending matched-keyword count, ties broken by path. Records with no
// stored keywords never match, and the record at excludePath is skipped.
func Prefilter(records iter.Seq[noteindex.Record], query []string, excludePath string) []Hit {
	var hits []Hit

	records(func(rec noteindex.Record) bool {
		if rec.Path == excludePath || len(rec.Keywords) == 0 {
			return true
		}
		var matched []string
		for _, stored := range rec.Keywords {
			for _, q := range query {
				if keywordsMatch(stored, q) {
					matched = append(matched, stored)
					break
				}
			}
		}
		if len(matched) > 0 {
			hits = append(hits, Hit{Record: rec, Matched: matched})
		}
		return true
	})

	sort.Slice(hits, func(i, j int) bool {
		if len(hits[i].Matched) != len(hits[j].Matched) {
			return len(hits[i].Matched) > len(hits[j].Matched)
		}
		return hits[i].Record.Path < hits[j].Record.Path
	})

	if len(hits) > maxCandidates {
		hits = hits[:maxCandidates]
	}
	return hits
}
