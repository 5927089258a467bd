package retrieval

import (
	"fmt"
	"iter"
	"slices"
	"testing"

	"github.com/starford/ansuz/internal/noteindex"
)

func seq(recs []noteindex.Record) iter.Seq[noteindex.Record] {
	return slices.Values(recs)
}

func TestPrefilter_SymmetricSubstringMatch(t *testing.T) {
	recs := []noteindex.Record{
		{Path: "a.md", Keywords: []string{"IoT"}},
		{Path: "b.md", Keywords: []string{"IoTron platform"}},
		{Path: "c.md", Keywords: []string{"gardening"}},
	}
	hits := Prefilter(seq(recs), []string{"iot"}, "")
	if len(hits) != 2 {
		t.Fatalf("len = %d, want 2 (substring matching is symmetric)", len(hits))
	}
}

func TestPrefilter_SortedByMatchCountThenPath(t *testing.T) {
	recs := []noteindex.Record{
		{Path: "one.md", Keywords: []string{"sensor"}},
		{Path: "zz.md", Keywords: []string{"sensor", "mesh"}},
		{Path: "aa.md", Keywords: []string{"sensor", "mesh"}},
	}
	hits := Prefilter(seq(recs), []string{"sensor", "mesh"}, "")
	if len(hits) != 3 {
		t.Fatalf("len = %d, want 3", len(hits))
	}
	if hits[0].Record.Path != "aa.md" || hits[1].Record.Path != "zz.md" {
		t.Errorf("tie not broken by path: %s, %s", hits[0].Record.Path, hits[1].Record.Path)
	}
	for i := 1; i < len(hits); i++ {
		if len(hits[i].Matched) > len(hits[i-1].Matched) {
			t.Errorf("match counts not non-increasing")
		}
	}
}

func TestPrefilter_CapsAtTen(t *testing.T) {
	var recs []noteindex.Record
	for i := 0; i < 25; i++ {
		recs = append(recs, noteindex.Record{
			Path:     fmt.Sprintf("n%02d.md", i),
			Keywords: []string{"sensor"},
		})
	}
	hits := Prefilter(seq(recs), []string{"sensor"}, "")
	if len(hits) != 10 {
		t.Errorf("len = %d, want 10", len(hits))
	}
	for _, h := range hits {
		if len(h.Matched) == 0 {
			t.Errorf("candidate %s has no matched keywords", h.Record.Path)
		}
	}
}

func TestPrefilter_ExcludesSelfAndKeywordless(t *testing.T) {
	recs := []noteindex.Record{
		{Path: "self.md", Keywords: []string{"sensor"}},
		{Path: "other.md", Keywords: []string{"sensor networks"}},
		{Path: "bare.md"}, // no keywords, never a candidate
	}
	hits := Prefilter(seq(recs), []string{"sensor"}, "self.md")
	if len(hits) != 1 {
		t.Fatalf("len = %d, want 1", len(hits))
	}
	if hits[0].Record.Path != "other.md" {
		t.Errorf("sole candidate = %s, want other.md", hits[0].Record.Path)
	}
}

func TestPrefilter_NoQueryKeywords(t *testing.T) {
	recs := []noteindex.Record{{Path: "a.md", Keywords: []string{"x"}}}
	if hits := Prefilter(seq(recs), nil, ""); len(hits) != 0 {
		t.Errorf("expected no hits for empty query, got %d", len(hits))
	}
}
