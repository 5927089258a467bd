package retrieval

import (
	"context"
	"testing"

	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/testutil"
)

func TestFindRelated_MapsIndicesToRecords(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "zettel/a.md", "Alpha", "zettel", "", []string{"sensor"}, "a")
	testutil.WriteNote(t, store, "zettel/b.md", "Beta", "zettel", "", []string{"sensor", "mesh"}, "b")
	ix := testutil.TestIndex(t, store)

	fake := &testutil.FakeClassifier{
		RelatedFn: func(_ string, _ []string, candidates []classifier.Candidate) ([]classifier.Related, error) {
			if len(candidates) != 2 {
				t.Fatalf("candidates = %d, want 2", len(candidates))
			}
			return []classifier.Related{
				{Index: 1, Relevance: 0.9, Reason: "same domain", Type: classifier.ConnectionExpansion},
			}, nil
		},
	}
	s := NewSearcher(ix, fake, testutil.DiscardLogger())

	results, err := s.FindRelated(context.Background(), Query{
		Title:    "Query",
		Keywords: []string{"sensor"},
	})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len = %d, want 1", len(results))
	}
	r := results[0]
	// Candidates are path-ordered (equal match counts), so index 1 is b.md.
	if r.Record.Path != "zettel/b.md" {
		t.Errorf("path = %s, want zettel/b.md", r.Record.Path)
	}
	if r.Relevance != 0.9 || r.Reason != "same domain" || r.Type != classifier.ConnectionExpansion {
		t.Errorf("result = %+v", r)
	}
	if len(r.Matched) == 0 {
		t.Errorf("matched keywords not carried through")
	}
}

func TestFindRelated_OutOfRangeIndexDiscarded(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "a.md", "A", "", "", []string{"sensor"}, "a")
	testutil.WriteNote(t, store, "b.md", "B", "", "", []string{"sensor"}, "b")
	testutil.WriteNote(t, store, "c.md", "C", "", "", []string{"sensor"}, "c")
	ix := testutil.TestIndex(t, store)

	fake := &testutil.FakeClassifier{
		Related: []classifier.Related{{Index: 7, Relevance: 0.9}},
	}
	s := NewSearcher(ix, fake, testutil.DiscardLogger())

	results, err := s.FindRelated(context.Background(), Query{Title: "q", Keywords: []string{"sensor"}})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("out-of-range index should be discarded, got %v", results)
	}
}

func TestFindRelated_EmptyKeywordsShortCircuits(t *testing.T) {
	_, store := testutil.TestVault(t)
	ix := testutil.TestIndex(t, store)
	fake := &testutil.FakeClassifier{}
	s := NewSearcher(ix, fake, testutil.DiscardLogger())

	results, err := s.FindRelated(context.Background(), Query{Title: "q"})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("classifier should not be called, got %v", fake.Calls)
	}
}

func TestFindRelated_NoCandidatesSkipsClassifier(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "a.md", "A", "", "", []string{"gardening"}, "a")
	ix := testutil.TestIndex(t, store)
	fake := &testutil.FakeClassifier{}
	s := NewSearcher(ix, fake, testutil.DiscardLogger())

	results, err := s.FindRelated(context.Background(), Query{Title: "q", Keywords: []string{"compiler"}})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if len(results) != 0 || len(fake.Calls) != 0 {
		t.Errorf("expected short circuit, results=%v calls=%v", results, fake.Calls)
	}
}

func TestFindRelated_ZettelOnlyPopulation(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "plain.md", "Plain", "", "", []string{"sensor"}, "p")
	testutil.WriteNote(t, store, "zettel/z.md", "Zettel", "zettel", "", []string{"sensor"}, "z")
	ix := testutil.TestIndex(t, store)

	fake := &testutil.FakeClassifier{
		RelatedFn: func(_ string, _ []string, candidates []classifier.Candidate) ([]classifier.Related, error) {
			if len(candidates) != 1 {
				t.Fatalf("candidates = %d, want 1 (zettel only)", len(candidates))
			}
			return []classifier.Related{{Index: 0, Relevance: 0.8}}, nil
		},
	}
	s := NewSearcher(ix, fake, testutil.DiscardLogger())

	results, err := s.FindRelated(context.Background(), Query{
		Title:      "q",
		Keywords:   []string{"sensor"},
		ZettelOnly: true,
	})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if len(results) != 1 || results[0].Record.Path != "zettel/z.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestFindRelatedToText_ExtractsFirst(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "a.md", "A", "", "", []string{"sensor"}, "a")
	ix := testutil.TestIndex(t, store)

	fake := &testutil.FakeClassifier{
		Keywords: []string{"sensor"},
		Related:  []classifier.Related{{Index: 0, Relevance: 0.7}},
	}
	s := NewSearcher(ix, fake, testutil.DiscardLogger())

	results, err := s.FindRelatedToText(context.Background(), "t", "text about sensors", false)
	if err != nil {
		t.Fatalf("FindRelatedToText: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len = %d, want 1", len(results))
	}
	if fake.Calls[0] != "extract_keywords" {
		t.Errorf("first call = %s, want extract_keywords", fake.Calls[0])
	}
}
