package zkindex

import (
	"fmt"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/testutil"
)

func TestPatch_CreatesDocumentAndClusters(t *testing.T) {
	_, store := testutil.TestVault(t)
	ix := testutil.TestIndex(t, store)
	s := New(store, ix, "", testutil.DiscardLogger())

	rec := noteindex.Record{Path: "zettel/20260101-001.md", Title: "MQTT basics", Keywords: []string{"mqtt", "iot"}}
	if err := s.Patch(rec); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	data, err := store.Read(DefaultPath)
	if err != nil {
		t.Fatalf("read structure index: %v", err)
	}
	text := string(data)
	for _, want := range []string{"## Recent", "## By Topic", "### mqtt", "- [[zettel/20260101-001]]: MQTT basics"} {
		if !strings.Contains(text, want) {
			t.Errorf("document missing %q:\n%s", want, text)
		}
	}

	// The structure index itself is indexed.
	if _, ok := ix.Get(DefaultPath); !ok {
		t.Error("structure index not in the note index")
	}
}

func TestPatch_RecentDedupAndCap(t *testing.T) {
	_, store := testutil.TestVault(t)
	ix := testutil.TestIndex(t, store)
	s := New(store, ix, "", testutil.DiscardLogger())

	for i := 1; i <= 12; i++ {
		rec := noteindex.Record{
			Path:     fmt.Sprintf("zettel/20260101-%03d.md", i),
			Title:    fmt.Sprintf("Note %d", i),
			Keywords: []string{"topic"},
		}
		if err := s.Patch(rec); err != nil {
			t.Fatalf("Patch %d: %v", i, err)
		}
	}
	// Re-patching an existing note must not duplicate it.
	if err := s.Patch(noteindex.Record{Path: "zettel/20260101-012.md", Title: "Note 12", Keywords: []string{"topic"}}); err != nil {
		t.Fatal(err)
	}

	data, _ := store.Read(DefaultPath)
	text := string(data)

	recent := section(text, "## Recent", "## By Topic")
	if n := strings.Count(recent, "- [["); n != maxRecent {
		t.Errorf("recent section has %d entries, want %d:\n%s", n, maxRecent, recent)
	}
	if !strings.HasPrefix(strings.TrimSpace(recent), "- [[zettel/20260101-012]]") {
		t.Errorf("newest note not first:\n%s", recent)
	}
	if strings.Contains(recent, "20260101-001]]") || strings.Contains(recent, "20260101-002]]") {
		t.Errorf("oldest notes not evicted:\n%s", recent)
	}
	if n := strings.Count(text, "20260101-012]]"); n != 2 { // once recent, once in topic
		t.Errorf("re-patched note appears %d times, want 2:\n%s", n, text)
	}
}

func TestPatch_UncategorisedCluster(t *testing.T) {
	_, store := testutil.TestVault(t)
	ix := testutil.TestIndex(t, store)
	s := New(store, ix, "", testutil.DiscardLogger())

	if err := s.Patch(noteindex.Record{Path: "zettel/a.md", Title: "No keywords"}); err != nil {
		t.Fatal(err)
	}
	data, _ := store.Read(DefaultPath)
	if !strings.Contains(string(data), "### uncategorised") {
		t.Errorf("keyword-less note not clustered:\n%s", data)
	}
}

func TestRebuild_GroupsByPrimaryKeyword(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "zettel/20260101-001.md", "Broker", "zettel", "", []string{"mqtt"}, "a")
	testutil.WriteNote(t, store, "zettel/20260101-002.md", "Topics", "zettel", "", []string{"mqtt", "routing"}, "b")
	testutil.WriteNote(t, store, "zettel/20260102-001.md", "Compost", "zettel", "", []string{"garden"}, "c")
	testutil.WriteNote(t, store, "inbox/raw.md", "Raw capture", "", "", []string{"mqtt"}, "not a zettel")
	ix := testutil.TestIndex(t, store)
	s := New(store, ix, "", testutil.DiscardLogger())

	if err := s.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	data, _ := store.Read(DefaultPath)
	text := string(data)

	if strings.Contains(text, "inbox/raw") {
		t.Error("non-zettel note included")
	}
	// Topics alphabetical: garden before mqtt.
	garden := strings.Index(text, "### garden")
	mqtt := strings.Index(text, "### mqtt")
	if garden < 0 || mqtt < 0 || garden > mqtt {
		t.Errorf("topic order wrong (garden=%d mqtt=%d):\n%s", garden, mqtt, text)
	}
	// Secondary keywords don't spawn clusters.
	if strings.Contains(text, "### routing") {
		t.Error("secondary keyword clustered")
	}
	// Recent ordered by identifier, newest first.
	recent := section(text, "## Recent", "## By Topic")
	newest := strings.Index(recent, "20260102-001")
	oldest := strings.Index(recent, "20260101-001")
	if newest < 0 || oldest < 0 || newest > oldest {
		t.Errorf("recency order wrong:\n%s", recent)
	}
}

func TestRebuild_ReplacesPreviousContent(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "zettel/20260101-001.md", "Keeper", "zettel", "", []string{"keep"}, "a")
	ix := testutil.TestIndex(t, store)
	s := New(store, ix, "", testutil.DiscardLogger())

	if err := s.Patch(noteindex.Record{Path: "zettel/gone.md", Title: "Stale", Keywords: []string{"stale"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Rebuild(); err != nil {
		t.Fatal(err)
	}

	data, _ := store.Read(DefaultPath)
	if strings.Contains(string(data), "gone") {
		t.Errorf("stale entry survived rebuild:\n%s", data)
	}
	if !strings.Contains(string(data), "[[zettel/20260101-001]]") {
		t.Errorf("indexed zettel missing:\n%s", data)
	}
}

// section returns the text between the from and to headings.
func section(text, from, to string) string {
	start := strings.Index(text, from)
	end := strings.Index(text, to)
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return text[start+len(from) : end]
}
