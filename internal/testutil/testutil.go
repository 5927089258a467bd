// Package testutil provides shared test helpers for setting up vaults,
// indexes, and a scriptable classifier.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/noteindex"
	"github.com/starford/ansuz/internal/storage"
)

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestIndex creates an index over store, rebuilt from its current contents.
func TestIndex(t *testing.T, store storage.Provider) *noteindex.Index {
	t.Helper()
	ix := noteindex.New(store, DiscardLogger())
	if err := ix.Rebuild(); err != nil {
		t.Fatalf("rebuild index: %v", err)
	}
	return ix
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WriteNote writes a note with frontmatter built from the arguments.
// kind and project may be empty; keywords may be nil.
func WriteNote(t *testing.T, store storage.Provider, path, title, kind, project string, keywords []string, body string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", title)
	if kind != "" {
		fmt.Fprintf(&b, "type: %s\n", kind)
	}
	if project != "" {
		fmt.Fprintf(&b, "project: %s\n", project)
	}
	if len(keywords) > 0 {
		b.WriteString("keywords:\n")
		for _, k := range keywords {
			fmt.Fprintf(&b, "  - %s\n", k)
		}
	}
	b.WriteString("---\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	if err := store.Write(path, []byte(b.String())); err != nil {
		t.Fatalf("write note %s: %v", path, err)
	}
}

// FakeClassifier is a scriptable classifier.Client for tests. Zero-value
// methods return empty results. Set the fields, or the Fn hooks for
// per-call behavior. Calls records every invoked operation in order.
type FakeClassifier struct {
	Keywords  []string
	Related   []classifier.Related
	Detection classifier.ProjectDetection
	Dest      classifier.Destination
	Zettels   []classifier.ZkCandidate
	Err       error
	ErrOn     string // when set, Err applies only to this operation

	RelatedFn func(title string, keywords []string, candidates []classifier.Candidate) ([]classifier.Related, error)

	Calls []string
}

func (f *FakeClassifier) record(op string) error {
	f.Calls = append(f.Calls, op)
	if f.ErrOn == "" || f.ErrOn == op {
		return f.Err
	}
	return nil
}

func (f *FakeClassifier) ExtractKeywords(_ context.Context, _ string) ([]string, error) {
	return f.Keywords, f.record("extract_keywords")
}

func (f *FakeClassifier) FindRelated(_ context.Context, title string, keywords []string, candidates []classifier.Candidate) ([]classifier.Related, error) {
	err := f.record("find_related")
	if f.RelatedFn != nil {
		return f.RelatedFn(title, keywords, candidates)
	}
	return f.Related, err
}

func (f *FakeClassifier) DetectProject(_ context.Context, _ string, _ []string, _ []string) (classifier.ProjectDetection, error) {
	return f.Detection, f.record("detect_project")
}

func (f *FakeClassifier) ClassifyDestination(_ context.Context, _ string, _ []string) (classifier.Destination, error) {
	return f.Dest, f.record("classify_destination")
}

func (f *FakeClassifier) ExtractZettels(_ context.Context, _ string) ([]classifier.ZkCandidate, error) {
	return f.Zettels, f.record("extract_zettels")
}

var _ classifier.Client = (*FakeClassifier)(nil)
