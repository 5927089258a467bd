package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/note"
	"github.com/starford/ansuz/internal/testutil"
)

func TestScan_RegistersHubsLastWins(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "projects/iot.md", "IoT Project", "project-moc", "iot", nil, "hub")
	testutil.WriteNote(t, store, "projects/unnamed.md", "Unnamed", "project-moc", "", nil, "hub")
	// Duplicate project id at a later path wins.
	testutil.WriteNote(t, store, "projects/z-dup.md", "IoT Duplicate", "project-moc", "iot", nil, "hub")
	testutil.WriteNote(t, store, "plain.md", "Plain", "", "", nil, "not a hub")
	ix := testutil.TestIndex(t, store)

	r := New(store, ix, &testutil.FakeClassifier{}, testutil.DiscardLogger())
	r.Scan()

	if got := r.ProjectIDs(); len(got) != 2 {
		t.Fatalf("projects = %v, want 2", got)
	}
	hub, ok := r.Get("iot")
	if !ok || hub.Path != "projects/z-dup.md" {
		t.Errorf("iot hub = %+v, want the later duplicate", hub)
	}
	// Hub without explicit project id is keyed by base name.
	if _, ok := r.Get("unnamed"); !ok {
		t.Error("hub without project id not keyed by base name")
	}
}

func TestAddLink_IdempotentAndUnknownProject(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "projects/iot.md", "IoT", "project-moc", "iot", nil, "hub body")
	ix := testutil.TestIndex(t, store)

	r := New(store, ix, &testutil.FakeClassifier{}, testutil.DiscardLogger())
	r.Scan()

	ok, err := r.AddLink("iot", "Sensor note", "zettel/20260101-001.md")
	if err != nil || !ok {
		t.Fatalf("AddLink = %v, %v", ok, err)
	}
	// Second add is a no-op.
	ok, err = r.AddLink("iot", "Sensor note", "zettel/20260101-001.md")
	if err != nil || !ok {
		t.Fatalf("repeat AddLink = %v, %v", ok, err)
	}

	data, _ := store.Read("projects/iot.md")
	if n := strings.Count(string(data), "[[zettel/20260101-001]]"); n != 1 {
		t.Errorf("link appears %d times, want 1:\n%s", n, data)
	}

	// Unknown project fails silently.
	ok, err = r.AddLink("ghost", "t", "p.md")
	if err != nil {
		t.Fatalf("unknown project err = %v", err)
	}
	if ok {
		t.Error("AddLink to unknown project should report false")
	}
}

func TestCreateHub_Idempotent(t *testing.T) {
	_, store := testutil.TestVault(t)
	ix := testutil.TestIndex(t, store)
	r := New(store, ix, &testutil.FakeClassifier{}, testutil.DiscardLogger())

	hub, err := r.CreateHub("garden", "projects")
	if err != nil {
		t.Fatalf("CreateHub: %v", err)
	}
	if hub.Path != "projects/garden.md" || !store.Exists(hub.Path) {
		t.Errorf("hub = %+v", hub)
	}

	first, _ := store.Read(hub.Path)
	again, err := r.CreateHub("garden", "projects")
	if err != nil {
		t.Fatalf("repeat CreateHub: %v", err)
	}
	if again.Path != hub.Path {
		t.Errorf("repeat returned %+v", again)
	}
	second, _ := store.Read(hub.Path)
	if string(first) != string(second) {
		t.Error("repeat CreateHub rewrote the backing document")
	}

	doc := note.Parse(first)
	if doc.Meta.Kind != note.KindProjectHub {
		t.Errorf("hub kind = %v", doc.Meta.Kind)
	}
}

func TestCreateHub_AdoptsExistingDocument(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "projects/legacy.md", "Legacy", "project-moc", "legacy", nil, "existing")
	ix := testutil.TestIndex(t, store)
	r := New(store, ix, &testutil.FakeClassifier{}, testutil.DiscardLogger())

	// Not scanned: the registry does not know the project, but the file exists.
	hub, err := r.CreateHub("legacy", "projects")
	if err != nil {
		t.Fatalf("CreateHub: %v", err)
	}
	data, _ := store.Read(hub.Path)
	if !strings.Contains(string(data), "existing") {
		t.Error("existing document was overwritten")
	}
}

func TestDetectProject_DelegatesWithProjectList(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteNote(t, store, "projects/iot.md", "IoT", "project-moc", "iot", nil, "hub")
	ix := testutil.TestIndex(t, store)
	fake := &testutil.FakeClassifier{Detection: classifier.ProjectDetection{ProjectID: "iot"}}

	r := New(store, ix, fake, testutil.DiscardLogger())
	r.Scan()

	det, err := r.DetectProject(context.Background(), "Sensor note", []string{"sensor"})
	if err != nil {
		t.Fatalf("DetectProject: %v", err)
	}
	if det.ProjectID != "iot" {
		t.Errorf("detection = %+v", det)
	}
	if len(fake.Calls) != 1 || fake.Calls[0] != "detect_project" {
		t.Errorf("calls = %v", fake.Calls)
	}
}
