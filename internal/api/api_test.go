package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/linker"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/organizer"
	"github.com/starford/ansuz/internal/registry"
	"github.com/starford/ansuz/internal/retrieval"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/zettelid"
	"github.com/starford/ansuz/internal/zkindex"
)

type apiEnv struct {
	store  storage.Provider
	fake   *testutil.FakeClassifier
	svc    *noteservice.Service
	router http.Handler
}

func newEnv(t *testing.T, fake *testutil.FakeClassifier) *apiEnv {
	t.Helper()
	if fake == nil {
		fake = &testutil.FakeClassifier{}
	}
	logger := testutil.DiscardLogger()
	_, store := testutil.TestVault(t)
	ix := testutil.TestIndex(t, store)

	f, err := os.CreateTemp("", "ansuz-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	db, err := search.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := search.Sync(db, store, logger); err != nil {
		t.Fatal(err)
	}

	reg := registry.New(store, ix, fake, logger)
	reg.Scan()
	searcher := retrieval.NewSearcher(ix, fake, logger)
	alloc := zettelid.New(zettelid.SchemeDateSeq)
	engine := linker.NewEngine(linker.Config{
		Store:     store,
		Index:     ix,
		Searcher:  searcher,
		Allocator: alloc,
		Logger:    logger,
	})
	structure := zkindex.New(store, ix, "", logger)
	org := organizer.New(organizer.Config{
		Store:      store,
		Index:      ix,
		Gateway:    fake,
		Registry:   reg,
		Engine:     engine,
		Structure:  structure,
		Logger:     logger,
		Quiescence: 20 * time.Millisecond,
		Pacing:     time.Millisecond,
	})
	svc := noteservice.NewService(store, ix, db)

	h := NewHandler(svc, org, reg, searcher, structure)
	return &apiEnv{
		store:  store,
		fake:   fake,
		svc:    svc,
		router: NewRouter(h, false, "", nil),
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
	return v
}

func TestNoteCRUD(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/notes", CreateNoteRequest{
		Path:    "notes/first.md",
		Content: "---\ntitle: First\ntype: zettel\n---\n\nBody.\n",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decode[NoteDetail](t, rec)
	if created.Title != "First" {
		t.Errorf("title = %q", created.Title)
	}

	// Duplicate create conflicts.
	rec = env.do(t, http.MethodPost, "/notes", CreateNoteRequest{
		Path: "notes/first.md", Content: "x",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/notes/notes/first.md", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[NoteDetail](t, rec)
	if got.Checksum != created.Checksum {
		t.Errorf("checksum changed between create and get")
	}

	rec = env.do(t, http.MethodDelete, "/notes/notes/first.md", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/notes/notes/first.md", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestUpdateNote_IfMatch(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/notes", CreateNoteRequest{
		Path:    "notes/doc.md",
		Content: "---\ntitle: Doc\n---\n\nv1\n",
	})
	created := decode[NoteDetail](t, rec)

	// Stale checksum is rejected.
	req := httptest.NewRequest(http.MethodPut, "/notes/notes/doc.md",
		strings.NewReader(`{"content":"---\ntitle: Doc\n---\n\nv2\n"}`))
	req.Header.Set("If-Match", `"deadbeef"`)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d", rr.Code)
	}

	// Current checksum passes.
	req = httptest.NewRequest(http.MethodPut, "/notes/notes/doc.md",
		strings.NewReader(`{"content":"---\ntitle: Doc\n---\n\nv2\n"}`))
	req.Header.Set("If-Match", `"`+created.Checksum+`"`)
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rr.Code, rr.Body.String())
	}
	updated := decode[NoteDetail](t, rr)
	if updated.Checksum == created.Checksum {
		t.Errorf("checksum unchanged after update")
	}
}

func TestListNotes_Filter(t *testing.T) {
	env := newEnv(t, nil)
	testutil.WriteNote(t, env.store, "zettel/a.md", "A", "zettel", "", []string{"x"}, "a")
	testutil.WriteNote(t, env.store, "notes/b.md", "B", "", "", []string{"y"}, "b")
	for _, p := range []string{"zettel/a.md", "notes/b.md"} {
		data, _ := env.store.Read(p)
		if err := env.svc.IndexFile(p, data); err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(t, http.MethodGet, "/notes?kind=zettel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[NoteListResponse](t, rec)
	if list.Total != 1 || len(list.Notes) != 1 || list.Notes[0].Path != "zettel/a.md" {
		t.Errorf("filtered list = %+v", list)
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/search?q=anything", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRelated(t *testing.T) {
	fake := &testutil.FakeClassifier{
		Related: []classifier.Related{{Index: 0, Relevance: 0.85, Reason: "same topic", Type: classifier.ConnectionExpansion}},
	}
	env := newEnv(t, fake)
	testutil.WriteNote(t, env.store, "zettel/mqtt.md", "MQTT basics", "zettel", "", []string{"mqtt"}, "body")
	data, _ := env.store.Read("zettel/mqtt.md")
	if err := env.svc.IndexFile("zettel/mqtt.md", data); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/related", RelatedRequest{
		Title:    "IoT messaging",
		Keywords: []string{"mqtt"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[RelatedResponse](t, rec)
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	hit := resp.Results[0]
	if hit.Path != "zettel/mqtt.md" || hit.Relevance != 0.85 || hit.Type != "expansion" {
		t.Errorf("hit = %+v", hit)
	}

	// Neither keywords nor text supplied.
	rec = env.do(t, http.MethodPost, "/related", RelatedRequest{Title: "empty"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d", rec.Code)
	}
}

func TestCapture(t *testing.T) {
	fake := &testutil.FakeClassifier{
		Dest:     classifier.Destination{Kind: "note", Title: "Shopping"},
		Keywords: []string{"errands"},
	}
	env := newEnv(t, fake)

	rec := env.do(t, http.MethodPost, "/capture", CaptureRequest{Text: "milk and eggs"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[CaptureResult](t, rec)
	if res.Path != "notes/shopping.md" {
		t.Errorf("path = %q", res.Path)
	}
	if !env.store.Exists(res.Path) {
		t.Errorf("captured note not on disk")
	}

	rec = env.do(t, http.MethodPost, "/capture", CaptureRequest{Text: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank capture status = %d", rec.Code)
	}
}

func TestProcessInbox(t *testing.T) {
	fake := &testutil.FakeClassifier{Keywords: []string{"topic"}}
	env := newEnv(t, fake)
	testutil.WriteNote(t, env.store, "inbox/pending.md", "Pending", "", "", nil, "content")

	rec := env.do(t, http.MethodPost, "/inbox/process", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	results := decode[[]CaptureResult](t, rec)
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if env.store.Exists("inbox/pending.md") {
		t.Errorf("inbox note was not moved")
	}
}

func TestListProjects(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/projects", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	projects := decode[[]Project](t, rec)
	if len(projects) != 0 {
		t.Errorf("projects = %+v", projects)
	}
}

func TestRebuildStructure(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/structure/rebuild", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !env.store.Exists("zk-index.md") {
		t.Errorf("structure index document missing")
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := AuthMiddleware(true, "secret")(next)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "Basic c2VjcmV0", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/notes", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	disabled := AuthMiddleware(false, "")(next)
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("disabled auth status = %d", rec.Code)
	}
}
