package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/session"
)

// openLibraryStub serves total numbered "Dune" works in pages.
func openLibraryStub(t *testing.T, total int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.json" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		docs := []map[string]any{}
		for i := (page - 1) * limit; i < page*limit && i < total; i++ {
			docs = append(docs, map[string]any{
				"key":         fmt.Sprintf("/works/OL%dW", i),
				"title":       fmt.Sprintf("Dune %d", i),
				"author_name": []string{"Frank Herbert"},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"numFound": total, "docs": docs})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failingStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func googleStub(t *testing.T, n int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]any{}
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{
				"id":         fmt.Sprintf("g%d", i),
				"volumeInfo": map[string]any{"title": fmt.Sprintf("Volume %d", i), "authors": []string{"A"}},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"totalItems": n, "items": items})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.RateLimit = 0
	cfg.Query = "dune"
	return cfg
}

func runApp(t *testing.T, cfg Config) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a, err := New(context.Background(), cfg, &out)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	err = a.Run(context.Background())
	return out.String(), err
}

func TestRun_ScrollsThroughPages(t *testing.T) {
	ol := openLibraryStub(t, 30)
	cfg := testConfig(t)
	cfg.OpenLibraryURL = ol.URL
	cfg.GoogleBooksURL = failingStub(t).URL
	cfg.PageSize = 10
	cfg.Pages = 5
	cfg.Format = "json"

	out, err := runApp(t, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var doc jsonResults
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(doc.Items) != 30 || doc.Page != 3 || doc.HasMore || doc.ServedBy != "openlibrary" {
		t.Fatalf("unexpected result: items=%d page=%d hasMore=%v servedBy=%s", len(doc.Items), doc.Page, doc.HasMore, doc.ServedBy)
	}
	if doc.Items[29].Book.Title != "Dune 29" {
		t.Fatalf("pages out of order: last=%s", doc.Items[29].Book.Title)
	}
}

func TestRun_TextOutputRendersEachPageOnce(t *testing.T) {
	ol := openLibraryStub(t, 100)
	cfg := testConfig(t)
	cfg.OpenLibraryURL = ol.URL
	cfg.PageSize = 10
	cfg.Pages = 2

	out, err := runApp(t, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "from Open Library (100 total)") {
		t.Fatalf("missing header:\n%s", out)
	}
	if strings.Count(out, "Dune 0") != 1 {
		t.Fatalf("first item rendered more than once:\n%s", out)
	}
	if !strings.Contains(out, "Dune 19") || strings.Contains(out, "Dune 20") {
		t.Fatalf("expected exactly two pages:\n%s", out)
	}
	if !strings.Contains(out, "showing 20 of 100") {
		t.Fatalf("missing footer:\n%s", out)
	}
}

func TestRun_FallbackAdvisory(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenLibraryURL = failingStub(t).URL
	cfg.GoogleBooksURL = googleStub(t, 10).URL
	cfg.Format = "json"

	out, err := runApp(t, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var doc jsonResults
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Items) != 10 || doc.ServedBy != "googlebooks" || !strings.Contains(doc.Advisory, "Google Books") {
		t.Fatalf("expected fallback to Google Books, got %+v", doc)
	}
}

func TestRun_BothProvidersFail(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenLibraryURL = failingStub(t).URL
	cfg.GoogleBooksURL = failingStub(t).URL

	_, err := runApp(t, cfg)
	var se *session.SearchError
	if !errors.As(err, &se) {
		t.Fatalf("expected SearchError, got %v", err)
	}
}

func TestRun_NoResults(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenLibraryURL = openLibraryStub(t, 0).URL

	out, err := runApp(t, cfg)
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
	if !strings.Contains(out, "nothing found") {
		t.Fatalf("expected empty-state line:\n%s", out)
	}
}

const library = `[
 {"kind":"book","book":{"id":"b1","title":"Les Misérables","authors":["Victor Hugo"],"publishedYear":1862,"description":"Paris, 1832."}},
 {"kind":"quote","quote":{"id":"q1","content":"Fear is the mind-killer.","author":"Frank Herbert","likes":5}},
 {"kind":"quote","quote":{"id":"q2","content":"Tout est bien.","author":"Voltaire","likes":9}}
]`

func writeLibrary(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "library.json")
	if err := os.WriteFile(p, []byte(library), 0o644); err != nil {
		t.Fatalf("write library: %v", err)
	}
	return p
}

func TestRun_DetailsFromFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = "file"
	cfg.FilePath = writeLibrary(t)
	cfg.DetailsID = "b1"

	out, err := runApp(t, cfg)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	for _, want := range []string{"Les Misérables", "by Victor Hugo", "published 1862", "Paris, 1832."} {
		if !strings.Contains(out, want) {
			t.Fatalf("details output missing %q:\n%s", want, out)
		}
	}

	cfg.DetailsID = "nope"
	if _, err := runApp(t, cfg); !errors.Is(err, ErrNoResults) {
		t.Fatalf("unknown id should map to ErrNoResults, got %v", err)
	}
}

func TestRun_TrendingFromFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kind = catalog.KindQuote
	cfg.Provider = "file"
	cfg.FilePath = writeLibrary(t)
	cfg.Trending = true

	out, err := runApp(t, cfg)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	v, f := strings.Index(out, "Tout est bien."), strings.Index(out, "Fear is the mind-killer.")
	if v < 0 || f < 0 || v > f {
		t.Fatalf("expected quotes ordered by likes:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(cfg.CacheDir, "snapshots")); err != nil {
		t.Fatalf("trending snapshot not cached: %v", err)
	}
}

func TestNew_TrendingHonorsCacheMaxAge(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheMaxAge = 6 * time.Hour
	a, err := New(context.Background(), cfg, io.Discard)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if a.trending.MaxAge != 6*time.Hour {
		t.Fatalf("trending snapshots must expire with the cache, got %v", a.trending.MaxAge)
	}
}

func TestNew_ServesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenLibraryURL = openLibraryStub(t, 3).URL
	cfg.MetricsAddr = "127.0.0.1:0"

	a, err := New(context.Background(), cfg, io.Discard)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	resp, err := http.Get("http://" + a.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "quoteshelf_provider_requests_total") {
		t.Fatalf("unexpected metrics response %d:\n%s", resp.StatusCode, body)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = "quotable"
	if _, err := New(context.Background(), cfg, io.Discard); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
