package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/fetch"
)

func TestOpenLibrary_Search_ParsesDocsAndQueryDialect(t *testing.T) {
	var gotQ, gotPage, gotLimit, gotSort string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQ = r.URL.Query().Get("q")
		gotPage = r.URL.Query().Get("page")
		gotLimit = r.URL.Query().Get("limit")
		gotSort = r.URL.Query().Get("sort")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"numFound": 100,
			"start":    24,
			"docs": []map[string]any{
				{"key": "/works/OL893415W", "title": "Dune", "author_name": []string{"Frank Herbert"}, "first_publish_year": 1965, "cover_i": 11481354, "subject": []string{"Science Fiction", "Fiction", "science fiction"}, "ratings_average": 4.3},
				{"key": "/works/OL1W", "title": "", "author_name": []string{}},
				{"key": "", "title": "no key"},
			},
		})
	}))
	defer srv.Close()

	o := &OpenLibrary{BaseURL: srv.URL, CoversURL: "https://covers.test", Client: &fetch.Client{HTTPClient: srv.Client()}}
	page, err := o.Search(context.Background(), catalog.Params{
		Query:    "dune",
		Filter:   catalog.Filter{Quick: catalog.QuickTopRated, Genres: []string{"science-fiction"}, Dates: catalog.DateRange{From: 1960}},
		Page:     2,
		PageSize: 24,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if gotQ != `dune subject:"science fiction" first_publish_year:[1960 TO *]` {
		t.Fatalf("unexpected q %q", gotQ)
	}
	if gotPage != "2" || gotLimit != "24" || gotSort != "rating" {
		t.Fatalf("unexpected paging params page=%s limit=%s sort=%s", gotPage, gotLimit, gotSort)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items with keys, got %d", len(page.Items))
	}
	if page.Total != 100 || !page.HasMore {
		t.Fatalf("unexpected pagination total=%d hasMore=%v", page.Total, page.HasMore)
	}
	dune := page.Items[0].Book
	if dune.ID != "OL893415W" || dune.CoverURL != "https://covers.test/b/id/11481354-M.jpg" || dune.Source != "openlibrary" {
		t.Fatalf("unexpected book: %+v", dune)
	}
	if strings.Join(dune.Genres, ",") != "science-fiction,fiction" {
		t.Fatalf("unexpected genres %v", dune.Genres)
	}
	blank := page.Items[1].Book
	if blank.Title != "Untitled" || blank.CoverURL != catalog.PlaceholderCover || blank.Rating != catalog.DefaultRating {
		t.Fatalf("fallbacks not applied: %+v", blank)
	}
}

func TestOpenLibrary_Search_EmptyQueryNoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL)
	}))
	defer srv.Close()
	o := &OpenLibrary{BaseURL: srv.URL, Client: &fetch.Client{HTTPClient: srv.Client()}}
	page, err := o.Search(context.Background(), catalog.Params{Query: "  "})
	if err != nil || len(page.Items) != 0 || page.HasMore {
		t.Fatalf("expected empty page, got %+v err=%v", page, err)
	}
}

func TestOpenLibrary_Search_HTTPErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	o := &OpenLibrary{BaseURL: srv.URL, Client: &fetch.Client{HTTPClient: srv.Client(), MaxAttempts: 1}}
	_, err := o.Search(context.Background(), catalog.Params{Query: "dune"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T %v", err, err)
	}
	if pe.Provider != "openlibrary" || pe.Op != "search" || pe.StatusCode() != http.StatusServiceUnavailable {
		t.Fatalf("unexpected provider error: %+v status=%d", pe, pe.StatusCode())
	}
}

func TestOpenLibrary_Details_DescriptionObjectAndAuthors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/works/OL893415W.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":"/works/OL893415W","title":"Dune","description":{"type":"/type/text","value":"Desert <i>planet</i>."},"covers":[42],"subjects":["Science fiction"],"first_publish_date":"August 1965","authors":[{"author":{"key":"/authors/OL79034A"}}]}`))
	})
	mux.HandleFunc("/authors/OL79034A.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Frank Herbert"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := &OpenLibrary{BaseURL: srv.URL, CoversURL: "https://covers.test", Client: &fetch.Client{HTTPClient: srv.Client()}}
	it, err := o.Details(context.Background(), "/works/OL893415W")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	b := it.Book
	if b.Description != "Desert planet." || b.PublishedYear != 1965 || b.AuthorLine() != "Frank Herbert" {
		t.Fatalf("unexpected details: %+v", b)
	}
	if b.CoverURL != "https://covers.test/b/id/42-M.jpg" {
		t.Fatalf("unexpected cover %q", b.CoverURL)
	}
}

func TestOpenLibrary_Details_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	o := &OpenLibrary{BaseURL: srv.URL, Client: &fetch.Client{HTTPClient: srv.Client()}}
	_, err := o.Details(context.Background(), "OL0W")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseYear(t *testing.T) {
	cases := map[string]int{"1965": 1965, "1965-08-01": 1965, "August 1965": 1965, "": 0, "n.d.": 0, "19650": 0}
	for in, want := range cases {
		if got := parseYear(in); got != want {
			t.Fatalf("parseYear(%q) = %d, want %d", in, got, want)
		}
	}
}
