package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/fetch"
)

func TestQuotable_SearchUsesTextEndpoint(t *testing.T) {
	var gotPath, gotQuery, gotPage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotPage = r.URL.Path, r.URL.Query().Get("query"), r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count": 2, "totalCount": 50, "page": 2, "totalPages": 3,
			"results": []map[string]any{
				{"_id": "q1", "content": " Fear is the mind-killer. ", "author": "Frank Herbert", "tags": []string{"Famous Quotes"}},
				{"_id": "q2", "content": "", "author": "x"},
				{"_id": "q3", "content": "Anonymous wisdom"},
			},
		})
	}))
	defer srv.Close()

	q := &Quotable{BaseURL: srv.URL, Client: &fetch.Client{HTTPClient: srv.Client()}}
	page, err := q.Search(context.Background(), catalog.Params{Query: "fear", Page: 2, PageSize: 20})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotPath != "/search/quotes" || gotQuery != "fear" || gotPage != "2" {
		t.Fatalf("unexpected request %s query=%s page=%s", gotPath, gotQuery, gotPage)
	}
	if len(page.Items) != 2 || page.Total != 50 || !page.HasMore {
		t.Fatalf("unexpected page: %+v", page)
	}
	first := page.Items[0].Quote
	if first.Content != "Fear is the mind-killer." || first.Source != "quotable" || first.Tags[0] != "famous-quotes" {
		t.Fatalf("unexpected quote: %+v", first)
	}
	if page.Items[1].Quote.Author != "Unknown" {
		t.Fatalf("missing author should fall back")
	}
}

func TestQuotable_BrowseByTagsAndLastPage(t *testing.T) {
	var gotPath, gotTags, gotSort string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotTags, gotSort = r.URL.Path, r.URL.Query().Get("tags"), r.URL.Query().Get("sortBy")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalCount":1,"page":1,"totalPages":1,"results":[{"_id":"a","content":"c"}]}`))
	}))
	defer srv.Close()

	q := &Quotable{BaseURL: srv.URL, Client: &fetch.Client{HTTPClient: srv.Client()}}
	page, err := q.Search(context.Background(), catalog.Params{Filter: catalog.Filter{Quick: catalog.QuickNew, Genres: []string{"wisdom", "life"}}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotPath != "/quotes" || gotTags != "wisdom,life" || gotSort != "dateAdded" {
		t.Fatalf("unexpected browse request %s tags=%s sort=%s", gotPath, gotTags, gotSort)
	}
	if page.HasMore || len(page.Items) != 1 {
		t.Fatalf("single page must not have more: %+v", page)
	}
}

func TestQuotable_DetailsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"statusCode":404}`, http.StatusNotFound)
	}))
	defer srv.Close()

	q := &Quotable{BaseURL: srv.URL, Client: &fetch.Client{HTTPClient: srv.Client(), MaxAttempts: 1}}
	_, err := q.Details(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
