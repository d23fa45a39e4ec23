package search

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

const quotableBase = "https://api.quotable.io"

// Quotable implements Provider for quotes against the Quotable API. Genres
// map to quote tags. Unlike the book providers an empty query lists quotes,
// which is how trending and browse views are filled. The API exposes no
// popularity signal, so Likes stays zero and QuickPopular keeps the upstream
// order.
type Quotable struct {
	BaseURL string // defaults to https://api.quotable.io
	Client  JSONGetter
}

func (q *Quotable) Name() string  { return "quotable" }
func (q *Quotable) Label() string { return "Quotable" }

func (q *Quotable) base() string {
	if q.BaseURL != "" {
		return strings.TrimRight(q.BaseURL, "/")
	}
	return quotableBase
}

func (q *Quotable) client() JSONGetter {
	if q.Client != nil {
		return q.Client
	}
	return defaultClient()
}

// Search uses /search/quotes for free text and /quotes for tag browsing.
func (q *Quotable) Search(ctx context.Context, p catalog.Params) (catalog.Page, error) {
	p = p.Normalized()
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("limit", strconv.Itoa(p.PageSize))
	path := "/quotes"
	if p.Query != "" {
		path = "/search/quotes"
		v.Set("query", p.Query)
	} else {
		if len(p.Filter.Genres) > 0 {
			v.Set("tags", strings.Join(p.Filter.Genres, ","))
		}
		if p.Filter.Quick == catalog.QuickNew {
			v.Set("sortBy", "dateAdded")
			v.Set("order", "desc")
		}
	}
	var resp qtList
	if err := q.client().GetJSON(ctx, q.base()+path+"?"+v.Encode(), &resp); err != nil {
		return catalog.Page{}, wrap(q.Name(), "search", err)
	}
	items := make([]catalog.Item, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.ID == "" || strings.TrimSpace(r.Content) == "" {
			continue
		}
		items = append(items, catalog.QuoteItem(q.toQuote(r)))
	}
	return catalog.Page{
		Items:   items,
		Total:   resp.TotalCount,
		HasMore: p.Page < resp.TotalPages,
	}, nil
}

func (q *Quotable) Details(ctx context.Context, id string) (catalog.Item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return catalog.Item{}, wrap(q.Name(), "details", ErrNotFound)
	}
	var r qtQuote
	if err := q.client().GetJSON(ctx, q.base()+"/quotes/"+url.PathEscape(id), &r); err != nil {
		return catalog.Item{}, wrap(q.Name(), "details", err)
	}
	if r.ID == "" {
		return catalog.Item{}, wrap(q.Name(), "details", ErrNotFound)
	}
	return catalog.QuoteItem(q.toQuote(r)), nil
}

func (q *Quotable) toQuote(r qtQuote) catalog.Quote {
	author := strings.TrimSpace(r.Author)
	if author == "" {
		author = "Unknown"
	}
	return catalog.Quote{
		ID:      r.ID,
		Content: strings.TrimSpace(r.Content),
		Author:  author,
		Tags:    slugs(r.Tags),
		Source:  q.Name(),
	}
}

type qtList struct {
	Count      int       `json:"count"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
	Results    []qtQuote `json:"results"`
}

type qtQuote struct {
	ID      string   `json:"_id"`
	Content string   `json:"content"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
}
