package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/extract"
)

const (
	openLibraryBase   = "https://openlibrary.org"
	openLibraryCovers = "https://covers.openlibrary.org"
	olSearchFields    = "key,title,author_name,first_publish_year,cover_i,subject,ratings_average,ratings_count,isbn,number_of_pages_median"
)

// OpenLibrary implements Provider against the Open Library search and works APIs.
type OpenLibrary struct {
	BaseURL   string // defaults to https://openlibrary.org
	CoversURL string // defaults to https://covers.openlibrary.org
	Client    JSONGetter
}

func (o *OpenLibrary) Name() string  { return "openlibrary" }
func (o *OpenLibrary) Label() string { return "Open Library" }

func (o *OpenLibrary) base() string {
	if o.BaseURL != "" {
		return strings.TrimRight(o.BaseURL, "/")
	}
	return openLibraryBase
}

func (o *OpenLibrary) client() JSONGetter {
	if o.Client != nil {
		return o.Client
	}
	return defaultClient()
}

// Search translates p into Open Library's q dialect: genres become
// subject:"..." clauses and the date range a first_publish_year range.
func (o *OpenLibrary) Search(ctx context.Context, p catalog.Params) (catalog.Page, error) {
	p = p.Normalized()
	q := o.buildQuery(p)
	if q == "" {
		return catalog.Page{}, nil
	}
	v := url.Values{}
	v.Set("q", q)
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("limit", strconv.Itoa(p.PageSize))
	v.Set("fields", olSearchFields)
	if s := olSort(p.Filter.Quick); s != "" {
		v.Set("sort", s)
	}
	var resp olSearchResponse
	if err := o.client().GetJSON(ctx, o.base()+"/search.json?"+v.Encode(), &resp); err != nil {
		return catalog.Page{}, wrap(o.Name(), "search", err)
	}
	items := make([]catalog.Item, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		id := strings.TrimPrefix(d.Key, "/works/")
		if id == "" {
			continue
		}
		b := catalog.Book{
			ID:            id,
			Title:         d.Title,
			Authors:       d.AuthorName,
			CoverURL:      o.coverURL(d.CoverI),
			PublishedYear: d.FirstPublishYear,
			Genres:        slugs(firstN(d.Subject, 5)),
			Rating:        d.RatingsAverage,
			RatingsCount:  d.RatingsCount,
			PageCount:     d.NumberOfPagesMedian,
			ISBNs:         firstN(d.ISBN, 3),
			Source:        o.Name(),
			InfoURL:       o.base() + d.Key,
		}
		b.Normalize()
		items = append(items, catalog.BookItem(b))
	}
	return catalog.Page{
		Items:   items,
		Total:   resp.NumFound,
		HasMore: hasMore(p.Offset(), len(resp.Docs), resp.NumFound),
	}, nil
}

// Details fetches a work record and resolves up to three author names.
func (o *OpenLibrary) Details(ctx context.Context, id string) (catalog.Item, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "/works/")
	if id == "" {
		return catalog.Item{}, wrap(o.Name(), "details", ErrNotFound)
	}
	var w olWork
	if err := o.client().GetJSON(ctx, o.base()+"/works/"+url.PathEscape(id)+".json", &w); err != nil {
		return catalog.Item{}, wrap(o.Name(), "details", err)
	}
	b := catalog.Book{
		ID:            id,
		Title:         w.Title,
		Description:   extract.PlainText(string(w.Description)),
		PublishedYear: parseYear(w.FirstPublishDate),
		Genres:        slugs(firstN(w.Subjects, 8)),
		Source:        o.Name(),
		InfoURL:       o.base() + "/works/" + id,
	}
	if len(w.Covers) > 0 {
		b.CoverURL = o.coverURL(w.Covers[0])
	}
	for _, a := range firstN(authorKeys(w.Authors), 3) {
		var au olAuthor
		if err := o.client().GetJSON(ctx, o.base()+a+".json", &au); err != nil {
			continue
		}
		if name := strings.TrimSpace(au.Name); name != "" {
			b.Authors = append(b.Authors, name)
		}
	}
	b.Normalize()
	return catalog.BookItem(b), nil
}

func (o *OpenLibrary) buildQuery(p catalog.Params) string {
	parts := make([]string, 0, 2+len(p.Filter.Genres))
	if p.Query != "" {
		parts = append(parts, p.Query)
	}
	for _, g := range p.Filter.Genres {
		if l := genreLabel(g); l != "" {
			parts = append(parts, fmt.Sprintf("subject:%q", l))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if d := p.Filter.EffectiveDates(); !d.IsZero() {
		parts = append(parts, fmt.Sprintf("first_publish_year:[%s TO %s]", bound(d.From), bound(d.To)))
	}
	return strings.Join(parts, " ")
}

func (o *OpenLibrary) coverURL(coverID int) string {
	if coverID <= 0 {
		return ""
	}
	base := openLibraryCovers
	if o.CoversURL != "" {
		base = strings.TrimRight(o.CoversURL, "/")
	}
	return fmt.Sprintf("%s/b/id/%d-M.jpg", base, coverID)
}

func olSort(q catalog.QuickFilter) string {
	switch q {
	case catalog.QuickNew:
		return "new"
	case catalog.QuickTopRated:
		return "rating"
	case catalog.QuickPopular:
		return "editions"
	case catalog.QuickClassic:
		return "old"
	}
	return ""
}

func bound(year int) string {
	if year == 0 {
		return "*"
	}
	return strconv.Itoa(year)
}

func slugs(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := map[string]struct{}{}
	for _, l := range labels {
		s := GenreSlug(l)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func authorKeys(refs []olAuthorRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.Author.Key != "" {
			out = append(out, r.Author.Key)
		}
	}
	return out
}

type olSearchResponse struct {
	NumFound int `json:"numFound"`
	Start    int `json:"start"`
	Docs     []struct {
		Key                 string   `json:"key"`
		Title               string   `json:"title"`
		AuthorName          []string `json:"author_name"`
		FirstPublishYear    int      `json:"first_publish_year"`
		CoverI              int      `json:"cover_i"`
		Subject             []string `json:"subject"`
		RatingsAverage      float64  `json:"ratings_average"`
		RatingsCount        int      `json:"ratings_count"`
		ISBN                []string `json:"isbn"`
		NumberOfPagesMedian int      `json:"number_of_pages_median"`
	} `json:"docs"`
}

type olWork struct {
	Key              string        `json:"key"`
	Title            string        `json:"title"`
	Description      olText        `json:"description"`
	Covers           []int         `json:"covers"`
	Subjects         []string      `json:"subjects"`
	FirstPublishDate string        `json:"first_publish_date"`
	Authors          []olAuthorRef `json:"authors"`
}

type olAuthorRef struct {
	Author struct {
		Key string `json:"key"`
	} `json:"author"`
}

type olAuthor struct {
	Name string `json:"name"`
}

// olText accepts both "text" and {"type": "/type/text", "value": "text"}.
type olText string

func (t *olText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = olText(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*t = olText(obj.Value)
	return nil
}
