package search

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/extract"
)

const (
	googleBooksBase   = "https://www.googleapis.com/books/v1"
	googleMaxPageSize = 40
)

// GoogleBooks implements Provider against the Google Books volumes API.
type GoogleBooks struct {
	BaseURL string // defaults to https://www.googleapis.com/books/v1
	APIKey  string // optional
	Client  JSONGetter
}

func (g *GoogleBooks) Name() string  { return "googlebooks" }
func (g *GoogleBooks) Label() string { return "Google Books" }

func (g *GoogleBooks) base() string {
	if g.BaseURL != "" {
		return strings.TrimRight(g.BaseURL, "/")
	}
	return googleBooksBase
}

func (g *GoogleBooks) client() JSONGetter {
	if g.Client != nil {
		return g.Client
	}
	return defaultClient()
}

// Search translates p into the volumes q dialect (genres as subject:
// terms). The API has no date filter, so the range is applied to each page
// after decoding; Total stays the upstream count.
func (g *GoogleBooks) Search(ctx context.Context, p catalog.Params) (catalog.Page, error) {
	p = p.Normalized()
	if p.PageSize > googleMaxPageSize {
		p.PageSize = googleMaxPageSize
	}
	q := g.buildQuery(p)
	if q == "" {
		return catalog.Page{}, nil
	}
	offset := p.Offset()
	v := url.Values{}
	v.Set("q", q)
	v.Set("startIndex", strconv.Itoa(offset))
	v.Set("maxResults", strconv.Itoa(p.PageSize))
	v.Set("printType", "books")
	if p.Filter.Quick == catalog.QuickNew {
		v.Set("orderBy", "newest")
	}
	if g.APIKey != "" {
		v.Set("key", g.APIKey)
	}
	var resp gbVolumes
	if err := g.client().GetJSON(ctx, g.base()+"/volumes?"+v.Encode(), &resp); err != nil {
		return catalog.Page{}, wrap(g.Name(), "search", err)
	}
	dates := p.Filter.EffectiveDates()
	items := make([]catalog.Item, 0, len(resp.Items))
	for _, vol := range resp.Items {
		if vol.ID == "" {
			continue
		}
		b := g.toBook(vol, false)
		if !dates.Contains(b.PublishedYear) {
			continue
		}
		items = append(items, catalog.BookItem(b))
	}
	if p.Filter.Quick == catalog.QuickTopRated {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Book.Rating > items[j].Book.Rating })
	}
	return catalog.Page{
		Items:   items,
		Total:   resp.TotalItems,
		HasMore: hasMore(offset, len(resp.Items), resp.TotalItems),
	}, nil
}

// Details fetches a single volume including its full description.
func (g *GoogleBooks) Details(ctx context.Context, id string) (catalog.Item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return catalog.Item{}, wrap(g.Name(), "details", ErrNotFound)
	}
	u := g.base() + "/volumes/" + url.PathEscape(id)
	if g.APIKey != "" {
		u += "?key=" + url.QueryEscape(g.APIKey)
	}
	var vol gbVolume
	if err := g.client().GetJSON(ctx, u, &vol); err != nil {
		return catalog.Item{}, wrap(g.Name(), "details", err)
	}
	if vol.ID == "" {
		return catalog.Item{}, wrap(g.Name(), "details", ErrNotFound)
	}
	return catalog.BookItem(g.toBook(vol, true)), nil
}

func (g *GoogleBooks) buildQuery(p catalog.Params) string {
	parts := make([]string, 0, 1+len(p.Filter.Genres))
	if p.Query != "" {
		parts = append(parts, p.Query)
	}
	for _, genre := range p.Filter.Genres {
		if l := genreLabel(genre); l != "" {
			if strings.Contains(l, " ") {
				l = `"` + l + `"`
			}
			parts = append(parts, "subject:"+l)
		}
	}
	return strings.Join(parts, " ")
}

func (g *GoogleBooks) toBook(vol gbVolume, full bool) catalog.Book {
	info := vol.VolumeInfo
	title := info.Title
	if info.Subtitle != "" && full {
		title += ": " + info.Subtitle
	}
	desc := extract.PlainText(info.Description)
	if !full {
		desc = extract.Truncate(desc, 280)
	}
	b := catalog.Book{
		ID:            vol.ID,
		Title:         title,
		Authors:       info.Authors,
		Description:   desc,
		CoverURL:      coverFromLinks(info.ImageLinks),
		PublishedYear: parseYear(info.PublishedDate),
		Genres:        categorySlugs(info.Categories),
		Rating:        info.AverageRating,
		RatingsCount:  info.RatingsCount,
		PageCount:     info.PageCount,
		Source:        g.Name(),
		InfoURL:       info.InfoLink,
	}
	for _, ident := range info.IndustryIdentifiers {
		if strings.HasPrefix(ident.Type, "ISBN") && ident.Identifier != "" {
			b.ISBNs = append(b.ISBNs, ident.Identifier)
		}
	}
	b.Normalize()
	return b
}

// coverFromLinks prefers the larger thumbnail and upgrades to https.
func coverFromLinks(l gbImageLinks) string {
	u := l.Thumbnail
	if u == "" {
		u = l.SmallThumbnail
	}
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// categorySlugs splits "Fiction / Science Fiction / General" into slugs,
// dropping the catch-all "general".
func categorySlugs(cats []string) []string {
	labels := make([]string, 0, len(cats)*2)
	for _, c := range cats {
		labels = append(labels, strings.Split(c, "/")...)
	}
	out := slugs(labels)
	kept := out[:0]
	for _, s := range out {
		if s != "general" {
			kept = append(kept, s)
		}
	}
	return kept
}

type gbVolumes struct {
	TotalItems int        `json:"totalItems"`
	Items      []gbVolume `json:"items"`
}

type gbVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string       `json:"title"`
		Subtitle            string       `json:"subtitle"`
		Authors             []string     `json:"authors"`
		PublishedDate       string       `json:"publishedDate"`
		Description         string       `json:"description"`
		Categories          []string     `json:"categories"`
		AverageRating       float64      `json:"averageRating"`
		RatingsCount        int          `json:"ratingsCount"`
		PageCount           int          `json:"pageCount"`
		ImageLinks          gbImageLinks `json:"imageLinks"`
		InfoLink            string       `json:"infoLink"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
	} `json:"volumeInfo"`
}

type gbImageLinks struct {
	SmallThumbnail string `json:"smallThumbnail"`
	Thumbnail      string `json:"thumbnail"`
}
