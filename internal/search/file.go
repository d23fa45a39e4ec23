package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

// FileProvider serves items from a local JSON file for offline use, quote
// collections and tests. The file is an array of tagged items:
//
//	[{"kind":"quote","quote":{"id":"q1","content":"...","author":"..."}},
//	 {"kind":"book","book":{"id":"b1","title":"...","authors":["..."]}}]
type FileProvider struct {
	Path string
	// Kind, when set, restricts results to one item kind.
	Kind catalog.Kind
}

func (f *FileProvider) Name() string  { return "file" }
func (f *FileProvider) Label() string { return "Local library" }

func (f *FileProvider) load() ([]catalog.Item, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("file provider path is empty")
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var raw []catalog.Item
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	out := make([]catalog.Item, 0, len(raw))
	for _, it := range raw {
		if it.Validate() != nil || it.ID() == "" {
			continue
		}
		if f.Kind != "" && it.Kind != f.Kind {
			continue
		}
		switch it.Kind {
		case catalog.KindBook:
			if it.Book.Source == "" {
				it.Book.Source = f.Name()
			}
			it.Book.Normalize()
		case catalog.KindQuote:
			if it.Quote.Source == "" {
				it.Quote.Source = f.Name()
			}
		}
		out = append(out, it)
	}
	return out, nil
}

// Search matches the query against titles, authors, quote text and tags,
// ignoring case and diacritics. An empty query with no genres returns every
// item, which is how quote collections are browsed.
func (f *FileProvider) Search(_ context.Context, p catalog.Params) (catalog.Page, error) {
	p = p.Normalized()
	all, err := f.load()
	if err != nil {
		return catalog.Page{}, wrap(f.Name(), "search", err)
	}
	dates := p.Filter.EffectiveDates()
	matched := make([]catalog.Item, 0, len(all))
	for _, it := range all {
		if matches(it, p.Query, p.Filter.Genres, dates) {
			matched = append(matched, it)
		}
	}
	total := len(matched)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	return catalog.Page{
		Items:   matched[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

func (f *FileProvider) Details(_ context.Context, id string) (catalog.Item, error) {
	all, err := f.load()
	if err != nil {
		return catalog.Item{}, wrap(f.Name(), "details", err)
	}
	for _, it := range all {
		if it.ID() == id {
			return it, nil
		}
	}
	return catalog.Item{}, wrap(f.Name(), "details", ErrNotFound)
}

func matches(it catalog.Item, q string, genres []string, dates catalog.DateRange) bool {
	var fields, tags []string
	year := 0
	switch it.Kind {
	case catalog.KindBook:
		fields = append([]string{it.Book.Title, it.Book.Description}, it.Book.Authors...)
		tags = it.Book.Genres
		year = it.Book.PublishedYear
	case catalog.KindQuote:
		fields = append([]string{it.Quote.Content, it.Quote.Author, it.Quote.Work}, it.Quote.Tags...)
		tags = it.Quote.Tags
	}
	if it.Kind == catalog.KindBook && !dates.Contains(year) {
		return false
	}
	for _, g := range genres {
		if !hasTag(tags, g) {
			return false
		}
	}
	if strings.TrimSpace(q) == "" {
		return true
	}
	for _, s := range fields {
		if catalog.ContainsFold(s, q) {
			return true
		}
	}
	return false
}

func hasTag(tags []string, genre string) bool {
	want := GenreSlug(genre)
	for _, t := range tags {
		if GenreSlug(t) == want {
			return true
		}
	}
	return false
}
