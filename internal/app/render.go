package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/extract"
	"github.com/hyperifyio/quoteshelf/internal/session"
	"github.com/hyperifyio/quoteshelf/internal/trending"
)

// renderer writes results either incrementally as styled text, counting
// lines for the scroll viewport, or as one JSON document at flush.
type renderer struct {
	w     io.Writer
	json  bool
	lines int
	err   error

	title lipgloss.Style
	dim   lipgloss.Style
	note  lipgloss.Style
}

func newRenderer(w io.Writer, format string) *renderer {
	re := lipgloss.NewRenderer(w)
	return &renderer{
		w:     w,
		json:  format == "json",
		title: re.NewStyle().Bold(true),
		dim:   re.NewStyle().Faint(true),
		note:  re.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (r *renderer) printf(format string, args ...any) {
	if r.json || r.err != nil {
		return
	}
	s := fmt.Sprintf(format, args...)
	r.lines += strings.Count(s, "\n")
	_, r.err = io.WriteString(r.w, s)
}

func (r *renderer) header(st session.State, servedBy string) {
	q := st.Query.Text
	if q == "" {
		q = "(browse)"
	}
	r.printf("%s\n", r.title.Render(fmt.Sprintf("%s results for %q from %s (%d total)", st.Kind, q, servedBy, st.Total)))
	if st.Advisory != "" {
		r.printf("%s\n", r.note.Render("note: "+st.Advisory))
	}
	r.printf("\n")
}

// items renders items[from:] and returns the new count of rendered items.
func (r *renderer) items(items []catalog.Item, from int) int {
	for i := from; i < len(items); i++ {
		r.item(i+1, items[i])
	}
	return len(items)
}

func (r *renderer) item(n int, it catalog.Item) {
	switch it.Kind {
	case catalog.KindBook:
		b := it.Book
		year := ""
		if b.PublishedYear > 0 {
			year = fmt.Sprintf(" (%d)", b.PublishedYear)
		}
		r.printf("%3d. %s%s  %s\n", n, r.title.Render(b.Title), year, r.dim.Render(fmt.Sprintf("★ %.1f", b.Rating)))
		r.printf("     %s  [%s %s]\n", b.AuthorLine(), b.Source, b.ID)
	case catalog.KindQuote:
		q := it.Quote
		r.printf("%3d. “%s”\n", n, extract.Truncate(q.Content, 200))
		r.printf("     %s  [%s %s]\n", r.dim.Render("— "+q.Author), q.Source, q.ID)
	}
}

func (r *renderer) footer(st session.State) {
	switch {
	case st.Err != nil:
		r.printf("\n%s\n", r.note.Render("could not load more: "+st.Err.Error()))
	case st.HasMore:
		r.printf("\n%s\n", r.dim.Render(fmt.Sprintf("showing %d of %d; more available", len(st.Items), st.Total)))
	case len(st.Items) == 0:
		r.printf("%s\n", r.dim.Render("nothing found"))
	}
}

type jsonResults struct {
	Kind     catalog.Kind   `json:"kind"`
	Query    string         `json:"query"`
	Filter   catalog.Filter `json:"filter"`
	Provider string         `json:"provider"`
	ServedBy string         `json:"servedBy"`
	Advisory string         `json:"advisory,omitempty"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	HasMore  bool           `json:"hasMore"`
	Error    string         `json:"error,omitempty"`
	Items    []catalog.Item `json:"items"`
}

// flush writes the JSON document in json mode and reports any write error.
func (r *renderer) flush(st session.State) error {
	if !r.json {
		return r.err
	}
	doc := jsonResults{
		Kind:     st.Kind,
		Query:    st.Query.Text,
		Filter:   st.Query.Filter,
		Provider: st.Provider,
		ServedBy: st.ServedBy,
		Advisory: st.Advisory,
		Total:    st.Total,
		Page:     st.Page,
		HasMore:  st.HasMore,
		Items:    st.Items,
	}
	if st.Err != nil {
		doc.Error = st.Err.Error()
	}
	return r.encode(doc)
}

func (r *renderer) encode(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *renderer) details(it catalog.Item) error {
	if r.json {
		return r.encode(it)
	}
	switch it.Kind {
	case catalog.KindBook:
		b := it.Book
		r.printf("%s\n", r.title.Render(b.Title))
		r.printf("by %s\n", b.AuthorLine())
		if b.PublishedYear > 0 {
			r.printf("published %d\n", b.PublishedYear)
		}
		r.printf("rating %.1f", b.Rating)
		if b.RatingsCount > 0 {
			r.printf(" (%d ratings)", b.RatingsCount)
		}
		r.printf("\n")
		if b.PageCount > 0 {
			r.printf("%d pages\n", b.PageCount)
		}
		if len(b.Genres) > 0 {
			r.printf("genres: %s\n", strings.Join(b.Genres, ", "))
		}
		if len(b.ISBNs) > 0 {
			r.printf("isbn: %s\n", strings.Join(b.ISBNs, ", "))
		}
		r.printf("cover: %s\n", b.CoverURL)
		if b.InfoURL != "" {
			r.printf("%s\n", r.dim.Render(b.InfoURL))
		}
		if b.Description != "" {
			r.printf("\n%s\n", b.Description)
		}
	case catalog.KindQuote:
		q := it.Quote
		r.printf("“%s”\n", q.Content)
		r.printf("%s\n", r.dim.Render("— "+q.Author))
		if q.Work != "" {
			r.printf("from %s\n", q.Work)
		}
		if len(q.Tags) > 0 {
			r.printf("tags: %s\n", strings.Join(q.Tags, ", "))
		}
	}
	return r.err
}

func (r *renderer) trending(s trending.Snapshot) error {
	if r.json {
		return r.encode(struct {
			trending.Snapshot
			Stale bool `json:"stale"`
		}{s, s.Stale})
	}
	r.printf("%s\n", r.title.Render("Trending quotes"))
	if s.Stale {
		r.printf("%s\n", r.note.Render("offline: showing quotes saved "+s.SavedAt.Format("2006-01-02 15:04 MST")))
	}
	r.printf("\n")
	for i, q := range s.Quotes {
		r.item(i+1, catalog.QuoteItem(q))
	}
	return r.err
}
