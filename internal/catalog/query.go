package catalog

import (
	"fmt"
	"slices"
	"strings"
)

// QuickFilter is the one-tap refinement offered next to the search box.
type QuickFilter string

const (
	QuickAll      QuickFilter = "all"
	QuickPopular  QuickFilter = "popular"
	QuickNew      QuickFilter = "new"
	QuickClassic  QuickFilter = "classic"
	QuickTopRated QuickFilter = "top-rated"
)

// ClassicBeforeYear is the upper publication year bound implied by QuickClassic.
const ClassicBeforeYear = 1950

// DefaultPageSize is the page size used when Params.PageSize is unset.
const DefaultPageSize = 24

// ParseQuickFilter accepts the textual form used by flags and config files.
func ParseQuickFilter(s string) (QuickFilter, error) {
	switch q := QuickFilter(strings.ToLower(strings.TrimSpace(s))); q {
	case "":
		return QuickAll, nil
	case QuickAll, QuickPopular, QuickNew, QuickClassic, QuickTopRated:
		return q, nil
	default:
		return QuickAll, fmt.Errorf("unknown quick filter %q", s)
	}
}

// DateRange bounds publication year; zero means unbounded on that side.
type DateRange struct {
	From int `json:"from,omitempty" yaml:"from"`
	To   int `json:"to,omitempty" yaml:"to"`
}

// IsZero reports whether no bound is set.
func (d DateRange) IsZero() bool { return d.From == 0 && d.To == 0 }

// Contains reports whether year falls inside the range. Unknown years (0)
// only match an empty range.
func (d DateRange) Contains(year int) bool {
	if d.IsZero() {
		return true
	}
	if year == 0 {
		return false
	}
	if d.From != 0 && year < d.From {
		return false
	}
	if d.To != 0 && year > d.To {
		return false
	}
	return true
}

// Filter groups the active refinements.
type Filter struct {
	Quick  QuickFilter `json:"quick,omitempty" yaml:"quick"`
	Genres []string    `json:"genres,omitempty" yaml:"genres"`
	Dates  DateRange   `json:"dates,omitempty" yaml:"dates"`
}

// Clone copies f so later mutations of the source do not leak into it.
func (f Filter) Clone() Filter {
	f.Genres = slices.Clone(f.Genres)
	return f
}

// Equal compares filters treating the empty quick filter as QuickAll.
func (f Filter) Equal(o Filter) bool {
	qa, qb := f.Quick, o.Quick
	if qa == "" {
		qa = QuickAll
	}
	if qb == "" {
		qb = QuickAll
	}
	return qa == qb && f.Dates == o.Dates && slices.Equal(f.Genres, o.Genres)
}

// EffectiveDates merges the explicit range with the one implied by the quick filter.
func (f Filter) EffectiveDates() DateRange {
	d := f.Dates
	if f.Quick == QuickClassic && (d.To == 0 || d.To > ClassicBeforeYear) {
		d.To = ClassicBeforeYear
	}
	return d
}

// Query is the user's free text plus the filter set.
type Query struct {
	Text   string `json:"text"`
	Filter Filter `json:"filter"`
}

// Clone returns an independent snapshot of q.
func (q Query) Clone() Query {
	q.Filter = q.Filter.Clone()
	return q
}

// Params is a provider request for one page of a query.
type Params struct {
	Query    string
	Filter   Filter
	Page     int // 1-based
	PageSize int
}

// Normalized returns p with defaults applied.
func (p Params) Normalized() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	p.Query = strings.TrimSpace(p.Query)
	return p
}

// Offset is the zero-based index of the first item of the page.
func (p Params) Offset() int {
	n := p.Normalized()
	return (n.Page - 1) * n.PageSize
}

// Page is one batch of results plus pagination metadata.
type Page struct {
	Items   []Item
	Total   int
	HasMore bool
}
