package aggregate

import (
	"fmt"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

// List accumulates result pages, dropping items already seen either by key
// or, for books, by folded title, first author and publication year. Providers sometimes
// return the same work under two ids on adjacent pages.
type List struct {
	items []catalog.Item
	seen  map[string]struct{}
}

// Append adds page items not yet present and reports how many were dropped.
func (l *List) Append(page []catalog.Item) int {
	if l.seen == nil {
		l.seen = map[string]struct{}{}
	}
	dropped := 0
	for _, it := range page {
		keys := dedupKeys(it)
		dup := false
		for _, k := range keys {
			if _, ok := l.seen[k]; ok {
				dup = true
				break
			}
		}
		if dup {
			dropped++
			continue
		}
		for _, k := range keys {
			l.seen[k] = struct{}{}
		}
		l.items = append(l.items, it)
	}
	return dropped
}

// Items returns a copy of the accumulated items.
func (l *List) Items() []catalog.Item {
	out := make([]catalog.Item, len(l.items))
	copy(out, l.items)
	return out
}

// Len is the number of accumulated items.
func (l *List) Len() int { return len(l.items) }

// Reset empties the list.
func (l *List) Reset() {
	l.items = nil
	l.seen = nil
}

// MergeAndNormalize merges several result groups into one de-duplicated list.
func MergeAndNormalize(groups [][]catalog.Item) []catalog.Item {
	var l List
	for _, g := range groups {
		l.Append(g)
	}
	return l.Items()
}

func dedupKeys(it catalog.Item) []string {
	keys := []string{it.Key()}
	if it.Kind == catalog.KindBook && it.Book != nil {
		b := it.Book
		// placeholders must not collapse unrelated records
		if b.Title != catalog.Untitled && len(b.Authors) > 0 && b.Authors[0] != catalog.UnknownAuthor {
			keys = append(keys, fmt.Sprintf("book-title:%s|%s|%d", catalog.Fold(b.Title), catalog.Fold(b.Authors[0]), b.PublishedYear))
		}
	}
	if it.Kind == catalog.KindQuote && it.Quote != nil && it.Quote.Content != "" {
		keys = append(keys, "quote-text:"+catalog.Fold(it.Quote.Content))
	}
	return keys
}
