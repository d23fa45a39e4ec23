package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the variant held by an Item.
type Kind string

const (
	KindBook  Kind = "book"
	KindQuote Kind = "quote"
)

// DefaultRating is reported for books whose upstream record carries no rating.
const DefaultRating = 4.0

// PlaceholderCover is used when a provider has no cover image for a book.
const PlaceholderCover = "https://placehold.co/128x192?text=No+Cover"

// Untitled replaces a missing book title.
const Untitled = "Untitled"

// UnknownAuthor replaces a missing author list.
const UnknownAuthor = "Unknown author"

// Book is a normalized book record from any provider.
type Book struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Description   string   `json:"description,omitempty"`
	CoverURL      string   `json:"coverUrl,omitempty"`
	PublishedYear int      `json:"publishedYear,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Rating        float64  `json:"rating,omitempty"`
	RatingsCount  int      `json:"ratingsCount,omitempty"`
	PageCount     int      `json:"pageCount,omitempty"`
	ISBNs         []string `json:"isbns,omitempty"`
	Source        string   `json:"source,omitempty"` // provider name
	InfoURL       string   `json:"infoUrl,omitempty"`
}

// Quote is a single quotation.
type Quote struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Author  string   `json:"author,omitempty"`
	Work    string   `json:"work,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Likes   int      `json:"likes,omitempty"`
	Source  string   `json:"source,omitempty"`
}

// Item is a tagged variant: exactly one of Book or Quote is set, matching Kind.
type Item struct {
	Kind  Kind   `json:"kind"`
	Book  *Book  `json:"book,omitempty"`
	Quote *Quote `json:"quote,omitempty"`
}

// BookItem wraps b as an Item.
func BookItem(b Book) Item { return Item{Kind: KindBook, Book: &b} }

// QuoteItem wraps q as an Item.
func QuoteItem(q Quote) Item { return Item{Kind: KindQuote, Quote: &q} }

// Validate reports whether the tag and payload agree.
func (i Item) Validate() error {
	switch i.Kind {
	case KindBook:
		if i.Book == nil || i.Quote != nil {
			return errors.New("book item must carry only a book payload")
		}
	case KindQuote:
		if i.Quote == nil || i.Book != nil {
			return errors.New("quote item must carry only a quote payload")
		}
	default:
		return fmt.Errorf("unknown item kind %q", i.Kind)
	}
	return nil
}

// ID returns the provider-local identifier of the payload.
func (i Item) ID() string {
	switch {
	case i.Kind == KindBook && i.Book != nil:
		return i.Book.ID
	case i.Kind == KindQuote && i.Quote != nil:
		return i.Quote.ID
	}
	return ""
}

// Title is a display label: the book title or the quote text.
func (i Item) Title() string {
	switch {
	case i.Kind == KindBook && i.Book != nil:
		return i.Book.Title
	case i.Kind == KindQuote && i.Quote != nil:
		return i.Quote.Content
	}
	return ""
}

// Key identifies an item across pages: kind, source and id.
func (i Item) Key() string {
	src := ""
	switch {
	case i.Book != nil:
		src = i.Book.Source
	case i.Quote != nil:
		src = i.Quote.Source
	}
	return string(i.Kind) + ":" + src + ":" + i.ID()
}

// Normalize fills the documented fallbacks for missing upstream fields.
func (b *Book) Normalize() {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		b.Title = Untitled
	}
	if len(b.Authors) == 0 {
		b.Authors = []string{UnknownAuthor}
	}
	if b.Rating <= 0 {
		b.Rating = DefaultRating
	}
	if strings.TrimSpace(b.CoverURL) == "" {
		b.CoverURL = PlaceholderCover
	}
}

// AuthorLine joins authors for display.
func (b Book) AuthorLine() string {
	return strings.Join(b.Authors, ", ")
}
