package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/fetch"
)

// Provider is a book (or quote) data source. Search returns one page of
// results for the given parameters; Details returns a single full record.
// Implementations encode their own upstream query dialect and never fall
// back to another provider. Remote providers answer a query with neither
// text nor genres with an empty page and no network call.
type Provider interface {
	Name() string
	Label() string
	Search(ctx context.Context, p catalog.Params) (catalog.Page, error)
	Details(ctx context.Context, id string) (catalog.Item, error)
}

// JSONGetter is the transport used by HTTP providers.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// ErrNotFound is returned by Details when the id is unknown upstream.
var ErrNotFound = errors.New("not found")

// ProviderError wraps any failure returned by a provider operation.
type ProviderError struct {
	Provider string
	Op       string // "search" or "details"
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusCode returns the upstream HTTP status when the failure was a
// non-2xx response, or 0.
func (e *ProviderError) StatusCode() int {
	var se *fetch.StatusError
	if errors.As(e.Err, &se) {
		return se.Code
	}
	return 0
}

func wrap(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *fetch.StatusError
	if op == "details" && errors.As(err, &se) && se.Code == http.StatusNotFound {
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func defaultClient() JSONGetter {
	return &fetch.Client{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		UserAgent:         "quoteshelf/1.0",
		MaxAttempts:       2,
		PerRequestTimeout: 10 * time.Second,
	}
}

// GenreSlug turns a provider category label into a genre identifier:
// "Science Fiction" -> "science-fiction".
func GenreSlug(label string) string {
	return strings.ReplaceAll(catalog.Fold(label), " ", "-")
}

// genreLabel is the inverse used when building upstream subject queries.
func genreLabel(slug string) string {
	return strings.TrimSpace(strings.ReplaceAll(slug, "-", " "))
}

// parseYear reads the leading year of dates such as "1965", "1965-08" or
// "August 1965".
func parseYear(s string) int {
	s = strings.TrimSpace(s)
	for i := 0; i+4 <= len(s); i++ {
		if (i > 0 && isDigit(s[i-1])) || (i+4 < len(s) && isDigit(s[i+4])) {
			continue
		}
		if n, err := strconv.Atoi(s[i : i+4]); err == nil && n > 0 && isDigit(s[i]) {
			return n
		}
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func hasMore(offset, got, total int) bool {
	return got > 0 && offset+got < total
}

func firstN(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
