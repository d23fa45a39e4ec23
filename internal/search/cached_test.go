package search

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

type countingProvider struct {
	details int
	fail    bool
}

func (c *countingProvider) Name() string  { return "count" }
func (c *countingProvider) Label() string { return "Count" }

func (c *countingProvider) Search(context.Context, catalog.Params) (catalog.Page, error) {
	return catalog.Page{}, nil
}

func (c *countingProvider) Details(_ context.Context, id string) (catalog.Item, error) {
	c.details++
	if c.fail {
		return catalog.Item{}, errors.New("boom")
	}
	return catalog.BookItem(catalog.Book{ID: id}), nil
}

func TestWithDetailsCache_HitsAndEviction(t *testing.T) {
	inner := &countingProvider{}
	p := WithDetailsCache(inner, 2)
	if p.Name() != "count" {
		t.Fatalf("decorator must keep the provider identity")
	}
	ctx := context.Background()
	for _, id := range []string{"a", "a", "b", "a"} {
		if _, err := p.Details(ctx, id); err != nil {
			t.Fatalf("details %s: %v", id, err)
		}
	}
	if inner.details != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", inner.details)
	}
	_, _ = p.Details(ctx, "c") // evicts b
	_, _ = p.Details(ctx, "b")
	if inner.details != 4 {
		t.Fatalf("expected b to be refetched after eviction, got %d calls", inner.details)
	}
	if n := p.(*CachedDetails).Len(); n != 2 {
		t.Fatalf("cache len = %d", n)
	}
}

func TestWithDetailsCache_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{fail: true}
	p := WithDetailsCache(inner, 4)
	_, _ = p.Details(context.Background(), "x")
	_, _ = p.Details(context.Background(), "x")
	if inner.details != 2 {
		t.Fatalf("errors must not be cached, got %d calls", inner.details)
	}
	if WithDetailsCache(inner, 0) != Provider(inner) {
		t.Fatalf("size 0 should disable caching")
	}
}
