package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHTTPCache_SaveLoad(t *testing.T) {
	c := &HTTPCache{Dir: t.TempDir()}
	ctx := context.Background()
	if err := c.Save(ctx, "https://openlibrary.org/search.json?q=dune", "application/json", `"e1"`, "", []byte(`{"numFound":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(ctx, "https://openlibrary.org/search.json?q=dune")
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.ETag != `"e1"` || meta.SavedAt.IsZero() {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	body, err := c.LoadBody(ctx, "https://openlibrary.org/search.json?q=dune")
	if err != nil || string(body) != `{"numFound":1}` {
		t.Fatalf("load body: %q %v", body, err)
	}
}

func TestHTTPCache_LRUEnforcement_Count(t *testing.T) {
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	urls := []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}
	for i, u := range urls {
		if err := c.Save(context.Background(), u, "application/json", "", "", []byte(fmt.Sprintf("body-%d", i))); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	// touch the first so the second becomes the oldest
	if _, err := c.LoadBody(context.Background(), urls[0]); err != nil {
		t.Fatalf("touch body: %v", err)
	}
	removed, err := EnforceHTTPCacheLimits(dir, 0, 2)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := c.LoadBody(context.Background(), urls[1]); err == nil {
		t.Fatalf("expected least recently used entry evicted")
	}
	if _, err := c.LoadBody(context.Background(), urls[0]); err != nil {
		t.Fatalf("expected touched entry kept: %v", err)
	}
}

func TestHTTPCache_LRUEnforcement_Bytes(t *testing.T) {
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	if err := c.Save(context.Background(), "https://b.com/1", "application/json", "", "", []byte("1111111111")); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := c.Save(context.Background(), "https://b.com/2", "application/json", "", "", []byte("22")); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	removed, err := EnforceHTTPCacheLimits(dir, 5, 0)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected the large oldest entry removed, got %d", removed)
	}
}

func TestBlobCache_SaveGetMiss(t *testing.T) {
	c := &BlobCache{Dir: t.TempDir()}
	key := KeyFrom("trending", "quotes", "10")
	if _, ok, err := c.Get(context.Background(), key); ok || err != nil {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
	if err := c.Save(context.Background(), key, []byte(`[1,2]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := c.Get(context.Background(), key)
	if err != nil || !ok || string(got) != `[1,2]` {
		t.Fatalf("get: %q ok=%v err=%v", got, ok, err)
	}
}

func TestBlobCache_StrictPerms(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	c := &BlobCache{Dir: dir, StrictPerms: true}
	key := KeyFrom("ns", "x")
	if err := c.Save(context.Background(), key, []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	finfo, err := os.Stat(filepath.Join(dir, key+".json"))
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	if got := finfo.Mode() & 0o777; got != 0o600 {
		t.Fatalf("file mode = %o, want 0600", got)
	}
}

func TestPurgeByAge(t *testing.T) {
	dir := t.TempDir()
	blobs := &BlobCache{Dir: dir}
	key := KeyFrom("ns", "old")
	if err := blobs.Save(context.Background(), key, []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, key+".json"), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	n, err := PurgeBlobCacheByAge(dir, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged, got %d err=%v", n, err)
	}
	hc := &HTTPCache{Dir: dir}
	if err := hc.Save(context.Background(), "https://x/1", "application/json", "", "", []byte("x")); err != nil {
		t.Fatalf("save http: %v", err)
	}
	if n, _ := PurgeHTTPCacheByAge(dir, 24*time.Hour); n != 0 {
		t.Fatalf("fresh entry should not be purged, got %d", n)
	}
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://www.googleapis.com/books/v1/volumes?key=abc&q=dune": "https://www.googleapis.com/books/v1/volumes?q=dune",
		"https://openlibrary.org/search.json?q=dune":                 "https://openlibrary.org/search.json?q=dune",
		"https://api.example.com/v1?access_token=t":                  "https://api.example.com/v1",
		"https://api.example.com/plain":                              "https://api.example.com/plain",
	}
	for in, want := range cases {
		if got := RedactURL(in); got != want {
			t.Fatalf("RedactURL(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestHTTPCache_SameEntryWithoutCredentials(t *testing.T) {
	c := &HTTPCache{Dir: t.TempDir()}
	ctx := context.Background()
	if err := c.Save(ctx, "https://example.com/v?q=a&key=one", "application/json", `"e"`, "", []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(ctx, "https://example.com/v?q=a&key=two")
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.URL != "https://example.com/v?q=a" {
		t.Fatalf("stored URL must omit credentials, got %q", meta.URL)
	}
}
