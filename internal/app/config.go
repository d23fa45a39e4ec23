package app

import (
	"time"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Session
	Kind            catalog.Kind
	Provider        string // openlibrary, googlebooks, quotable or file
	DisableFallback bool
	Query           string
	Filter          catalog.Filter
	PageSize        int
	// Pages is how many pages to scroll through, including the first.
	Pages int

	// Actions other than searching
	DetailsID string
	Trending  bool

	// Providers
	OpenLibraryURL string
	GoogleBooksURL string
	GoogleBooksKey string
	QuotableURL    string
	FilePath       string
	UserAgent      string

	// Transport
	RateLimit        float64 // requests per second; 0 disables
	Timeout          time.Duration
	DetailsCacheSize int

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheMaxBytes    int64
	CacheMaxCount    int

	// Output
	Format      string // text or json
	MetricsAddr string
	Verbose     bool
}

const (
	defaultProvider  = "openlibrary"
	defaultUserAgent = "quoteshelf/1.0 (+https://github.com/hyperifyio/quoteshelf)"
	defaultCacheDir  = ".quoteshelf-cache"
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 5
)

// DefaultConfig returns the values the CLI starts from before file, env and
// flags are applied.
func DefaultConfig() Config {
	return Config{
		Kind:             catalog.KindBook,
		Provider:         defaultProvider,
		Filter:           catalog.Filter{Quick: catalog.QuickAll},
		PageSize:         catalog.DefaultPageSize,
		Pages:            1,
		UserAgent:        defaultUserAgent,
		RateLimit:        defaultRateLimit,
		Timeout:          defaultTimeout,
		DetailsCacheSize: 128,
		CacheDir:         defaultCacheDir,
		Format:           "text",
	}
}
