package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/quoteshelf/internal/app"
	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/session"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := parseArgs(os.Args[1:], flag.ExitOnError)
	if err != nil {
		log.Error().Err(err).Msg("configuration failed")
		os.Exit(1)
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, cfg, os.Stdout)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	}
	os.Exit(exitCode(err))
}

// exitCode maps run errors onto the CLI policy: 2 when there is nothing to
// show (including both providers failing), 1 for configuration and other
// failures.
func exitCode(err error) int {
	var se *session.SearchError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrNoResults), errors.As(err, &se):
		return 2
	default:
		return 1
	}
}

func run(ctx context.Context, cfg app.Config, out io.Writer) error {
	a, err := app.New(ctx, cfg, out)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()
	return a.Run(ctx)
}

// parseArgs builds the configuration with precedence flags > env > config
// file > defaults. Dotenv files are loaded into the environment first.
// Remaining positional arguments form the query when -q is not given.
func parseArgs(args []string, onError flag.ErrorHandling) (app.Config, error) {
	fs := flag.NewFlagSet("quoteshelf", onError)
	var (
		configPath  string
		envFiles    string
		kind        string
		provider    string
		query       string
		quick       string
		genres      string
		fromYear    int
		toYear      int
		pageSize    int
		pages       int
		details     string
		trendingOn  bool
		format      string
		filePath    string
		olURL       string
		gbURL       string
		gbKey       string
		quotableURL string
		userAgent   string
		rateLimit   float64
		timeout     time.Duration
		noFallback  bool
		cacheDir    string
		cacheMaxAge time.Duration
		cacheClear  bool
		cacheStrict bool
		cacheBytes  int64
		cacheCount  int
		metricsAddr string
		verbose     bool
	)
	def := app.DefaultConfig()
	fs.StringVar(&configPath, "config", os.Getenv("QS_CONFIG"), "Path to YAML, JSON or TOML config file")
	fs.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load before reading env")
	fs.StringVar(&kind, "kind", string(def.Kind), "Item kind: book or quote")
	fs.StringVar(&provider, "provider", def.Provider, "Active provider: openlibrary, googlebooks, quotable or file")
	fs.StringVar(&query, "q", "", "Search text (defaults to the positional arguments)")
	fs.StringVar(&quick, "filter", string(catalog.QuickAll), "Quick filter: all, popular, new, classic or top-rated")
	fs.StringVar(&genres, "genres", "", "Comma-separated genre identifiers, e.g. science-fiction,fantasy")
	fs.IntVar(&fromYear, "from", 0, "Earliest publication year (0 disables)")
	fs.IntVar(&toYear, "to", 0, "Latest publication year (0 disables)")
	fs.IntVar(&pageSize, "page-size", def.PageSize, "Results per page")
	fs.IntVar(&pages, "pages", def.Pages, "Pages to scroll through, including the first")
	fs.StringVar(&details, "details", "", "Show the full record for this id instead of searching")
	fs.BoolVar(&trendingOn, "trending", false, "Show trending quotes (served from cache when offline)")
	fs.StringVar(&format, "format", def.Format, "Output format: text or json")
	fs.StringVar(&filePath, "file", "", "Local JSON library for the file provider")
	fs.StringVar(&olURL, "openlibrary.url", "", "Open Library base URL")
	fs.StringVar(&gbURL, "googlebooks.url", "", "Google Books API base URL")
	fs.StringVar(&gbKey, "googlebooks.key", "", "Google Books API key (optional)")
	fs.StringVar(&quotableURL, "quotable.url", "", "Quotable API base URL")
	fs.StringVar(&userAgent, "ua", def.UserAgent, "User-Agent for provider requests")
	fs.Float64Var(&rateLimit, "rate", def.RateLimit, "Provider requests per second (0 disables)")
	fs.DurationVar(&timeout, "timeout", def.Timeout, "Per-request timeout")
	fs.BoolVar(&noFallback, "no-fallback", false, "Do not retry a failed search against the alternate provider")
	fs.StringVar(&cacheDir, "cache.dir", def.CacheDir, "Cache directory path (empty disables caching)")
	fs.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Max age for cache entries before purge (e.g. 24h); 0 disables")
	fs.BoolVar(&cacheClear, "cache.clear", false, "Clear cache directory before run")
	fs.BoolVar(&cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.Int64Var(&cacheBytes, "cache.maxBytes", 0, "Evict least recently used HTTP cache entries above this size; 0 disables")
	fs.IntVar(&cacheCount, "cache.maxCount", 0, "Evict least recently used HTTP cache entries above this count; 0 disables")
	fs.StringVar(&metricsAddr, "metrics.addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return app.Config{}, err
	}

	if err := app.LoadEnvFiles(splitList(envFiles)...); err != nil {
		return app.Config{}, err
	}
	cfg := def
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("config file: %w", err)
		}
		if err := app.ApplyFileConfig(&cfg, fc); err != nil {
			return app.Config{}, fmt.Errorf("config file: %w", err)
		}
	}
	app.ApplyEnvOverrides(&cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kind":
			cfg.Kind = catalog.Kind(strings.ToLower(kind))
		case "provider":
			cfg.Provider = provider
		case "page-size":
			cfg.PageSize = pageSize
		case "format":
			cfg.Format = format
		case "file":
			cfg.FilePath = filePath
		case "openlibrary.url":
			cfg.OpenLibraryURL = olURL
		case "googlebooks.url":
			cfg.GoogleBooksURL = gbURL
		case "googlebooks.key":
			cfg.GoogleBooksKey = gbKey
		case "quotable.url":
			cfg.QuotableURL = quotableURL
		case "ua":
			cfg.UserAgent = userAgent
		case "rate":
			cfg.RateLimit = rateLimit
		case "timeout":
			cfg.Timeout = timeout
		case "no-fallback":
			cfg.DisableFallback = noFallback
		case "cache.dir":
			cfg.CacheDir = cacheDir
		case "cache.maxAge":
			cfg.CacheMaxAge = cacheMaxAge
		case "cache.clear":
			cfg.CacheClear = cacheClear
		case "cache.strictPerms":
			cfg.CacheStrictPerms = cacheStrict
		case "cache.maxBytes":
			cfg.CacheMaxBytes = cacheBytes
		case "cache.maxCount":
			cfg.CacheMaxCount = cacheCount
		case "metrics.addr":
			cfg.MetricsAddr = metricsAddr
		case "v":
			cfg.Verbose = verbose
		}
	})

	if cfg.Kind == catalog.KindQuote && cfg.Provider == def.Provider {
		cfg.Provider = "quotable"
	}

	// Per-invocation settings never come from files or env.
	cfg.Query = strings.TrimSpace(query)
	if cfg.Query == "" {
		cfg.Query = strings.TrimSpace(strings.Join(fs.Args(), " "))
	}
	q, err := catalog.ParseQuickFilter(quick)
	if err != nil {
		return app.Config{}, err
	}
	cfg.Filter = catalog.Filter{Quick: q, Genres: splitList(genres), Dates: catalog.DateRange{From: fromYear, To: toYear}}
	cfg.Pages = pages
	cfg.DetailsID = strings.TrimSpace(details)
	cfg.Trending = trendingOn
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
