package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/quoteshelf/internal/cache"
	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/fetch"
	"github.com/hyperifyio/quoteshelf/internal/metrics"
	"github.com/hyperifyio/quoteshelf/internal/scroll"
	"github.com/hyperifyio/quoteshelf/internal/search"
	"github.com/hyperifyio/quoteshelf/internal/session"
	"github.com/hyperifyio/quoteshelf/internal/trending"
)

// ErrNoResults is returned when a search, details lookup or trending request
// ends with nothing to show. The CLI maps it to exit code 2.
var ErrNoResults = errors.New("no results")

// viewportHeight is the number of output lines treated as visible while
// scrolling through pages.
const viewportHeight = 20

type App struct {
	cfg       Config
	out       io.Writer
	logger    zerolog.Logger
	client    *fetch.Client
	store     *session.Store
	trending  *trending.Service
	metrics   *http.Server
	metricsOn string
	unsub     func()
}

func New(ctx context.Context, cfg Config, out io.Writer) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		out:    out,
		logger: log.With().Str("session", uuid.NewString()).Logger(),
	}

	var httpCache *cache.HTTPCache
	var blobs *cache.BlobCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				return nil, fmt.Errorf("clear cache: %w", err)
			}
		}
		httpDir, blobDir := a.cachePaths()
		if cfg.CacheMaxAge > 0 {
			// Best effort; a failing purge must not block searching.
			n, _ := cache.PurgeHTTPCacheByAge(httpDir, cfg.CacheMaxAge)
			m, _ := cache.PurgeBlobCacheByAge(blobDir, cfg.CacheMaxAge)
			a.logger.Debug().Int("http", n).Int("snapshots", m).Msg("purged expired cache entries")
		}
		httpCache = &cache.HTTPCache{Dir: httpDir, StrictPerms: cfg.CacheStrictPerms}
		blobs = &cache.BlobCache{Dir: blobDir, StrictPerms: cfg.CacheStrictPerms}
	}

	a.client = &fetch.Client{
		HTTPClient:        newProviderHTTPClient(cfg.Timeout),
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       3,
		PerRequestTimeout: cfg.Timeout,
		Cache:             httpCache,
		MaxConcurrent:     4,
	}
	if cfg.RateLimit > 0 {
		a.client.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	providers := a.providers()
	store, err := session.New(session.Options{
		Kind:            cfg.Kind,
		Providers:       providers,
		Active:          cfg.Provider,
		PageSize:        cfg.PageSize,
		DisableFallback: cfg.DisableFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}
	a.store = store
	a.unsub = store.Subscribe(func(st session.State) {
		a.logger.Debug().
			Uint64("version", st.Version).
			Int("items", len(st.Items)).
			Bool("loading", st.Loading || st.LoadingMore).
			Bool("hasMore", st.HasMore).
			Msg("session state")
	})

	a.trending = &trending.Service{
		Source: a.quoteSource(),
		Cache:  blobs,
		Limit:  trending.DefaultLimit,
		MaxAge: cfg.CacheMaxAge,
	}

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(ctx); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) cachePaths() (httpDir, blobDir string) {
	return filepath.Join(a.cfg.CacheDir, "http"), filepath.Join(a.cfg.CacheDir, "snapshots")
}

// providers returns the providers of the configured kind in fallback order.
// The local file provider joins the rotation only when a path is set.
func (a *App) providers() []search.Provider {
	var list []search.Provider
	switch a.cfg.Kind {
	case catalog.KindQuote:
		list = append(list, &search.Quotable{BaseURL: a.cfg.QuotableURL, Client: a.client})
	default:
		list = append(list,
			&search.OpenLibrary{BaseURL: a.cfg.OpenLibraryURL, Client: a.client},
			&search.GoogleBooks{BaseURL: a.cfg.GoogleBooksURL, APIKey: a.cfg.GoogleBooksKey, Client: a.client},
		)
	}
	if a.cfg.FilePath != "" {
		list = append(list, &search.FileProvider{Path: a.cfg.FilePath, Kind: a.cfg.Kind})
	}
	for i, p := range list {
		list[i] = search.WithDetailsCache(p, a.cfg.DetailsCacheSize)
	}
	return list
}

func (a *App) quoteSource() search.Provider {
	if a.cfg.Provider == "file" && a.cfg.FilePath != "" {
		return &search.FileProvider{Path: a.cfg.FilePath, Kind: catalog.KindQuote}
	}
	return &search.Quotable{BaseURL: a.cfg.QuotableURL, Client: a.client}
}

func (a *App) serveMetrics(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	a.metrics = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	a.metricsOn = ln.Addr().String()
	a.logger.Info().Str("addr", a.metricsOn).Msg("serving metrics")
	return nil
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string {
	return a.metricsOn
}

// Store exposes the search session.
func (a *App) Store() *session.Store { return a.store }

func (a *App) Close() {
	if a.unsub != nil {
		a.unsub()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.cfg.CacheDir != "" && (a.cfg.CacheMaxBytes > 0 || a.cfg.CacheMaxCount > 0) {
		httpDir, _ := a.cachePaths()
		if n, err := cache.EnforceHTTPCacheLimits(httpDir, a.cfg.CacheMaxBytes, a.cfg.CacheMaxCount); err != nil {
			a.logger.Debug().Err(err).Msg("cache limits not enforced")
		} else if n > 0 {
			a.logger.Debug().Int("evicted", n).Msg("evicted http cache entries")
		}
	}
}

// Run performs the configured action: trending, details or search.
func (a *App) Run(ctx context.Context) error {
	switch {
	case a.cfg.Trending:
		return a.runTrending(ctx)
	case a.cfg.DetailsID != "":
		return a.runDetails(ctx)
	default:
		return a.runSearch(ctx)
	}
}

// runSearch runs the first search and then scrolls the rendered list:
// each step attaches a sentinel after the last rendered line and moves the
// viewport to the bottom, and the trigger asks the store for the next page.
func (a *App) runSearch(ctx context.Context) error {
	a.store.SetQuery(a.cfg.Query)
	a.store.SetFilters(a.cfg.Filter)
	if err := a.store.Search(ctx); err != nil {
		return err
	}
	r := newRenderer(a.out, a.cfg.Format)
	st := a.store.State()
	r.header(st, a.store.Label(st.ServedBy))
	shown := r.items(st.Items, 0)

	vp := scroll.NewViewport(viewportHeight)
	var loadErr error
	trigger := scroll.New(func() {
		loadErr = a.store.LoadMore(ctx)
	}, vp.Observer, scroll.Options{Threshold: 1, RootMargin: 2})
	defer trigger.Close()

	for page := 1; page < a.cfg.Pages; page++ {
		st = a.store.State()
		if !st.HasMore {
			break
		}
		trigger.SetEnabled(st.HasMore && !st.LoadingMore)
		end := r.lines
		trigger.Attach(&scroll.Sentinel{Line: end})
		vp.Scroll(end-viewportHeight+1, viewportHeight)
		if loadErr != nil {
			a.logger.Warn().Err(loadErr).Int("page", st.Page+1).Msg("stopped scrolling")
			break
		}
		st = a.store.State()
		shown = r.items(st.Items, shown)
	}

	st = a.store.State()
	r.footer(st)
	if err := r.flush(st); err != nil {
		return err
	}
	if len(st.Items) == 0 {
		return ErrNoResults
	}
	return nil
}

func (a *App) runDetails(ctx context.Context) error {
	it, err := a.store.Details(ctx, a.cfg.DetailsID)
	if errors.Is(err, search.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNoResults, a.cfg.DetailsID)
	}
	if err != nil {
		return err
	}
	r := newRenderer(a.out, a.cfg.Format)
	return r.details(it)
}

func (a *App) runTrending(ctx context.Context) error {
	snap, err := a.trending.Get(ctx)
	if errors.Is(err, trending.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrNoResults, err)
	}
	if err != nil {
		return err
	}
	r := newRenderer(a.out, a.cfg.Format)
	return r.trending(snap)
}
