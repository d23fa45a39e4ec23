package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/quoteshelf/internal/aggregate"
	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/metrics"
	"github.com/hyperifyio/quoteshelf/internal/search"
)

// ErrUnknownProvider is returned when selecting a provider the store was not
// built with.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrSuperseded is returned by Search and LoadMore when a newer search or an
// invalidating setter replaced the request while it was in flight. The
// response was discarded and state reflects the newer request.
var ErrSuperseded = errors.New("request superseded by a newer search")

// SearchError is stored and returned when no provider could answer a search.
type SearchError struct {
	Query    string
	Primary  error
	Fallback error // nil when no alternate provider was tried
}

func (e *SearchError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("search %q failed: %v", e.Query, e.Primary)
	}
	return fmt.Sprintf("search %q failed: %v; fallback: %v", e.Query, e.Primary, e.Fallback)
}

func (e *SearchError) Unwrap() []error {
	if e.Fallback == nil {
		return []error{e.Primary}
	}
	return []error{e.Primary, e.Fallback}
}

// State is an immutable snapshot of a search session.
type State struct {
	Kind        catalog.Kind
	Query       catalog.Query
	Provider    string // selected provider
	ServedBy    string // provider whose results are in Items
	Items       []catalog.Item
	Total       int
	Page        int
	HasMore     bool
	Loading     bool
	LoadingMore bool
	Advisory    string
	Err         error
	// Stale is set when query, filters or provider changed since the last search.
	Stale bool
	// Version increases with every state change.
	Version uint64
}

// Options configures a Store.
type Options struct {
	// Kind is the single item kind the result list may hold.
	Kind catalog.Kind
	// Providers in fallback order; the alternate of a provider is the next
	// one in this list, wrapping around.
	Providers []search.Provider
	// Active is the initially selected provider name; defaults to the first.
	Active   string
	PageSize int
	// DisableFallback turns off the retry against the alternate provider.
	DisableFallback bool
}

// Store holds the state of one search session. Setters only record intent;
// Search and LoadMore perform network calls outside the lock. Every search
// and every invalidating setter starts a new generation, and responses that
// belong to an older generation are dropped.
type Store struct {
	opts      Options
	providers map[string]search.Provider
	order     []string

	mu       sync.Mutex
	state    State
	list     aggregate.List
	gen      uint64
	searched catalog.Query // snapshot the current list was fetched for
	subs     map[int]func(State)
	nextSub  int

	notifyMu  sync.Mutex
	delivered uint64
}

// New validates opts and returns a store with default query state.
func New(opts Options) (*Store, error) {
	if opts.Kind != catalog.KindBook && opts.Kind != catalog.KindQuote {
		return nil, fmt.Errorf("session: unsupported item kind %q", opts.Kind)
	}
	if len(opts.Providers) == 0 {
		return nil, errors.New("session: at least one provider is required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = catalog.DefaultPageSize
	}
	s := &Store{
		opts:      opts,
		providers: make(map[string]search.Provider, len(opts.Providers)),
		subs:      map[int]func(State){},
	}
	for _, p := range opts.Providers {
		if p == nil {
			return nil, errors.New("session: nil provider")
		}
		if _, dup := s.providers[p.Name()]; dup {
			return nil, fmt.Errorf("session: duplicate provider %q", p.Name())
		}
		s.providers[p.Name()] = p
		s.order = append(s.order, p.Name())
	}
	active := opts.Active
	if active == "" {
		active = s.order[0]
	}
	if _, ok := s.providers[active]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, active)
	}
	s.state = State{
		Kind:     opts.Kind,
		Query:    catalog.Query{Filter: catalog.Filter{Quick: catalog.QuickAll}},
		Provider: active,
	}
	return s, nil
}

// Providers lists provider names in fallback order.
func (s *Store) Providers() []string {
	return append([]string(nil), s.order...)
}

// Label returns the display label of a provider, or the name when unknown.
func (s *Store) Label(name string) string {
	if p, ok := s.providers[name]; ok {
		return p.Label()
	}
	return name
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive every new snapshot and returns a function
// that removes it. Snapshots are delivered in Version order; older snapshots
// racing a newer one are skipped. fn must not call Search or LoadMore
// synchronously.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetQuery records new query text. Accumulated results stay visible until
// the next Search.
func (s *Store) SetQuery(text string) {
	s.mu.Lock()
	if s.state.Query.Text == text {
		s.mu.Unlock()
		return
	}
	s.state.Query.Text = text
	s.state.Stale = true
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// SetFilters replaces the filter set. A real change clears accumulated
// results and pagination and invalidates in-flight requests.
func (s *Store) SetFilters(f catalog.Filter) {
	if f.Quick == "" {
		f.Quick = catalog.QuickAll
	}
	s.mu.Lock()
	if s.state.Query.Filter.Equal(f) {
		s.mu.Unlock()
		return
	}
	s.state.Query.Filter = f.Clone()
	s.state.Stale = true
	s.invalidateLocked()
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// ResetFilters is SetFilters with the default filter set.
func (s *Store) ResetFilters() { s.SetFilters(catalog.Filter{}) }

// SetProvider selects the active provider. Switching clears accumulated
// results and pagination and invalidates in-flight requests.
func (s *Store) SetProvider(name string) error {
	if _, ok := s.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	s.mu.Lock()
	if s.state.Provider == name {
		s.mu.Unlock()
		return nil
	}
	s.state.Provider = name
	s.state.Stale = true
	s.invalidateLocked()
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// Search fetches the first page for the current query, filters and provider.
// If the active provider fails, the alternate is tried once and an advisory
// is set on success. When both fail the list is empty and a *SearchError is
// stored and returned.
func (s *Store) Search(ctx context.Context) error {
	s.mu.Lock()
	s.invalidateLocked()
	gen := s.gen
	q := s.state.Query.Clone()
	active := s.state.Provider
	s.searched = q
	s.state.Loading = true
	s.state.Stale = false
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	params := catalog.Params{Query: q.Text, Filter: q.Filter, Page: 1, PageSize: s.opts.PageSize}
	logger := log.With().Str("query", q.Text).Uint64("generation", gen).Logger()
	logger.Debug().Str("provider", active).Msg("search started")

	page, served, advisory, err := s.fetchWithFallback(ctx, active, params)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		metrics.SupersededResponsesTotal.Inc()
		logger.Debug().Msg("discarding superseded search response")
		return ErrSuperseded
	}
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		snap = s.changedLocked()
		s.mu.Unlock()
		s.notify(snap)
		logger.Warn().Err(err).Msg("search failed on all providers")
		return err
	}
	s.state.ServedBy = served
	s.state.Advisory = advisory
	s.acceptPageLocked(page, 1)
	snap = s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
	logger.Debug().Str("provider", served).Int("items", len(snap.Items)).Int("total", snap.Total).Msg("search completed")
	return nil
}

// LoadMore appends the next page from the provider that served the current
// list. It is a no-op while any fetch is in flight or when there is nothing
// more to load. On failure accumulated results are kept and the error is
// stored so the call can be retried.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.HasMore || s.state.Loading || s.state.LoadingMore {
		s.mu.Unlock()
		return nil
	}
	p, ok := s.providers[s.state.ServedBy]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	next := s.state.Page + 1
	q := s.searched
	s.state.LoadingMore = true
	s.state.Err = nil
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	logger := log.With().Str("provider", p.Name()).Str("query", q.Text).Int("page", next).Logger()
	logger.Debug().Msg("loading next page")
	page, err := s.call(ctx, p, catalog.Params{Query: q.Text, Filter: q.Filter, Page: next, PageSize: s.opts.PageSize})

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		metrics.SupersededResponsesTotal.Inc()
		logger.Debug().Msg("discarding superseded page")
		return ErrSuperseded
	}
	s.state.LoadingMore = false
	if err != nil {
		s.state.Err = err
		snap = s.changedLocked()
		s.mu.Unlock()
		s.notify(snap)
		logger.Warn().Err(err).Msg("load more failed")
		return err
	}
	s.acceptPageLocked(page, next)
	snap = s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// Details fetches the full record for id from the provider that served the
// current list, or the selected provider before any search.
func (s *Store) Details(ctx context.Context, id string) (catalog.Item, error) {
	s.mu.Lock()
	name := s.state.ServedBy
	if name == "" {
		name = s.state.Provider
	}
	s.mu.Unlock()
	p := s.providers[name]
	start := time.Now()
	it, err := safeDetails(ctx, p, id)
	metrics.ObserveProvider(p.Name(), "details", start, err)
	if err != nil {
		return catalog.Item{}, asProviderError(p.Name(), "details", err)
	}
	if it.Kind != s.opts.Kind {
		return catalog.Item{}, &search.ProviderError{Provider: p.Name(), Op: "details", Err: fmt.Errorf("got %s item in a %s session", it.Kind, s.opts.Kind)}
	}
	return it, nil
}

func (s *Store) fetchWithFallback(ctx context.Context, active string, params catalog.Params) (catalog.Page, string, string, error) {
	primary := s.providers[active]
	page, err := s.call(ctx, primary, params)
	if err == nil {
		return page, primary.Name(), "", nil
	}
	alt := s.alternate(active)
	if alt == nil || s.opts.DisableFallback {
		return catalog.Page{}, "", "", &SearchError{Query: params.Query, Primary: err}
	}
	log.Warn().Err(err).Str("provider", primary.Name()).Str("fallback", alt.Name()).Msg("provider failed; trying alternate")
	page, ferr := s.call(ctx, alt, params)
	if ferr != nil {
		return catalog.Page{}, "", "", &SearchError{Query: params.Query, Primary: err, Fallback: ferr}
	}
	metrics.FallbacksTotal.WithLabelValues(primary.Name(), alt.Name()).Inc()
	advisory := fmt.Sprintf("%s is unavailable, showing results from %s instead", primary.Label(), alt.Label())
	return page, alt.Name(), advisory, nil
}

func (s *Store) alternate(name string) search.Provider {
	if len(s.order) < 2 {
		return nil
	}
	for i, n := range s.order {
		if n == name {
			return s.providers[s.order[(i+1)%len(s.order)]]
		}
	}
	return nil
}

// call runs one provider search and converts every failure, including a
// panic inside the provider, into a *search.ProviderError.
func (s *Store) call(ctx context.Context, p search.Provider, params catalog.Params) (page catalog.Page, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
		metrics.ObserveProvider(p.Name(), "search", start, err)
		if err != nil {
			err = asProviderError(p.Name(), "search", err)
		}
	}()
	return p.Search(ctx, params)
}

func safeDetails(ctx context.Context, p search.Provider, id string) (it catalog.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return p.Details(ctx, id)
}

func asProviderError(provider, op string, err error) error {
	var pe *search.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &search.ProviderError{Provider: provider, Op: op, Err: err}
}

// acceptPageLocked appends page items of the session kind and recomputes
// pagination. hasMore turns false once the list reaches the reported total.
func (s *Store) acceptPageLocked(page catalog.Page, pageNo int) {
	accepted := make([]catalog.Item, 0, len(page.Items))
	mismatched := 0
	for _, it := range page.Items {
		if it.Kind != s.opts.Kind || it.Validate() != nil {
			mismatched++
			continue
		}
		accepted = append(accepted, it)
	}
	if mismatched > 0 {
		log.Warn().Int("dropped", mismatched).Str("kind", string(s.opts.Kind)).Msg("dropped items of another kind")
	}
	if dup := s.list.Append(accepted); dup > 0 {
		log.Debug().Int("duplicates", dup).Int("page", pageNo).Msg("dropped duplicate items")
	}
	s.state.Page = pageNo
	s.state.Total = page.Total
	s.state.HasMore = page.HasMore && (page.Total <= 0 || s.list.Len() < page.Total)
}

// invalidateLocked starts a new generation and clears results and pagination.
func (s *Store) invalidateLocked() {
	s.gen++
	s.list.Reset()
	s.state.ServedBy = ""
	s.state.Total = 0
	s.state.Page = 0
	s.state.HasMore = false
	s.state.Loading = false
	s.state.LoadingMore = false
	s.state.Advisory = ""
	s.state.Err = nil
}

func (s *Store) changedLocked() State {
	s.state.Version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	snap := s.state
	snap.Query = s.state.Query.Clone()
	snap.Items = s.list.Items()
	return snap
}

func (s *Store) notify(snap State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version
	s.mu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
