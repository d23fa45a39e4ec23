// Package trending serves the trending quotes list with an offline fallback:
// every successful fetch is persisted, and the last snapshot is served when
// the source is unreachable.
package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/quoteshelf/internal/cache"
	"github.com/hyperifyio/quoteshelf/internal/catalog"
	"github.com/hyperifyio/quoteshelf/internal/metrics"
	"github.com/hyperifyio/quoteshelf/internal/search"
)

// DefaultLimit is the number of quotes in a snapshot.
const DefaultLimit = 12

// ErrUnavailable is returned when the source fails and nothing is cached.
var ErrUnavailable = errors.New("trending quotes unavailable")

// Snapshot is one trending list. Stale is set when it came from the cache
// because the source failed.
type Snapshot struct {
	Quotes  []catalog.Quote `json:"quotes"`
	Source  string          `json:"source"`
	SavedAt time.Time       `json:"savedAt"`
	Stale   bool            `json:"-"`
}

// Service fetches trending quotes from Source.
type Service struct {
	Source search.Provider
	Cache  *cache.BlobCache // optional
	Limit  int
	// MaxAge bounds how old a cached snapshot may be; zero means no bound.
	MaxAge time.Duration
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) key() string {
	return cache.KeyFrom("trending", s.Source.Name())
}

// Get returns the live list, or the cached one marked stale when the source
// fails. The source error is wrapped into ErrUnavailable only when no usable
// snapshot exists.
func (s *Service) Get(ctx context.Context) (Snapshot, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	snap, err := s.fetch(ctx, limit)
	if err == nil {
		metrics.TrendingServedTotal.WithLabelValues("live").Inc()
		s.save(ctx, snap)
		return snap, nil
	}
	log.Warn().Err(err).Str("source", s.Source.Name()).Msg("trending source failed; trying cache")
	cached, ok := s.load(ctx)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	metrics.TrendingServedTotal.WithLabelValues("cache").Inc()
	cached.Stale = true
	return cached, nil
}

func (s *Service) fetch(ctx context.Context, limit int) (Snapshot, error) {
	page, err := s.Source.Search(ctx, catalog.Params{
		Filter:   catalog.Filter{Quick: catalog.QuickPopular},
		Page:     1,
		PageSize: limit,
	})
	if err != nil {
		return Snapshot{}, err
	}
	quotes := make([]catalog.Quote, 0, len(page.Items))
	for _, it := range page.Items {
		if it.Kind == catalog.KindQuote && it.Quote != nil {
			quotes = append(quotes, *it.Quote)
		}
	}
	if len(quotes) == 0 {
		return Snapshot{}, errors.New("source returned no quotes")
	}
	// sources without likes keep their own order
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Likes > quotes[j].Likes })
	if len(quotes) > limit {
		quotes = quotes[:limit]
	}
	return Snapshot{Quotes: quotes, Source: s.Source.Name(), SavedAt: s.now().UTC()}, nil
}

func (s *Service) save(ctx context.Context, snap Snapshot) {
	if s.Cache == nil {
		return
	}
	b, err := json.Marshal(snap)
	if err == nil {
		err = s.Cache.Save(ctx, s.key(), b)
	}
	if err != nil {
		log.Debug().Err(err).Msg("trending snapshot not cached")
	}
}

func (s *Service) load(ctx context.Context) (Snapshot, bool) {
	if s.Cache == nil {
		return Snapshot{}, false
	}
	b, ok, err := s.Cache.Get(ctx, s.key())
	if err != nil || !ok {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil || len(snap.Quotes) == 0 {
		return Snapshot{}, false
	}
	if s.MaxAge > 0 && s.now().Sub(snap.SavedAt) > s.MaxAge {
		return Snapshot{}, false
	}
	return snap, true
}
