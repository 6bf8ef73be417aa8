// Package enrich backfills missing author metadata on content records from a
// read-through profile cache, fetching missing profiles in de-duplicated
// batches.
package enrich

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/mkohlmann/cadence/internal/cache"
	"github.com/mkohlmann/cadence/internal/logger"
	"github.com/mkohlmann/cadence/internal/remote"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Opaque user ids are fixed-length lowercase hex. Anything else in the raw
// author slot is a display name and must never be treated as fetchable.
var objectIDPattern = regexp.MustCompile(`^[a-f0-9]{24}$`)

const profileKeyPrefix = "profile:"

// ProfileFetcher is the slice of the remote client the enrichment service needs
type ProfileFetcher interface {
	GetProfile(ctx context.Context, userID string) (*remote.Profile, error)
}

// Service resolves author references against a TTL cache, falling back to the
// backend with per-id in-flight de-duplication.
type Service struct {
	store      *cache.Store
	fetcher    ProfileFetcher
	group      singleflight.Group
	ttl        time.Duration
	background sync.WaitGroup
}

// NewService creates an enrichment service. ttl bounds how long fetched
// profiles stay usable for synchronous enrichment.
func NewService(store *cache.Store, fetcher ProfileFetcher, ttl time.Duration) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		ttl:     ttl,
	}
}

// IsFetchableID reports whether raw looks like an opaque user id rather than
// a display name.
func IsFetchableID(raw string) bool {
	return objectIDPattern.MatchString(raw)
}

// Profile returns the cached profile for userID, or nil on a miss. Never
// touches the network.
func (s *Service) Profile(userID string) *remote.Profile {
	value, ok := s.store.Get(profileKeyPrefix + userID)
	if !ok {
		return nil
	}
	profile, ok := value.(*remote.Profile)
	if !ok {
		return nil
	}
	return profile
}

// FetchProfile returns the profile for userID, hitting the backend on a cache
// miss. Concurrent calls for the same id share one request. An unknown id
// resolves to (nil, nil) rather than an error.
func (s *Service) FetchProfile(ctx context.Context, userID string) (*remote.Profile, error) {
	if profile := s.Profile(userID); profile != nil {
		return profile, nil
	}

	value, err, _ := s.group.Do(userID, func() (any, error) {
		profile, err := s.fetcher.GetProfile(ctx, userID)
		if err != nil {
			if errors.Is(err, remote.ErrProfileNotFound) {
				return (*remote.Profile)(nil), nil
			}
			return nil, err
		}
		s.store.Set(profileKeyPrefix+userID, profile, s.ttl)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*remote.Profile), nil
}

// EnrichOne resolves the author of a single content record from cache,
// scheduling a background fetch when the profile is missing so a later pass
// (or the next render) finds it cached. Best-effort: the record is returned
// unchanged when nothing can be resolved synchronously.
func (s *Service) EnrichOne(content *remote.Content) {
	userID, ok := s.missingAuthorID(content)
	if !ok {
		return
	}

	if profile := s.Profile(userID); profile != nil {
		content.Author.Profile = profile
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if _, err := s.FetchProfile(context.Background(), userID); err != nil {
			logger.Log.Debug().
				Err(err).
				Str("user_id", userID).
				Msg("Background profile fetch failed")
		}
	}()
}

// EnrichBatch resolves authors across a whole batch: every distinct missing
// id is fetched exactly once, concurrently, and then all items are enriched
// synchronously. Fetch failures degrade to unenriched items, never errors.
func (s *Service) EnrichBatch(ctx context.Context, items []remote.Content) []remote.Content {
	missing := lo.Uniq(lo.FilterMap(items, func(item remote.Content, _ int) (string, bool) {
		return s.missingAuthorID(&item)
	}))

	if len(missing) > 0 {
		group, groupCtx := errgroup.WithContext(ctx)
		for _, userID := range missing {
			group.Go(func() error {
				if _, err := s.FetchProfile(groupCtx, userID); err != nil {
					logger.Log.Warn().
						Err(err).
						Str("user_id", userID).
						Msg("Batch profile fetch failed")
				}
				// Individual failures must not abort the rest of the batch.
				return nil
			})
		}
		_ = group.Wait()
	}

	for i := range items {
		if userID, ok := s.missingAuthorID(&items[i]); ok {
			if profile := s.Profile(userID); profile != nil {
				items[i].Author.Profile = profile
			}
		}
	}
	return items
}

// Wait blocks until all background fetches scheduled by EnrichOne have
// settled. Used by tests and shutdown.
func (s *Service) Wait() {
	s.background.Wait()
}

// missingAuthorID returns the fetchable user id of an unresolved author
// reference. Resolved authors and plain display names yield ("", false).
func (s *Service) missingAuthorID(content *remote.Content) (string, bool) {
	if content.Author.IsResolved() {
		return "", false
	}
	if !IsFetchableID(content.Author.Raw) {
		return "", false
	}
	return content.Author.Raw, true
}
