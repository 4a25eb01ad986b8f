package toggl

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/Tiliavir/billy/internal/model"
)

// Fetcher retrieves raw entries for a range.
type Fetcher interface {
	FetchEntries(ctx context.Context, r model.TimeRange) ([]RawEntry, error)
}

// EntryCache is the part of the entry cache the source feeds.
type EntryCache interface {
	ResolveResumePoint(ctx context.Context, requested *model.TimeRange) (*model.TimeRange, []model.TimeEntry, error)
	Append(ctx context.Context, entries []model.TimeEntry) (int, error)
}

// Result holds the entries of a fetch and its counters.
type Result struct {
	// Entries are the replayed cached entries followed by the fresh ones,
	// ordered by start.
	Entries  []model.TimeEntry
	Cached   int
	Fetched  int
	Skipped  int
	Ongoing  int
	Appended int
}

// Source fetches entries incrementally, using the cache as a watermark.
type Source struct {
	fetcher  Fetcher
	projects ProjectResolver
	log      zerolog.Logger
}

// NewSource creates a Source.
func NewSource(fetcher Fetcher, projects ProjectResolver, log zerolog.Logger) *Source {
	return &Source{fetcher: fetcher, projects: projects, log: log}
}

// Entries returns every entry in requested: what the cache already holds is
// replayed, the remainder is fetched and the completed part of it appended to
// the cache. Entries of unconfigured projects are dropped.
func (s *Source) Entries(ctx context.Context, c EntryCache, requested *model.TimeRange) (Result, error) {
	var res Result

	next, cached, err := c.ResolveResumePoint(ctx, requested)
	if err != nil {
		return res, fmt.Errorf("resolving resume point: %w", err)
	}
	if next == nil {
		return res, errors.New("no range to fetch: the cache is empty and no start date was given")
	}
	res.Cached = len(cached)
	s.log.Debug().Int("cached", len(cached)).Time("after", next.After).Msg("resuming fetch")

	raws, err := s.fetcher.FetchEntries(ctx, *next)
	if err != nil {
		return res, fmt.Errorf("fetching entries: %w", err)
	}

	fresh := make([]model.TimeEntry, 0, len(raws))
	for _, raw := range raws {
		parsed, err := Parse(raw, s.projects)
		if err != nil {
			return res, err
		}
		if parsed.Outcome == Skipped {
			s.log.Debug().Int64("entry_id", raw.ID).Str("reason", parsed.Reason).Msg("skipping entry")
			res.Skipped++
			continue
		}
		fresh = append(fresh, parsed.Entry)
	}
	// The API does not promise start order; the cache requires it.
	slices.SortStableFunc(fresh, func(a, b model.TimeEntry) int {
		if d := a.Start.Compare(b.Start); d != 0 {
			return d
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	res.Fetched = len(fresh)

	// Cache only what precedes the first running entry so the watermark never
	// passes it; it is fetched again once completed.
	completed := fresh
	for i, e := range fresh {
		if e.Ongoing() {
			res.Ongoing++
			if res.Ongoing == 1 {
				completed = fresh[:i]
			}
		}
	}
	res.Appended, err = c.Append(ctx, completed)
	if err != nil {
		return res, fmt.Errorf("caching entries: %w", err)
	}

	res.Entries = append(cached, fresh...)
	return res, nil
}
