package cache_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/billy/internal/cache"
	"github.com/Tiliavir/billy/internal/model"
)

var (
	base    = time.Date(2021, 1, 1, 9, 0, 0, 0, time.UTC)
	project = model.Project{ID: 1, Alias: "foo", StartDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}
)

// sampleEntries returns n completed entries, each 1004s long and 2004s apart.
func sampleEntries(n int) []model.TimeEntry {
	entries := make([]model.TimeEntry, 0, n)
	start := base
	for i := range n {
		stop := start.Add(1004 * time.Second)
		entries = append(entries, model.TimeEntry{
			ID:          int64(i + 1),
			Project:     project,
			Description: "description",
			Start:       start,
			Stop:        &stop,
		})
		start = stop.Add(1000 * time.Second)
	}
	return entries
}

func openCache(t *testing.T) (*cache.Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := cache.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, path
}

func collect(t *testing.T, c *cache.Cache, r *model.TimeRange) []model.TimeEntry {
	t.Helper()
	var out []model.TimeEntry
	for e, err := range c.Scan(context.Background(), r) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func ids(entries []model.TimeEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestScan_EmptyCache(t *testing.T) {
	c, _ := openCache(t)
	assert.Empty(t, collect(t, c, nil))
}

func TestAppendAndScan_PreservesOrderAndValues(t *testing.T) {
	c, _ := openCache(t)
	ctx := context.Background()
	entries := sampleEntries(5)

	n, err := c.Append(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got := collect(t, c, nil)
	require.Len(t, got, 5)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(got))
	assert.True(t, got[0].Start.Equal(entries[0].Start))
	assert.True(t, got[0].Stop.Equal(*entries[0].Stop))
	assert.Equal(t, "foo", got[0].Project.Alias)
	assert.True(t, got[0].Project.StartDate.Equal(project.StartDate))
}

func TestAppend_SkipsOngoingAndDuplicates(t *testing.T) {
	c, _ := openCache(t)
	ctx := context.Background()
	entries := sampleEntries(3)
	running := model.TimeEntry{ID: 99, Project: project, Description: "running", Start: base.Add(24 * time.Hour)}

	n, err := c.Append(ctx, append(entries[:2:2], running))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-appending an overlapping batch writes only the new entry.
	n, err = c.Append(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []int64{1, 2, 3}, ids(collect(t, c, nil)))
}

func TestAppend_RejectsOutOfOrder(t *testing.T) {
	c, _ := openCache(t)
	ctx := context.Background()
	entries := sampleEntries(3)

	_, err := c.Append(ctx, entries[2:])
	require.NoError(t, err)

	_, err = c.Append(ctx, entries[:1])
	assert.ErrorIs(t, err, cache.ErrOutOfOrder)
	assert.Equal(t, []int64{3}, ids(collect(t, c, nil)))
}

func TestScan_Range(t *testing.T) {
	c, _ := openCache(t)
	entries := sampleEntries(10)
	_, err := c.Append(context.Background(), entries)
	require.NoError(t, err)

	until := *entries[6].Stop
	got := collect(t, c, &model.TimeRange{After: entries[3].Start, Until: &until})
	assert.Equal(t, []int64{4, 5, 6, 7}, ids(got))

	// Open-ended range.
	got = collect(t, c, &model.TimeRange{After: entries[8].Start})
	assert.Equal(t, []int64{9, 10}, ids(got))
}

func TestScan_StopsAtFirstEntryBeyondUntil(t *testing.T) {
	c, _ := openCache(t)
	ctx := context.Background()
	entries := sampleEntries(3)

	// A long entry ending after the bound stops the scan even though a later
	// entry (appended with the same start) would still fit.
	longStop := entries[2].Start.Add(48 * time.Hour)
	long := model.TimeEntry{ID: 10, Project: project, Description: "long", Start: entries[2].Start, Stop: &longStop}
	_, err := c.Append(ctx, []model.TimeEntry{entries[0], entries[1], long, entries[2]})
	require.NoError(t, err)

	until := entries[2].Stop.Add(time.Hour)
	got := collect(t, c, &model.TimeRange{After: base, Until: &until})
	assert.Equal(t, []int64{1, 2}, ids(got))
}

func TestScan_EarlyBreak(t *testing.T) {
	c, _ := openCache(t)
	_, err := c.Append(context.Background(), sampleEntries(5))
	require.NoError(t, err)

	seen := 0
	for _, err := range c.Scan(context.Background(), nil) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)

	// The connection was released.
	assert.Len(t, collect(t, c, nil), 5)
}

func TestResolveResumePoint_EmptyCache(t *testing.T) {
	c, _ := openCache(t)
	requested := &model.TimeRange{After: base}

	next, cached, err := c.ResolveResumePoint(context.Background(), requested)
	require.NoError(t, err)
	assert.Same(t, requested, next)
	assert.Empty(t, cached)

	next, cached, err = c.ResolveResumePoint(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Empty(t, cached)
}

func TestResolveResumePoint_AdvancesOneSecondPastLastStart(t *testing.T) {
	c, _ := openCache(t)
	ctx := context.Background()
	entries := sampleEntries(4)
	_, err := c.Append(ctx, entries)
	require.NoError(t, err)

	until := base.Add(30 * 24 * time.Hour)
	next, cached, err := c.ResolveResumePoint(ctx, &model.TimeRange{After: base, Until: &until})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, ids(cached))
	assert.True(t, next.After.Equal(entries[3].Start.Add(time.Second)))
	require.NotNil(t, next.Until)
	assert.True(t, next.Until.Equal(until))

	// Nothing already cached falls into the resumed range.
	assert.Empty(t, collect(t, c, next))

	// Without a requested range the whole cache is replayed.
	next, cached, err = c.ResolveResumePoint(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, cached, 4)
	assert.Nil(t, next.Until)
}

func TestRemove(t *testing.T) {
	c, path := openCache(t)
	_, err := c.Append(context.Background(), sampleEntries(2))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.NoError(t, cache.Remove(path))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Removing again is fine.
	require.NoError(t, cache.Remove(path))

	reopened, err := cache.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Empty(t, collect(t, reopened, nil))
}

func TestScan_CorruptRow(t *testing.T) {
	c, path := openCache(t)
	_, err := c.Append(context.Background(), sampleEntries(1))
	require.NoError(t, err)

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`INSERT INTO time_entries
		(id, project_id, project_alias, project_start_date, description, start, stop)
		VALUES (2, 1, 'foo', '2021-01-01T00:00:00.000000000Z', 'x', 'yesterday', 'today')`)
	require.NoError(t, err)

	var scanErr error
	count := 0
	for _, err := range c.Scan(context.Background(), nil) {
		if err != nil {
			scanErr = err
			break
		}
		count++
	}
	assert.Equal(t, 1, count)
	assert.ErrorIs(t, scanErr, cache.ErrCorrupt)

	_, _, err = c.ResolveResumePoint(context.Background(), nil)
	assert.ErrorIs(t, err, cache.ErrCorrupt)
}

func TestOpen_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("id,project_id,start\n", 100)), 0o600))

	_, err := cache.Open(path)
	assert.ErrorIs(t, err, cache.ErrCorrupt)
}

func TestStats(t *testing.T) {
	c, _ := openCache(t)
	ctx := context.Background()

	s, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Entries)
	assert.True(t, s.Watermark.IsZero())

	entries := sampleEntries(3)
	_, err = c.Append(ctx, entries)
	require.NoError(t, err)

	s, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Entries)
	assert.True(t, s.First.Equal(entries[0].Start))
	assert.True(t, s.Watermark.Equal(entries[2].Start))
}
