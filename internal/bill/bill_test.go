package bill_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/billy/internal/bill"
	"github.com/Tiliavir/billy/internal/config"
	"github.com/Tiliavir/billy/internal/logger"
	"github.com/Tiliavir/billy/internal/model"
	"github.com/Tiliavir/billy/internal/reconcile"
	"github.com/Tiliavir/billy/internal/testutil"
	"github.com/Tiliavir/billy/internal/toggl"
)

// fetcher serves a fixed set of entries, filtered by range like the API.
type fetcher struct {
	entries []toggl.RawEntry
	ranges  []model.TimeRange
}

func (f *fetcher) FetchEntries(_ context.Context, r model.TimeRange) ([]toggl.RawEntry, error) {
	f.ranges = append(f.ranges, r)
	var out []toggl.RawEntry
	for _, e := range f.entries {
		start, err := time.Parse(time.RFC3339, e.Start)
		if err != nil {
			return nil, err
		}
		if start.Before(r.After) || (r.Until != nil && !start.Before(*r.Until)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func entry(id, pid int64, desc, start string, seconds int64) toggl.RawEntry {
	s, _ := time.Parse(time.RFC3339, start)
	stop := s.Add(time.Duration(seconds) * time.Second).Format(time.RFC3339)
	return toggl.RawEntry{ID: id, ProjectID: &pid, Description: desc, Start: start, Stop: &stop, Duration: seconds}
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(config.TokenEnv, "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{
  "projects": [
    {"id": 1, "alias": "css", "start": "2021-01-01"},
    {"id": 2, "alias": "hiru", "start": "2021-01-01"}
  ]
}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.json"),
		[]byte(`{"toggl_api_token": "t", "gsheet_url": "abc"}`), 0o600))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	return cfg
}

type harness struct {
	cfg     *config.Config
	fetcher *fetcher
	sheet   *testutil.FakeSheet
	out     bytes.Buffer
	opened  int
}

func newHarness(t *testing.T, entries ...toggl.RawEntry) *harness {
	cfg := loadConfig(t)
	return &harness{
		cfg:     cfg,
		fetcher: &fetcher{entries: entries},
		sheet:   testutil.NewFakeSheet("css", "hiru"),
	}
}

func (h *harness) run(t *testing.T, opts bill.Options) (bill.Result, error) {
	t.Helper()
	h.out.Reset()
	env := bill.Env{
		Config: h.cfg,
		Source: toggl.NewSource(h.fetcher, h.cfg, logger.Nop()),
		OpenSheet: func(context.Context) (reconcile.Spreadsheet, error) {
			h.opened++
			return h.sheet, nil
		},
		Log: logger.Nop(),
		Out: &h.out,
	}
	return bill.Run(context.Background(), env, opts)
}

var sample = []toggl.RawEntry{
	entry(10, 1, "do foo", "2021-01-04T09:00:00Z", 600),
	entry(11, 1, "do bar", "2021-01-04T10:00:00Z", 120),
	entry(12, 2, "other customer", "2021-01-04T11:00:00Z", 300),
	entry(13, 1, "do foo", "2021-01-04T12:00:00Z", 120),
	entry(14, 1, "review", "2021-01-05T09:00:00Z", 60),
}

func TestRun_FirstSync(t *testing.T) {
	h := newHarness(t, sample...)

	res, err := h.run(t, bill.Options{Project: "css"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Entries)
	assert.Equal(t, 5, res.Fetch.Appended)
	require.Len(t, res.Stats, 2)
	assert.Equal(t, []model.EntrySummary{{Description: "do foo", Duration: 720}, {Description: "do bar", Duration: 120}},
		res.Stats[0].Entries)
	assert.Equal(t, reconcile.Result{Appended: 3}, res.Sheet)

	assert.Equal(t, []string{"2021-01-04", "2021-01-04", "2021-01-05"}, h.sheet.Column("css", 0))
	assert.Equal(t, []string{"do foo", "do bar", "review"}, h.sheet.Column("css", 1))
	assert.Empty(t, h.sheet.Column("hiru", 0))

	assert.Contains(t, h.out.String(), "Entries fetched: 4\n")
	assert.Contains(t, h.out.String(), "Stats: 2\n")

	require.Len(t, h.fetcher.ranges, 1)
	assert.True(t, h.fetcher.ranges[0].After.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRun_ResumesFromCacheAndRewritesLastDay(t *testing.T) {
	h := newHarness(t, sample...)
	_, err := h.run(t, bill.Options{Project: "css"})
	require.NoError(t, err)

	h.fetcher.entries = append(h.fetcher.entries, entry(15, 1, "late fix", "2021-01-05T15:00:00Z", 30))
	res, err := h.run(t, bill.Options{Project: "css"})
	require.NoError(t, err)

	require.Len(t, h.fetcher.ranges, 2)
	assert.True(t, h.fetcher.ranges[1].After.Equal(time.Date(2021, 1, 5, 9, 0, 1, 0, time.UTC)))
	assert.Equal(t, 5, res.Fetch.Cached)
	assert.Equal(t, 1, res.Fetch.Fetched)

	assert.Equal(t, reconcile.Result{Appended: 2, Skipped: 1, Deleted: 1}, res.Sheet)
	assert.Equal(t, []string{"do foo", "do bar", "review", "late fix"}, h.sheet.Column("css", 1))
}

func TestRun_InvoicedDaysAreKept(t *testing.T) {
	h := newHarness(t, sample...)
	_, err := h.run(t, bill.Options{Project: "css"})
	require.NoError(t, err)
	h.sheet.MarkInvoiced("css", 2, 4)

	h.fetcher.entries = append(h.fetcher.entries, entry(15, 1, "next day", "2021-01-06T08:00:00Z", 30))
	res, err := h.run(t, bill.Options{Project: "css"})
	require.NoError(t, err)

	assert.Equal(t, reconcile.Result{Appended: 1, Skipped: 2}, res.Sheet)
	assert.Empty(t, h.sheet.Deletes())
	assert.Equal(t, []string{"2021-01-04", "2021-01-04", "2021-01-05", "2021-01-06"}, h.sheet.Column("css", 0))
}

func TestRun_FetchOnlyNeverOpensSheet(t *testing.T) {
	h := newHarness(t, sample...)

	res, err := h.run(t, bill.Options{Project: "css", FetchOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 0, h.opened)
	assert.Len(t, res.Stats, 2)
	assert.Empty(t, h.sheet.Ops)
}

func TestRun_AppendOnly(t *testing.T) {
	h := newHarness(t, sample...)
	_, err := h.run(t, bill.Options{Project: "css"})
	require.NoError(t, err)

	res, err := h.run(t, bill.Options{Project: "css", AppendOnly: true})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Appended: 3}, res.Sheet)
	assert.Len(t, h.sheet.Column("css", 0), 6)
}

func TestRun_CleanCacheRefetchesEverything(t *testing.T) {
	h := newHarness(t, sample...)
	_, err := h.run(t, bill.Options{Project: "css", FetchOnly: true})
	require.NoError(t, err)

	res, err := h.run(t, bill.Options{Project: "css", FetchOnly: true, CleanCache: true})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Fetch.Cached)
	assert.Equal(t, 5, res.Fetch.Fetched)
	assert.Contains(t, h.out.String(), "Deleting cache file... done!")
	assert.True(t, h.fetcher.ranges[1].After.Equal(h.fetcher.ranges[0].After))
}

func TestRun_ExplicitRange(t *testing.T) {
	h := newHarness(t, sample...)
	after := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)

	res, err := h.run(t, bill.Options{Project: "css", After: &after, FetchOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Entries)
	assert.True(t, res.Range.After.Equal(after))
}

func TestRun_UnknownProject(t *testing.T) {
	h := newHarness(t, sample...)

	_, err := h.run(t, bill.Options{Project: "nope"})
	assert.ErrorIs(t, err, config.ErrProjectNotFound)
	assert.Empty(t, h.fetcher.ranges)
}

func TestRun_MissingTab(t *testing.T) {
	h := newHarness(t, sample...)
	delete(h.sheet.Tabs, "css")

	_, err := h.run(t, bill.Options{Project: "css"})
	assert.ErrorIs(t, err, reconcile.ErrTabNotFound)
}
