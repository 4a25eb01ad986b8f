package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/billy/internal/model"
)

func completed(id int64, desc string, start time.Time, d time.Duration) model.TimeEntry {
	stop := start.Add(d)
	return model.TimeEntry{
		ID:          id,
		Project:     model.Project{ID: 1, Alias: "css"},
		Description: desc,
		Start:       start,
		Stop:        &stop,
	}
}

func TestPrintList(t *testing.T) {
	day := time.Date(2021, 1, 4, 9, 0, 0, 0, time.UTC)
	entries := []model.TimeEntry{
		completed(1, "do foo", day, 90*time.Minute),
		completed(2, "", day.Add(2*time.Hour), 30*time.Minute),
		completed(3, "review", day.Add(24*time.Hour), 45*time.Second),
	}

	var buf bytes.Buffer
	printList(&buf, entries, time.UTC)

	assert.Equal(t, "2021-01-04\n"+
		"09:00–10:30  css  do foo (1h 30m)\n"+
		"11:00–11:30  css (30m)\n"+
		"2021-01-05\n"+
		"09:00–09:00  css  review (45s)\n", buf.String())
}

func TestPrintList_Empty(t *testing.T) {
	var buf bytes.Buffer
	printList(&buf, nil, time.UTC)
	assert.Equal(t, "No entries found.\n", buf.String())
}

func TestParseDateFlag(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	got, err := parseDateFlag("after", "2021-03-01", berlin)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2021, 2, 28, 23, 0, 0, 0, time.UTC)))

	got, err = parseDateFlag("after", "", berlin)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDateFlag("until", "03/01/2021", berlin)
	assert.ErrorContains(t, err, "--until")
}
