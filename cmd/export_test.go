package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Tiliavir/billy/internal/model"
)

func TestCsvEscape(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"with space", "with space"},
		{"with,comma", `"with,comma"`},
		{`with"quote`, `"with""quote"`},
		{"with\nnewline", "\"with\nnewline\""},
		{"with\rreturn", "\"with\rreturn\""},
		{"", ""},
	}
	for _, tt := range tests {
		got := csvEscape(tt.input)
		if got != tt.want {
			t.Errorf("csvEscape(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPrintCSV(t *testing.T) {
	start := time.Date(2021, 1, 4, 23, 30, 0, 0, time.UTC)
	stop := start.Add(90 * time.Second)
	entries := []model.TimeEntry{{
		ID:          7,
		Project:     model.Project{ID: 1, Alias: "css"},
		Description: "fix, then test",
		Start:       start,
		Stop:        &stop,
	}}
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printCSV(&buf, entries, berlin)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	want := `7,2021-01-05,css,"fix, then test",2021-01-04T23:30:00Z,2021-01-04T23:31:30Z,90`
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}
