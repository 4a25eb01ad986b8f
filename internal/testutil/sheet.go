// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Op records one mutating call on a FakeSheet.
type Op struct {
	Kind  string // "append" or "delete"
	Tab   string
	Rows  int
	First int
	Last  int
}

// FakeSheet is an in-memory spreadsheet. Row 1 is Tabs[tab][0].
type FakeSheet struct {
	mu   sync.Mutex
	Tabs map[string][][]any
	Ops  []Op
	// FailAppendFrom makes every append from the n-th one (1-based) fail when > 0.
	FailAppendFrom int
	appends         int
}

// NewFakeSheet creates a sheet with the given tabs, each holding a header row.
func NewFakeSheet(tabs ...string) *FakeSheet {
	s := &FakeSheet{Tabs: map[string][][]any{}}
	for _, t := range tabs {
		s.Tabs[t] = [][]any{{"Date", "Description", "Seconds", "Billable", "", "", "", "", "Invoiced"}}
	}
	return s
}

// TabNames lists the tabs.
func (s *FakeSheet) TabNames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.Tabs))
	for n := range s.Tabs {
		names = append(names, n)
	}
	return names, nil
}

func columnIndex(column string) (int, error) {
	idx := 0
	for _, r := range strings.ToUpper(column) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("bad column %q", column)
		}
		idx = idx*26 + int(r-'A') + 1
	}
	return idx - 1, nil
}

// ReadColumn returns the column cells with trailing empty cells dropped,
// like the Sheets API.
func (s *FakeSheet) ReadColumn(_ context.Context, tab, column string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.Tabs[tab]
	if !ok {
		return nil, fmt.Errorf("unknown tab %q", tab)
	}
	col, err := columnIndex(column)
	if err != nil {
		return nil, err
	}
	cells := make([]string, len(rows))
	for i, row := range rows {
		if col < len(row) && row[col] != nil {
			cells[i] = fmt.Sprint(row[col])
		}
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells, nil
}

// AppendRows appends rows at the bottom of the tab.
func (s *FakeSheet) AppendRows(_ context.Context, tab string, rows [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Tabs[tab]; !ok {
		return fmt.Errorf("unknown tab %q", tab)
	}
	s.appends++
	if s.FailAppendFrom > 0 && s.appends >= s.FailAppendFrom {
		return fmt.Errorf("sheets API error 503: backend unavailable")
	}
	for _, r := range rows {
		s.Tabs[tab] = append(s.Tabs[tab], append([]any(nil), r...))
	}
	s.Ops = append(s.Ops, Op{Kind: "append", Tab: tab, Rows: len(rows)})
	return nil
}

// DeleteRows deletes rows first..last, 1-based and inclusive.
func (s *FakeSheet) DeleteRows(_ context.Context, tab string, first, last int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.Tabs[tab]
	if !ok {
		return fmt.Errorf("unknown tab %q", tab)
	}
	if first < 1 || last < first || last > len(rows) {
		return fmt.Errorf("invalid row range %d-%d of %d", first, last, len(rows))
	}
	s.Tabs[tab] = append(rows[:first-1:first-1], rows[last:]...)
	s.Ops = append(s.Ops, Op{Kind: "delete", Tab: tab, First: first, Last: last})
	return nil
}

// Deletes returns the recorded delete operations.
func (s *FakeSheet) Deletes() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Op
	for _, op := range s.Ops {
		if op.Kind == "delete" {
			out = append(out, op)
		}
	}
	return out
}

// Column returns the stringified cells of one column below the header.
func (s *FakeSheet) Column(tab string, col int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, row := range s.Tabs[tab][1:] {
		if col < len(row) {
			out = append(out, fmt.Sprint(row[col]))
		} else {
			out = append(out, "")
		}
	}
	return out
}

// MarkInvoiced writes a mark in column I of rows first..last (1-based).
func (s *FakeSheet) MarkInvoiced(tab string, first, last int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.Tabs[tab]
	for i := first - 1; i < last && i < len(rows); i++ {
		for len(rows[i]) < 9 {
			rows[i] = append(rows[i], "")
		}
		rows[i][8] = "2021-02-01"
	}
}
