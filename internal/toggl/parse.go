package toggl

import (
	"fmt"
	"time"

	"github.com/Tiliavir/billy/internal/model"
)

// Outcome tags a ParseResult.
type Outcome int

const (
	// Parsed means Entry holds a usable entry.
	Parsed Outcome = iota
	// Skipped means the raw entry belongs to no configured project.
	Skipped
)

// ParseResult is the outcome of parsing one raw entry.
type ParseResult struct {
	Outcome Outcome
	Entry   model.TimeEntry
	Reason  string
}

// ProjectResolver maps source project ids to configured projects.
type ProjectResolver interface {
	ProjectByID(id int64) (model.Project, bool)
}

// Parse converts a raw entry. Entries of unconfigured projects are Skipped;
// malformed timestamps are errors.
func Parse(raw RawEntry, projects ProjectResolver) (ParseResult, error) {
	if raw.ProjectID == nil {
		return ParseResult{Outcome: Skipped, Reason: "no project"}, nil
	}
	project, ok := projects.ProjectByID(*raw.ProjectID)
	if !ok {
		return ParseResult{Outcome: Skipped, Reason: fmt.Sprintf("unsupported project id %d", *raw.ProjectID)}, nil
	}

	start, err := time.Parse(time.RFC3339, raw.Start)
	if err != nil {
		return ParseResult{}, fmt.Errorf("entry %d: parsing start: %w", raw.ID, err)
	}
	entry := model.TimeEntry{
		ID:          raw.ID,
		Project:     project,
		Description: raw.Description,
		Start:       start,
	}
	if raw.Stop != nil && *raw.Stop != "" && raw.Duration >= 0 {
		stop, err := time.Parse(time.RFC3339, *raw.Stop)
		if err != nil {
			return ParseResult{}, fmt.Errorf("entry %d: parsing stop: %w", raw.ID, err)
		}
		entry.Stop = &stop
	}
	return ParseResult{Outcome: Parsed, Entry: entry}, nil
}
