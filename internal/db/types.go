package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/recruiting-assistant/internal/types"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

// Run represents a stored workflow run
type Run struct {
	ID            uuid.UUID             `json:"id"`
	Username      string                `json:"username"`
	Title         string                `json:"title"`
	Skills        []string              `json:"skills"`
	State         string                `json:"state"`
	FoundCount    int                   `json:"found_count"`
	SavedCount    int                   `json:"saved_count"`
	TopLevelError string                `json:"top_level_error,omitempty"`
	ErrorKind     string                `json:"error_kind,omitempty"`
	ErrorDetail   string                `json:"error_detail,omitempty"`
	History       []workflow.Transition `json:"history,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
}

// Outcome is one stored save outcome, in the order of the search result.
type Outcome struct {
	RunID    uuid.UUID `json:"run_id"`
	Position int       `json:"position"`
	types.SaveOutcome
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	Username string // exact match
	State    string // terminal state, e.g. "complete"
	Limit    int    // default 50
}

// DefaultListLimit applies when RunFilters.Limit is zero.
const DefaultListLimit = 50
