package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/recruiting-assistant/internal/types"
)

// Top-level error strings of a failed run.
const (
	TopLevelValidation   = "Invalid workflow input"
	TopLevelAuthFailed   = "Authentication failed"
	TopLevelSearchFailed = "Candidate search failed"
	TopLevelUnresolvable = "Service resolution failed"
)

// Transition is one entry of a run's state history.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Report is the final record of one run: the workflow result plus the
// bookkeeping needed to audit it.
type Report struct {
	types.WorkflowResult

	RunID      string               `json:"run_id"`
	State      State                `json:"state"`
	Username   string               `json:"username"`
	Criteria   types.SearchCriteria `json:"criteria"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	History    []Transition         `json:"history"`
}

// Failed reports whether the run ended without completing its saga, or
// completed with a top-level error.
func (r *Report) Failed() bool {
	return r.State.Failed() || r.TopLevelError != ""
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedOutcomes returns the outcomes that were not saved, in candidate order.
func (r *Report) FailedOutcomes() []types.SaveOutcome {
	var out []types.SaveOutcome
	for _, o := range r.Outcomes {
		if !o.Saved() {
			out = append(out, o)
		}
	}
	return out
}

// Summary renders a one-paragraph description from the structured counts.
func (r *Report) Summary() string {
	switch r.State {
	case StateValidationFailed:
		return fmt.Sprintf("%s: %s.", r.TopLevelError, r.ErrorDetail)
	case StateAuthFailed, StateSearchFailed:
		return fmt.Sprintf("%s (%s): %s.", r.TopLevelError, r.ErrorKind, r.ErrorDetail)
	case StateSearchEmpty:
		return fmt.Sprintf("No candidates found for %q.", r.Criteria.Title)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d candidate(s) for %q, saved %d.", r.FoundCount, r.Criteria.Title, r.SavedCount)
	if failed := r.FailedOutcomes(); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, o := range failed {
			parts = append(parts, fmt.Sprintf("%s (%s)", o.Name, o.ErrorDetail))
		}
		fmt.Fprintf(&sb, " %d not saved: %s.", len(failed), strings.Join(parts, "; "))
	}
	if r.TopLevelError != "" {
		fmt.Fprintf(&sb, " %s: %s.", r.TopLevelError, r.ErrorDetail)
	}
	return sb.String()
}
