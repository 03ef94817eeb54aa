// Package types provides the domain entities exchanged between the recruiting
// workflow, its capability adapters and its callers.
package types

import (
	"fmt"
	"time"
)

// Credentials are supplied by the caller and consumed once by the authenticate step.
// The password is write-only: it is never serialized and never formatted.
type Credentials struct {
	Username string `json:"username" validate:"required,notblank"`
	Password string `json:"-" validate:"required,notblank"`
}

// String redacts the password.
func (c Credentials) String() string {
	return fmt.Sprintf("{%s ********}", c.Username)
}

// GoString redacts the password for %#v.
func (c Credentials) GoString() string {
	return fmt.Sprintf("types.Credentials{Username:%q, Password:\"********\"}", c.Username)
}

// Session is the result of a successful login. It belongs to exactly one run.
type Session struct {
	Token      string     `json:"-"`
	ObtainedAt time.Time  `json:"obtained_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"` // informational, read from JWT tokens
	Subject    string     `json:"subject,omitempty"`
}

// SearchCriteria selects candidates by job title and required skills.
type SearchCriteria struct {
	Title  string   `json:"title" validate:"required,notblank"`
	Skills []string `json:"skills" validate:"required,min=1,dive,notblank"`
}

// NewSearchCriteria builds criteria from a title and a comma-separated skill list.
func NewSearchCriteria(title, skills string) SearchCriteria {
	return SearchCriteria{Title: title, Skills: ParseSkills(skills)}.Normalized()
}

// Normalized returns a copy with a trimmed title and normalized skills.
func (c SearchCriteria) Normalized() SearchCriteria {
	return SearchCriteria{
		Title:  trimSpace(c.Title),
		Skills: NormalizeSkills(c.Skills),
	}
}

// Candidate is a search hit. Candidates are read-only once returned; ID is the
// identity used for de-duplication and logging.
type Candidate struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Skills     []string `json:"skills"`
	Experience string   `json:"experience"`
}

// SaveStatus is the outcome of saving one candidate.
type SaveStatus string

const (
	// SaveStatusSaved means the records service acknowledged the candidate.
	SaveStatusSaved SaveStatus = "saved"
	// SaveStatusFailed means the candidate was not saved; see ErrorDetail.
	SaveStatusFailed SaveStatus = "failed"
)

// SaveOutcome records one save attempt.
type SaveOutcome struct {
	CandidateRef string     `json:"candidate_ref"`
	Name         string     `json:"name"`
	Status       SaveStatus `json:"status"`
	ErrorDetail  string     `json:"error_detail,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
}

// Saved reports whether the outcome is a success.
func (o SaveOutcome) Saved() bool {
	return o.Status == SaveStatusSaved
}

// WorkflowResult is the only externally observed artifact of a run.
type WorkflowResult struct {
	FoundCount    int           `json:"found_count"`
	SavedCount    int           `json:"saved_count"`
	Outcomes      []SaveOutcome `json:"outcomes"`
	TopLevelError string        `json:"top_level_error,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	ErrorDetail   string        `json:"error_detail,omitempty"`
}

// CheckInvariants verifies the count relationships every result must satisfy.
func (r *WorkflowResult) CheckInvariants() error {
	saved := 0
	for _, o := range r.Outcomes {
		if o.Saved() {
			saved++
		}
	}
	if saved != r.SavedCount {
		return fmt.Errorf("saved count %d does not match %d saved outcomes", r.SavedCount, saved)
	}
	if r.SavedCount > r.FoundCount {
		return fmt.Errorf("saved count %d exceeds found count %d", r.SavedCount, r.FoundCount)
	}
	if len(r.Outcomes) > 0 && len(r.Outcomes) != r.FoundCount {
		return fmt.Errorf("%d outcomes recorded for %d candidates", len(r.Outcomes), r.FoundCount)
	}
	return nil
}
