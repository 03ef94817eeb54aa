// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/recruiting-assistant/internal/types"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, inner), inner))
	}
	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad right-pads by rune count; %-*s pads by bytes and misaligns accented names.
func pad(s string, n int) string {
	if c := utf8.RuneCountInString(s); c < n {
		return s + strings.Repeat(" ", n-c)
	}
	return s
}

// PrintCriteria outputs the normalized search criteria of a run.
func (p *Printer) PrintCriteria(criteria types.SearchCriteria) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title:   %s\n", criteria.Title)
	if len(criteria.Skills) == 0 {
		sb.WriteString("Skills:  (none)")
	} else {
		fmt.Fprintf(&sb, "Skills:  %s", strings.Join(criteria.Skills, ", "))
	}
	p.printBox("SEARCH CRITERIA", sb.String())
}

// PrintOutcomes outputs one line per save attempt, in candidate order.
func (p *Printer) PrintOutcomes(outcomes []types.SaveOutcome) {
	if len(outcomes) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(outcomes), maxItemsToShow)
	for i := 0; i < count; i++ {
		o := outcomes[i]
		if o.Saved() {
			fmt.Fprintf(&sb, "✓ %s (%s)\n", o.Name, o.CandidateRef)
			continue
		}
		fmt.Fprintf(&sb, "✗ %s (%s)\n", o.Name, o.CandidateRef)
		fmt.Fprintf(&sb, "  %s: %s\n", o.ErrorKind, o.ErrorDetail)
	}
	if len(outcomes) > maxItemsToShow {
		fmt.Fprintf(&sb, "... and %d more\n", len(outcomes)-maxItemsToShow)
	}

	p.printBox(fmt.Sprintf("SAVE OUTCOMES (%d)", len(outcomes)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintHistory outputs the state transitions of a run with their offsets from
// the first transition.
func (p *Printer) PrintHistory(history []workflow.Transition) {
	if len(history) == 0 {
		return
	}

	var sb strings.Builder
	start := history[0].At
	for _, t := range history {
		fmt.Fprintf(&sb, "%-8s %s → %s\n", t.At.Sub(start).Round(time.Millisecond), t.From, t.To)
	}
	p.printBox("STATE HISTORY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintReport outputs the full report of a run.
func (p *Printer) PrintReport(report *workflow.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:       %s\n", report.RunID)
	fmt.Fprintf(&sb, "State:     %s\n", report.State)
	fmt.Fprintf(&sb, "Found:     %d\n", report.FoundCount)
	fmt.Fprintf(&sb, "Saved:     %d\n", report.SavedCount)
	fmt.Fprintf(&sb, "Duration:  %s", report.Duration().Round(time.Millisecond))
	if report.TopLevelError != "" {
		fmt.Fprintf(&sb, "\n\n⚠ %s", report.TopLevelError)
		if report.ErrorDetail != "" {
			fmt.Fprintf(&sb, "\n  %s: %s", report.ErrorKind, report.ErrorDetail)
		}
	}
	p.printBox("WORKFLOW REPORT", sb.String())

	p.PrintOutcomes(report.Outcomes)
	p.PrintHistory(report.History)
}

// PrintProgress writes one line per progress event.
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) PrintProgress(event workflow.ProgressEvent) {
	switch {
	case event.Outcome != nil && event.Outcome.Saved():
		fmt.Fprintf(p.out, "[%d/%d] saved %s\n", event.Position, event.Total, event.Outcome.Name)
	case event.Outcome != nil:
		fmt.Fprintf(p.out, "[%d/%d] failed %s: %s\n", event.Position, event.Total, event.Outcome.Name, event.Outcome.ErrorDetail)
	case event.Type == "state" || event.Message == "":
		fmt.Fprintf(p.out, "→ %s\n", event.State)
	default:
		fmt.Fprintf(p.out, "→ %s: %s\n", event.State, event.Message)
	}
}
