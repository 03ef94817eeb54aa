package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/recruiting-assistant/internal/types"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

var _ workflow.Recorder = (*DB)(nil)

const runColumns = `id, username, title, skills, state, found_count, saved_count,
	top_level_error, error_kind, error_detail, history, started_at, finished_at`

var outcomeColumns = []string{"run_id", "position", "candidate_ref", "name", "status", "error_detail", "error_kind"}

// RecordRun stores a finished run and its outcomes in one transaction.
// It implements workflow.Recorder.
func (db *DB) RecordRun(ctx context.Context, report *workflow.Report) error {
	run, outcomes, err := fromReport(report)
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(run.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.Username, run.Title, run.Skills, run.State, run.FoundCount, run.SavedCount,
		run.TopLevelError, run.ErrorKind, run.ErrorDetail, historyJSON, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if len(outcomes) > 0 {
		rows := make([][]any, len(outcomes))
		for i, o := range outcomes {
			rows[i] = []any{o.RunID, o.Position, o.CandidateRef, o.Name, string(o.Status), o.ErrorDetail, o.ErrorKind}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"save_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to insert outcomes for run %s: %w", run.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// fromReport flattens a report into rows. Positions are 1-based.
func fromReport(report *workflow.Report) (Run, []Outcome, error) {
	if report == nil {
		return Run{}, nil, errors.New("nil report")
	}
	id, err := uuid.Parse(report.RunID)
	if err != nil {
		return Run{}, nil, fmt.Errorf("invalid run id %q: %w", report.RunID, err)
	}

	skills := report.Criteria.Skills
	if skills == nil {
		skills = []string{}
	}
	run := Run{
		ID:            id,
		Username:      report.Username,
		Title:         report.Criteria.Title,
		Skills:        skills,
		State:         string(report.State),
		FoundCount:    report.FoundCount,
		SavedCount:    report.SavedCount,
		TopLevelError: report.TopLevelError,
		ErrorKind:     report.ErrorKind,
		ErrorDetail:   report.ErrorDetail,
		History:       report.History,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}

	outcomes := make([]Outcome, len(report.Outcomes))
	for i, o := range report.Outcomes {
		outcomes[i] = Outcome{RunID: id, Position: i + 1, SaveOutcome: o}
	}
	return run, outcomes, nil
}

// GetRun retrieves a run by ID. It returns nil when the run does not exist.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs matching filters.
func (db *DB) ListRuns(ctx context.Context, filters RunFilters) ([]Run, error) {
	query, args := listRunsQuery(filters)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func listRunsQuery(filters RunFilters) (string, []any) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Username != "" {
		query += fmt.Sprintf(" AND username = $%d", argNum)
		args = append(args, filters.Username)
		argNum++
	}
	if filters.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argNum)
		args = append(args, filters.State)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)
	return query, args
}

// ListOutcomes retrieves the save outcomes of a run in position order.
func (db *DB) ListOutcomes(ctx context.Context, runID uuid.UUID) ([]Outcome, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, position, candidate_ref, name, status, error_detail, error_kind
		 FROM save_outcomes WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []Outcome{}
	for rows.Next() {
		var o Outcome
		var status string
		if err := rows.Scan(&o.RunID, &o.Position, &o.CandidateRef, &o.Name, &status, &o.ErrorDetail, &o.ErrorKind); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Status = types.SaveStatus(status)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return outcomes, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var historyJSON []byte
	err := row.Scan(&run.ID, &run.Username, &run.Title, &run.Skills, &run.State,
		&run.FoundCount, &run.SavedCount, &run.TopLevelError, &run.ErrorKind, &run.ErrorDetail,
		&historyJSON, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &run.History); err != nil {
			return nil, fmt.Errorf("failed to decode history of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}
