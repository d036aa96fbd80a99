package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.WorkflowRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_runs (
			run_id,
			portal_run_id,
			run_name,
			execution_id,
			comment,
			workflow_id,
			analysis_run_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.PortalRunID),
		nullIfEmpty(run.Name),
		nullIfEmpty(run.ExecutionID),
		nullIfEmpty(run.Comment),
		strings.TrimSpace(run.WorkflowID),
		nullIfEmpty(run.AnalysisRunID),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert workflow run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.WorkflowRun, error) {
	if s == nil || s.db == nil {
		return domain.WorkflowRun{}, fmt.Errorf("run store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, portal_run_id, run_name, execution_id, comment, workflow_id, analysis_run_id
		 FROM workflow_runs
		 WHERE run_id = $1`,
		strings.TrimSpace(id),
	)
	return scanRun(row)
}

func (s *RunStore) GetRunByPortalRunID(ctx context.Context, portalRunID string) (domain.WorkflowRun, error) {
	if s == nil || s.db == nil {
		return domain.WorkflowRun{}, fmt.Errorf("run store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, portal_run_id, run_name, execution_id, comment, workflow_id, analysis_run_id
		 FROM workflow_runs
		 WHERE portal_run_id = $1`,
		strings.TrimSpace(portalRunID),
	)
	return scanRun(row)
}

func scanRun(row rowScanner) (domain.WorkflowRun, error) {
	var (
		run         domain.WorkflowRun
		name        sql.NullString
		executionID sql.NullString
		comment     sql.NullString
		analysisRun sql.NullString
	)
	err := row.Scan(&run.ID, &run.PortalRunID, &name, &executionID, &comment, &run.WorkflowID, &analysisRun)
	if err != nil {
		return domain.WorkflowRun{}, handleNotFound(err)
	}
	run.Name = stringOrEmpty(name)
	run.ExecutionID = stringOrEmpty(executionID)
	run.Comment = stringOrEmpty(comment)
	run.AnalysisRunID = stringOrEmpty(analysisRun)
	return run, nil
}
