package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
)

type WorkflowStore struct {
	db DB
}

func NewWorkflowStore(db DB) *WorkflowStore {
	if db == nil {
		return nil
	}
	return &WorkflowStore{db: db}
}

func (s *WorkflowStore) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("workflow store not initialized")
	}
	if err := wf.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflows (
			workflow_id,
			workflow_name,
			workflow_version,
			execution_engine,
			execution_engine_pipeline_id
		) VALUES ($1,$2,$3,$4,$5)`,
		strings.TrimSpace(wf.ID),
		strings.TrimSpace(wf.Name),
		strings.TrimSpace(wf.Version),
		strings.TrimSpace(wf.ExecutionEngine),
		strings.TrimSpace(wf.ExecutionEnginePipelineID),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *WorkflowStore) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	if s == nil || s.db == nil {
		return domain.Workflow{}, fmt.Errorf("workflow store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT workflow_id, workflow_name, workflow_version, execution_engine, execution_engine_pipeline_id
		 FROM workflows
		 WHERE workflow_id = $1`,
		strings.TrimSpace(id),
	)
	return scanWorkflow(row)
}

func (s *WorkflowStore) GetWorkflowByNaturalKey(ctx context.Context, name, version, engine string) (domain.Workflow, error) {
	if s == nil || s.db == nil {
		return domain.Workflow{}, fmt.Errorf("workflow store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT workflow_id, workflow_name, workflow_version, execution_engine, execution_engine_pipeline_id
		 FROM workflows
		 WHERE workflow_name = $1 AND workflow_version = $2 AND execution_engine = $3`,
		strings.TrimSpace(name),
		strings.TrimSpace(version),
		strings.TrimSpace(engine),
	)
	return scanWorkflow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (domain.Workflow, error) {
	var wf domain.Workflow
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Version, &wf.ExecutionEngine, &wf.ExecutionEnginePipelineID); err != nil {
		return domain.Workflow{}, handleNotFound(err)
	}
	return wf, nil
}
