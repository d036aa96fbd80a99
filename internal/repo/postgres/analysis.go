package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
)

type AnalysisStore struct {
	db DB
}

func NewAnalysisStore(db DB) *AnalysisStore {
	if db == nil {
		return nil
	}
	return &AnalysisStore{db: db}
}

func (s *AnalysisStore) CreateAnalysis(ctx context.Context, a domain.Analysis) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analysis store not initialized")
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("analysis id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("analysis name is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analyses (analysis_id, analysis_name, analysis_version)
		 VALUES ($1,$2,$3)`,
		strings.TrimSpace(a.ID),
		strings.TrimSpace(a.Name),
		strings.TrimSpace(a.Version),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (s *AnalysisStore) GetAnalysis(ctx context.Context, id string) (domain.Analysis, error) {
	if s == nil || s.db == nil {
		return domain.Analysis{}, fmt.Errorf("analysis store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT analysis_id, analysis_name, analysis_version
		 FROM analyses
		 WHERE analysis_id = $1`,
		strings.TrimSpace(id),
	)
	var a domain.Analysis
	if err := row.Scan(&a.ID, &a.Name, &a.Version); err != nil {
		return domain.Analysis{}, handleNotFound(err)
	}
	return a, nil
}

func (s *AnalysisStore) LinkAnalysisWorkflow(ctx context.Context, analysisID, workflowID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analysis store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analysis_workflows (analysis_id, workflow_id)
		 VALUES ($1,$2)
		 ON CONFLICT (analysis_id, workflow_id) DO NOTHING`,
		strings.TrimSpace(analysisID),
		strings.TrimSpace(workflowID),
	)
	if err != nil {
		return fmt.Errorf("link analysis workflow: %w", err)
	}
	return nil
}

func (s *AnalysisStore) ListAnalysisWorkflows(ctx context.Context, analysisID string) ([]domain.Workflow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("analysis store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT w.workflow_id, w.workflow_name, w.workflow_version, w.execution_engine, w.execution_engine_pipeline_id
		 FROM workflows w
		 JOIN analysis_workflows aw ON aw.workflow_id = w.workflow_id
		 WHERE aw.analysis_id = $1
		 ORDER BY w.workflow_name ASC, w.workflow_version ASC`,
		strings.TrimSpace(analysisID),
	)
	if err != nil {
		return nil, fmt.Errorf("query analysis workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis workflows: %w", err)
	}
	return workflows, nil
}
