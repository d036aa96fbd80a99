package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
)

type RunContextStore struct {
	db DB
}

func NewRunContextStore(db DB) *RunContextStore {
	if db == nil {
		return nil
	}
	return &RunContextStore{db: db}
}

func (s *RunContextStore) CreateRunContext(ctx context.Context, rc domain.RunContext) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run context store not initialized")
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_contexts (context_id, context_name, usecase, description, status)
		 VALUES ($1,$2,$3,$4,$5)`,
		strings.TrimSpace(rc.ID),
		strings.TrimSpace(rc.Name),
		strings.TrimSpace(rc.Usecase),
		nullIfEmpty(rc.Description),
		strings.TrimSpace(rc.Status),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert run context: %w", err)
	}
	return nil
}

func (s *RunContextStore) GetRunContextByKey(ctx context.Context, name, usecase string) (domain.RunContext, error) {
	if s == nil || s.db == nil {
		return domain.RunContext{}, fmt.Errorf("run context store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT context_id, context_name, usecase, description, status
		 FROM run_contexts
		 WHERE context_name = $1 AND usecase = $2`,
		strings.TrimSpace(name),
		strings.TrimSpace(usecase),
	)
	return scanRunContext(row)
}

func (s *RunContextStore) LinkRunContext(ctx context.Context, runID, contextID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run context store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_run_contexts (workflow_run_id, context_id)
		 VALUES ($1,$2)
		 ON CONFLICT (workflow_run_id, context_id) DO NOTHING`,
		strings.TrimSpace(runID),
		strings.TrimSpace(contextID),
	)
	if err != nil {
		return fmt.Errorf("link run context: %w", err)
	}
	return nil
}

func (s *RunContextStore) ListRunContexts(ctx context.Context, runID string) ([]domain.RunContext, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run context store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT c.context_id, c.context_name, c.usecase, c.description, c.status
		 FROM run_contexts c
		 JOIN workflow_run_contexts wc ON wc.context_id = c.context_id
		 WHERE wc.workflow_run_id = $1
		 ORDER BY c.usecase ASC, c.context_name ASC`,
		strings.TrimSpace(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("query run contexts: %w", err)
	}
	defer rows.Close()

	var contexts []domain.RunContext
	for rows.Next() {
		rc, err := scanRunContext(rows)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run contexts: %w", err)
	}
	return contexts, nil
}

func scanRunContext(row rowScanner) (domain.RunContext, error) {
	var (
		rc          domain.RunContext
		description sql.NullString
	)
	err := row.Scan(&rc.ID, &rc.Name, &rc.Usecase, &description, &rc.Status)
	if err != nil {
		return domain.RunContext{}, handleNotFound(err)
	}
	rc.Description = stringOrEmpty(description)
	return rc, nil
}
