package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/repo"
)

type StateStore struct {
	db DB
}

func NewStateStore(db DB) *StateStore {
	if db == nil {
		return nil
	}
	return &StateStore{db: db}
}

func (s *StateStore) AppendRunState(ctx context.Context, state domain.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state store not initialized")
	}
	if err := state.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_run_states (
			state_id,
			workflow_run_id,
			status,
			state_timestamp,
			comment,
			payload_id
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(state.ID),
		strings.TrimSpace(state.WorkflowRunID),
		strings.TrimSpace(state.Status),
		normalizeTime(state.Timestamp),
		nullIfEmpty(state.Comment),
		nullIfEmpty(state.PayloadID),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert run state: %w", err)
	}
	return nil
}

func (s *StateStore) ListRunStates(ctx context.Context, runID string) ([]domain.State, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("state store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT state_id, workflow_run_id, status, state_timestamp, comment, payload_id
		 FROM workflow_run_states
		 WHERE workflow_run_id = $1
		 ORDER BY state_timestamp ASC, state_id ASC`,
		strings.TrimSpace(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("query run states: %w", err)
	}
	defer rows.Close()

	var states []domain.State
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run states: %w", err)
	}
	return states, nil
}

func (s *StateStore) GetRunState(ctx context.Context, runID, stateID string) (domain.State, error) {
	if s == nil || s.db == nil {
		return domain.State{}, fmt.Errorf("state store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT state_id, workflow_run_id, status, state_timestamp, comment, payload_id
		 FROM workflow_run_states
		 WHERE workflow_run_id = $1 AND state_id = $2`,
		strings.TrimSpace(runID),
		strings.TrimSpace(stateID),
	)
	return scanState(row)
}

func (s *StateStore) UpdateRunStateComment(ctx context.Context, stateID, comment string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE workflow_run_states SET comment = $2 WHERE state_id = $1`,
		strings.TrimSpace(stateID),
		nullIfEmpty(comment),
	)
	if err != nil {
		return fmt.Errorf("update state comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update state comment: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanState(row rowScanner) (domain.State, error) {
	var (
		state   domain.State
		comment sql.NullString
		payload sql.NullString
	)
	err := row.Scan(&state.ID, &state.WorkflowRunID, &state.Status, &state.Timestamp, &comment, &payload)
	if err != nil {
		return domain.State{}, handleNotFound(err)
	}
	state.Timestamp = state.Timestamp.UTC()
	state.Comment = stringOrEmpty(comment)
	state.PayloadID = stringOrEmpty(payload)
	return state, nil
}
