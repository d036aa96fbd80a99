package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/repo"
)

type AnalysisRunStore struct {
	db DB
}

func NewAnalysisRunStore(db DB) *AnalysisRunStore {
	if db == nil {
		return nil
	}
	return &AnalysisRunStore{db: db}
}

func (s *AnalysisRunStore) CreateAnalysisRun(ctx context.Context, ar domain.AnalysisRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analysis run store not initialized")
	}
	if err := ar.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analysis_runs (
			analysis_run_id,
			analysis_run_name,
			comment,
			analysis_id,
			compute_context_id,
			storage_context_id
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(ar.ID),
		strings.TrimSpace(ar.Name),
		nullIfEmpty(ar.Comment),
		strings.TrimSpace(ar.AnalysisID),
		nullIfEmpty(ar.ComputeContextID),
		nullIfEmpty(ar.StorageContextID),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

func (s *AnalysisRunStore) GetAnalysisRun(ctx context.Context, id string) (domain.AnalysisRun, error) {
	if s == nil || s.db == nil {
		return domain.AnalysisRun{}, fmt.Errorf("analysis run store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT analysis_run_id, analysis_run_name, comment, analysis_id, compute_context_id, storage_context_id
		 FROM analysis_runs
		 WHERE analysis_run_id = $1`,
		strings.TrimSpace(id),
	)
	return scanAnalysisRun(row)
}

func (s *AnalysisRunStore) GetAnalysisRunByName(ctx context.Context, name string) (domain.AnalysisRun, error) {
	if s == nil || s.db == nil {
		return domain.AnalysisRun{}, fmt.Errorf("analysis run store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT analysis_run_id, analysis_run_name, comment, analysis_id, compute_context_id, storage_context_id
		 FROM analysis_runs
		 WHERE analysis_run_name = $1`,
		strings.TrimSpace(name),
	)
	return scanAnalysisRun(row)
}

func (s *AnalysisRunStore) SetAnalysisRunContexts(ctx context.Context, id, computeContextID, storageContextID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analysis run store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE analysis_runs
		 SET compute_context_id = $2, storage_context_id = $3
		 WHERE analysis_run_id = $1`,
		strings.TrimSpace(id),
		nullIfEmpty(computeContextID),
		nullIfEmpty(storageContextID),
	)
	if err != nil {
		return fmt.Errorf("set analysis run contexts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set analysis run contexts: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *AnalysisRunStore) AppendAnalysisRunState(ctx context.Context, state domain.AnalysisRunState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analysis run store not initialized")
	}
	if strings.TrimSpace(state.ID) == "" {
		return fmt.Errorf("analysis run state id is required")
	}
	if strings.TrimSpace(state.AnalysisRunID) == "" {
		return fmt.Errorf("analysis run id is required")
	}
	if strings.TrimSpace(state.Status) == "" {
		return fmt.Errorf("status is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analysis_run_states (
			state_id,
			analysis_run_id,
			status,
			state_timestamp,
			comment
		) VALUES ($1,$2,$3,$4,$5)`,
		strings.TrimSpace(state.ID),
		strings.TrimSpace(state.AnalysisRunID),
		strings.TrimSpace(state.Status),
		normalizeTime(state.Timestamp),
		nullIfEmpty(state.Comment),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert analysis run state: %w", err)
	}
	return nil
}

func (s *AnalysisRunStore) ListAnalysisRunStates(ctx context.Context, id string) ([]domain.AnalysisRunState, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("analysis run store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT state_id, analysis_run_id, status, state_timestamp, comment
		 FROM analysis_run_states
		 WHERE analysis_run_id = $1
		 ORDER BY state_timestamp ASC, state_id ASC`,
		strings.TrimSpace(id),
	)
	if err != nil {
		return nil, fmt.Errorf("query analysis run states: %w", err)
	}
	defer rows.Close()

	var states []domain.AnalysisRunState
	for rows.Next() {
		var (
			state   domain.AnalysisRunState
			comment sql.NullString
		)
		if err := rows.Scan(&state.ID, &state.AnalysisRunID, &state.Status, &state.Timestamp, &comment); err != nil {
			return nil, fmt.Errorf("scan analysis run state: %w", err)
		}
		state.Timestamp = state.Timestamp.UTC()
		state.Comment = stringOrEmpty(comment)
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis run states: %w", err)
	}
	return states, nil
}

func (s *AnalysisRunStore) LinkAnalysisRunLibrary(ctx context.Context, id, libraryID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analysis run store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analysis_run_libraries (analysis_run_id, library_oid)
		 VALUES ($1,$2)
		 ON CONFLICT (analysis_run_id, library_oid) DO NOTHING`,
		strings.TrimSpace(id),
		strings.TrimSpace(libraryID),
	)
	if err != nil {
		return fmt.Errorf("link analysis run library: %w", err)
	}
	return nil
}

func (s *AnalysisRunStore) ListAnalysisRunLibraries(ctx context.Context, id string) ([]domain.Library, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("analysis run store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT l.library_oid, l.library_id, l.stopgap
		 FROM libraries l
		 JOIN analysis_run_libraries al ON al.library_oid = l.library_oid
		 WHERE al.analysis_run_id = $1
		 ORDER BY l.library_id ASC`,
		strings.TrimSpace(id),
	)
	if err != nil {
		return nil, fmt.Errorf("query analysis run libraries: %w", err)
	}
	defer rows.Close()

	var libs []domain.Library
	for rows.Next() {
		var lib domain.Library
		if err := rows.Scan(&lib.ID, &lib.LibraryID, &lib.Stopgap); err != nil {
			return nil, fmt.Errorf("scan analysis run library: %w", err)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis run libraries: %w", err)
	}
	return libs, nil
}

func (s *AnalysisRunStore) CreateAnalysisRunReadset(ctx context.Context, rs domain.AnalysisRunReadset) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analysis run store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO analysis_run_readsets (
			readset_id,
			rgid,
			analysis_run_id,
			library_id,
			library_oid
		) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (analysis_run_id, library_oid, rgid) DO NOTHING`,
		strings.TrimSpace(rs.ID),
		strings.TrimSpace(rs.RGID),
		strings.TrimSpace(rs.AnalysisRunID),
		strings.TrimSpace(rs.LibraryID),
		strings.TrimSpace(rs.LibraryOID),
	)
	if err != nil {
		return fmt.Errorf("insert analysis run readset: %w", err)
	}
	return nil
}

func (s *AnalysisRunStore) ListAnalysisRunReadsets(ctx context.Context, id string) ([]domain.AnalysisRunReadset, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("analysis run store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT readset_id, rgid, analysis_run_id, library_id, library_oid
		 FROM analysis_run_readsets
		 WHERE analysis_run_id = $1
		 ORDER BY rgid ASC`,
		strings.TrimSpace(id),
	)
	if err != nil {
		return nil, fmt.Errorf("query analysis run readsets: %w", err)
	}
	defer rows.Close()

	var readsets []domain.AnalysisRunReadset
	for rows.Next() {
		var rs domain.AnalysisRunReadset
		if err := rows.Scan(&rs.ID, &rs.RGID, &rs.AnalysisRunID, &rs.LibraryID, &rs.LibraryOID); err != nil {
			return nil, fmt.Errorf("scan analysis run readset: %w", err)
		}
		readsets = append(readsets, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis run readsets: %w", err)
	}
	return readsets, nil
}

func scanAnalysisRun(row rowScanner) (domain.AnalysisRun, error) {
	var (
		ar      domain.AnalysisRun
		comment sql.NullString
		compute sql.NullString
		storage sql.NullString
	)
	err := row.Scan(&ar.ID, &ar.Name, &comment, &ar.AnalysisID, &compute, &storage)
	if err != nil {
		return domain.AnalysisRun{}, handleNotFound(err)
	}
	ar.Comment = stringOrEmpty(comment)
	ar.ComputeContextID = stringOrEmpty(compute)
	ar.StorageContextID = stringOrEmpty(storage)
	return ar, nil
}
