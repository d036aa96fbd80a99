package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
)

type LibraryStore struct {
	db DB
}

func NewLibraryStore(db DB) *LibraryStore {
	if db == nil {
		return nil
	}
	return &LibraryStore{db: db}
}

func (s *LibraryStore) CreateLibrary(ctx context.Context, lib domain.Library) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("library store not initialized")
	}
	if err := lib.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO libraries (library_oid, library_id, stopgap)
		 VALUES ($1,$2,$3)`,
		strings.TrimSpace(lib.ID),
		strings.TrimSpace(lib.LibraryID),
		lib.Stopgap,
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert library: %w", err)
	}
	return nil
}

func (s *LibraryStore) GetLibrary(ctx context.Context, id string) (domain.Library, error) {
	if s == nil || s.db == nil {
		return domain.Library{}, fmt.Errorf("library store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT library_oid, library_id, stopgap FROM libraries WHERE library_oid = $1`,
		strings.TrimSpace(id),
	)
	var lib domain.Library
	if err := row.Scan(&lib.ID, &lib.LibraryID, &lib.Stopgap); err != nil {
		return domain.Library{}, handleNotFound(err)
	}
	return lib, nil
}

func (s *LibraryStore) CreateLibraryAssociation(ctx context.Context, assoc domain.LibraryAssociation) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("library store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO library_associations (
			association_id,
			workflow_run_id,
			library_oid,
			association_date,
			status
		) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (workflow_run_id, library_oid) DO NOTHING`,
		strings.TrimSpace(assoc.ID),
		strings.TrimSpace(assoc.WorkflowRunID),
		strings.TrimSpace(assoc.LibraryID),
		normalizeTime(assoc.AssociationDate),
		strings.TrimSpace(assoc.Status),
	)
	if err != nil {
		return fmt.Errorf("insert library association: %w", err)
	}
	return nil
}

func (s *LibraryStore) ListRunLibraries(ctx context.Context, runID string) ([]domain.Library, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("library store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT l.library_oid, l.library_id, l.stopgap
		 FROM libraries l
		 JOIN library_associations a ON a.library_oid = l.library_oid
		 WHERE a.workflow_run_id = $1
		 ORDER BY l.library_id ASC`,
		strings.TrimSpace(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("query run libraries: %w", err)
	}
	defer rows.Close()

	var libs []domain.Library
	for rows.Next() {
		var lib domain.Library
		if err := rows.Scan(&lib.ID, &lib.LibraryID, &lib.Stopgap); err != nil {
			return nil, fmt.Errorf("scan run library: %w", err)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run libraries: %w", err)
	}
	return libs, nil
}

func (s *LibraryStore) CreateReadset(ctx context.Context, rs domain.Readset) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("library store not initialized")
	}
	if err := rs.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO readsets (readset_id, rgid, library_oid)
		 VALUES ($1,$2,$3)`,
		strings.TrimSpace(rs.ID),
		strings.TrimSpace(rs.RGID),
		strings.TrimSpace(rs.LibraryOID),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert readset: %w", err)
	}
	return nil
}

func (s *LibraryStore) GetReadsetByKey(ctx context.Context, libraryOID, rgid string) (domain.Readset, error) {
	if s == nil || s.db == nil {
		return domain.Readset{}, fmt.Errorf("library store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT readset_id, rgid, library_oid
		 FROM readsets
		 WHERE library_oid = $1 AND rgid = $2`,
		strings.TrimSpace(libraryOID),
		strings.TrimSpace(rgid),
	)
	var rs domain.Readset
	if err := row.Scan(&rs.ID, &rs.RGID, &rs.LibraryOID); err != nil {
		return domain.Readset{}, handleNotFound(err)
	}
	return rs, nil
}

func (s *LibraryStore) LinkRunReadset(ctx context.Context, runID, readsetID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("library store not initialized")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_run_readsets (workflow_run_id, readset_id)
		 VALUES ($1,$2)
		 ON CONFLICT (workflow_run_id, readset_id) DO NOTHING`,
		strings.TrimSpace(runID),
		strings.TrimSpace(readsetID),
	)
	if err != nil {
		return fmt.Errorf("link run readset: %w", err)
	}
	return nil
}

func (s *LibraryStore) ListRunReadsets(ctx context.Context, runID string) ([]domain.Readset, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("library store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT r.readset_id, r.rgid, r.library_oid
		 FROM readsets r
		 JOIN workflow_run_readsets wr ON wr.readset_id = r.readset_id
		 WHERE wr.workflow_run_id = $1
		 ORDER BY r.rgid ASC`,
		strings.TrimSpace(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("query run readsets: %w", err)
	}
	defer rows.Close()

	var readsets []domain.Readset
	for rows.Next() {
		var rs domain.Readset
		if err := rows.Scan(&rs.ID, &rs.RGID, &rs.LibraryOID); err != nil {
			return nil, fmt.Errorf("scan run readset: %w", err)
		}
		readsets = append(readsets, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run readsets: %w", err)
	}
	return readsets, nil
}
