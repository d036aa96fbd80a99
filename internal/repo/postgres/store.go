// Package postgres implements the repository interfaces over PostgreSQL via
// database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/seqportal/runhub/internal/repo"
)

// Store aggregates the per-entity stores over one shared handle. The handle
// is either the pooled *sql.DB or a *sql.Tx inside InTx.
type Store struct {
	*WorkflowStore
	*RunStore
	*StateStore
	*PayloadStore
	*LibraryStore
	*RunContextStore
	*AnalysisStore
	*AnalysisRunStore

	db *sql.DB
}

var _ repo.TxStore = (*Store)(nil)

func New(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	s := newStoreOver(db)
	s.db = db
	return s
}

func newStoreOver(db DB) *Store {
	return &Store{
		WorkflowStore:    NewWorkflowStore(db),
		RunStore:         NewRunStore(db),
		StateStore:       NewStateStore(db),
		PayloadStore:     NewPayloadStore(db),
		LibraryStore:     NewLibraryStore(db),
		RunContextStore:  NewRunContextStore(db),
		AnalysisStore:    NewAnalysisStore(db),
		AnalysisRunStore: NewAnalysisRunStore(db),
	}
}

// InTx runs fn against a transaction-scoped Store. Any error from fn rolls
// the transaction back and is returned unwrapped so sentinel checks keep
// working.
func (s *Store) InTx(ctx context.Context, fn func(repo.Store) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(newStoreOver(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
