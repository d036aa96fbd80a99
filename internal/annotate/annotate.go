// Package annotate implements the operator annotation overlay: RESOLVED and
// DEPRECATED states appended outside the automatic pipeline machine, plus
// comment-only edits of existing annotation states.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/ingest"
	"github.com/seqportal/runhub/internal/repo"
)

type Service struct {
	store repo.TxStore
	log   *slog.Logger
}

func NewService(store repo.TxStore, log *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log}, nil
}

// Annotate appends an annotation state to the run identified by portal run
// id. The requested status must be reachable from the run's current status
// and the comment is mandatory.
func (s *Service) Annotate(ctx context.Context, portalRunID, status, comment string) (domain.State, error) {
	if s == nil || s.store == nil {
		return domain.State{}, fmt.Errorf("annotate service not initialized")
	}
	var created domain.State
	err := s.store.InTx(ctx, func(tx repo.Store) error {
		run, err := tx.GetRunByPortalRunID(ctx, portalRunID)
		if err != nil {
			return fmt.Errorf("lookup run: %w", err)
		}
		states, err := tx.ListRunStates(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("list states: %w", err)
		}
		current := ""
		if latest, ok := domain.LatestState(states); ok {
			current = latest.Status
		}
		if err := domain.ValidateAnnotation(current, status, comment); err != nil {
			return fmt.Errorf("%w: %v", ingest.ErrValidation, err)
		}
		created = domain.State{
			ID:            domain.NewID(domain.PrefixState),
			WorkflowRunID: run.ID,
			Status:        domain.NormalizeStatus(status),
			Timestamp:     time.Now().UTC(),
			Comment:       strings.TrimSpace(comment),
		}
		if err := tx.AppendRunState(ctx, created); err != nil {
			return fmt.Errorf("append annotation: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.State{}, err
	}
	s.log.InfoContext(ctx, "annotation appended",
		slog.String("portal_run_id", portalRunID),
		slog.String("status", created.Status),
	)
	return created, nil
}

// UpdateComment edits the comment of an existing annotation state. Only
// RESOLVED and DEPRECATED states accept comment edits; every other field of
// every state is immutable.
func (s *Service) UpdateComment(ctx context.Context, portalRunID, stateID, comment string) (domain.State, error) {
	if s == nil || s.store == nil {
		return domain.State{}, fmt.Errorf("annotate service not initialized")
	}
	if strings.TrimSpace(comment) == "" {
		return domain.State{}, fmt.Errorf("%w: comment is required", ingest.ErrValidation)
	}
	var updated domain.State
	err := s.store.InTx(ctx, func(tx repo.Store) error {
		run, err := tx.GetRunByPortalRunID(ctx, portalRunID)
		if err != nil {
			return fmt.Errorf("lookup run: %w", err)
		}
		state, err := tx.GetRunState(ctx, run.ID, stateID)
		if err != nil {
			return fmt.Errorf("lookup state: %w", err)
		}
		status := domain.NormalizeStatus(state.Status)
		if status != domain.StatusResolved && status != domain.StatusDeprecated {
			return fmt.Errorf("%w: only annotation states accept comment edits", ingest.ErrValidation)
		}
		if err := tx.UpdateRunStateComment(ctx, state.ID, strings.TrimSpace(comment)); err != nil {
			return fmt.Errorf("update comment: %w", err)
		}
		state.Comment = strings.TrimSpace(comment)
		updated = state
		return nil
	})
	if err != nil {
		return domain.State{}, err
	}
	return updated, nil
}

// AllowedNext returns the annotation statuses legal for the run's current
// state, or [DEPRECATED] when the run has no history.
func (s *Service) AllowedNext(ctx context.Context, portalRunID string) ([]string, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("annotate service not initialized")
	}
	run, err := s.store.GetRunByPortalRunID(ctx, portalRunID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup run: %w", err)
	}
	states, err := s.store.ListRunStates(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	current := ""
	if latest, ok := domain.LatestState(states); ok {
		current = latest.Status
	}
	return domain.AllowedAnnotations(current), nil
}
