package annotate

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/ingest"
	"github.com/seqportal/runhub/internal/repo"
)

// fakeStore covers only what the annotation overlay touches.
type fakeStore struct {
	repo.Store
	runs   map[string]domain.WorkflowRun
	states map[string][]domain.State
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:   map[string]domain.WorkflowRun{},
		states: map[string][]domain.State{},
	}
}

func (f *fakeStore) InTx(_ context.Context, fn func(repo.Store) error) error {
	return fn(f)
}

func (f *fakeStore) GetRunByPortalRunID(_ context.Context, portalRunID string) (domain.WorkflowRun, error) {
	run, ok := f.runs[portalRunID]
	if !ok {
		return domain.WorkflowRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) ListRunStates(_ context.Context, runID string) ([]domain.State, error) {
	return f.states[runID], nil
}

func (f *fakeStore) GetRunState(_ context.Context, runID, stateID string) (domain.State, error) {
	for _, st := range f.states[runID] {
		if st.ID == stateID {
			return st, nil
		}
	}
	return domain.State{}, repo.ErrNotFound
}

func (f *fakeStore) AppendRunState(_ context.Context, state domain.State) error {
	f.states[state.WorkflowRunID] = append(f.states[state.WorkflowRunID], state)
	return nil
}

func (f *fakeStore) UpdateRunStateComment(_ context.Context, stateID, comment string) error {
	for runID, states := range f.states {
		for i, st := range states {
			if st.ID == stateID {
				f.states[runID][i].Comment = comment
				return nil
			}
		}
	}
	return repo.ErrNotFound
}

func seedRun(store *fakeStore, portalRunID string, statuses ...string) domain.WorkflowRun {
	run := domain.WorkflowRun{ID: "wfr." + portalRunID, PortalRunID: portalRunID, WorkflowID: "wfl.x"}
	store.runs[portalRunID] = run
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range statuses {
		store.states[run.ID] = append(store.states[run.ID], domain.State{
			ID:            domain.NewID(domain.PrefixState),
			WorkflowRunID: run.ID,
			Status:        status,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		})
	}
	return run
}

func newService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	svc, err := NewService(store, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestAnnotateResolvedFromFailed(t *testing.T) {
	store := newFakeStore()
	run := seedRun(store, "1234", domain.StatusRunning, domain.StatusFailed)
	svc := newService(t, store)

	state, err := svc.Annotate(context.Background(), "1234", "RESOLVED", "rerun cleared the alert")
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if state.Status != domain.StatusResolved {
		t.Fatalf("status = %q", state.Status)
	}
	if len(store.states[run.ID]) != 3 {
		t.Fatalf("want appended state, have %d", len(store.states[run.ID]))
	}
}

func TestAnnotateResolvedRequiresFailed(t *testing.T) {
	store := newFakeStore()
	seedRun(store, "1234", domain.StatusSucceeded)
	svc := newService(t, store)

	_, err := svc.Annotate(context.Background(), "1234", "RESOLVED", "nope")
	if !errors.Is(err, ingest.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAnnotateRequiresComment(t *testing.T) {
	store := newFakeStore()
	seedRun(store, "1234", domain.StatusFailed)
	svc := newService(t, store)

	if _, err := svc.Annotate(context.Background(), "1234", "RESOLVED", "  "); !errors.Is(err, ingest.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAnnotateDeprecatedOnEmptyHistory(t *testing.T) {
	store := newFakeStore()
	seedRun(store, "1234")
	svc := newService(t, store)

	state, err := svc.Annotate(context.Background(), "1234", "DEPRECATED", "superseded by 5678")
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if state.Status != domain.StatusDeprecated {
		t.Fatalf("status = %q", state.Status)
	}
}

func TestAnnotateUnknownRun(t *testing.T) {
	svc := newService(t, newFakeStore())
	if _, err := svc.Annotate(context.Background(), "ghost", "DEPRECATED", "c"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateCommentOnlyOnAnnotationStates(t *testing.T) {
	store := newFakeStore()
	run := seedRun(store, "1234", domain.StatusFailed, domain.StatusResolved)
	svc := newService(t, store)
	ctx := context.Background()

	resolved := store.states[run.ID][1]
	state, err := svc.UpdateComment(ctx, "1234", resolved.ID, "updated note")
	if err != nil {
		t.Fatalf("update comment: %v", err)
	}
	if state.Comment != "updated note" {
		t.Fatalf("comment = %q", state.Comment)
	}

	failed := store.states[run.ID][0]
	if _, err := svc.UpdateComment(ctx, "1234", failed.ID, "x"); !errors.Is(err, ingest.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for non-annotation state", err)
	}
}

func TestAllowedNext(t *testing.T) {
	store := newFakeStore()
	seedRun(store, "empty")
	seedRun(store, "failed", domain.StatusFailed)
	seedRun(store, "running", domain.StatusRunning)
	svc := newService(t, store)
	ctx := context.Background()

	got, err := svc.AllowedNext(ctx, "empty")
	if err != nil {
		t.Fatalf("allowed next: %v", err)
	}
	if len(got) != 1 || got[0] != domain.StatusDeprecated {
		t.Fatalf("empty history allows %v, want [DEPRECATED]", got)
	}

	got, err = svc.AllowedNext(ctx, "failed")
	if err != nil {
		t.Fatalf("allowed next: %v", err)
	}
	if len(got) != 1 || got[0] != domain.StatusResolved {
		t.Fatalf("FAILED allows %v, want [RESOLVED]", got)
	}

	got, err = svc.AllowedNext(ctx, "running")
	if err != nil {
		t.Fatalf("allowed next: %v", err)
	}
	if len(got) != 1 || got[0] != domain.StatusDeprecated {
		t.Fatalf("RUNNING allows %v, want [DEPRECATED]", got)
	}
}
