// Package ingest turns inbound state-change events into canonical run state
// history: entity resolution, association bookkeeping, the automatic
// transition machine, and canonical event re-emission after commit.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/hashing"
	"github.com/seqportal/runhub/internal/payloadstore"
	"github.com/seqportal/runhub/internal/platform/metrics"
	"github.com/seqportal/runhub/internal/relay"
	"github.com/seqportal/runhub/internal/repo"
)

// Result reports the outcome of processing one inbound run event. A rejected
// transition is a normal outcome, not an error.
type Result struct {
	Accepted bool
	Event    *RunStateChange
}

type Service struct {
	store         repo.TxStore
	publisher     relay.Publisher
	blobs         *payloadstore.Store
	metrics       *metrics.Ingest
	log           *slog.Logger
	runningWindow time.Duration
}

func NewService(store repo.TxStore, publisher relay.Publisher, blobs *payloadstore.Store,
	m *metrics.Ingest, log *slog.Logger, runningWindow time.Duration) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if runningWindow <= 0 {
		runningWindow = domain.DefaultRunningWindow
	}
	return &Service{
		store:         store,
		publisher:     publisher,
		blobs:         blobs,
		metrics:       m,
		log:           log,
		runningWindow: runningWindow,
	}, nil
}

// ProcessRunEvent runs the whole unit of work for one inbound event:
// resolve, associate on first sighting, decide the transition, persist, and
// emit the canonical event after commit.
func (s *Service) ProcessRunEvent(ctx context.Context, ev RunEvent) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("ingest service not initialized")
	}
	if strings.TrimSpace(ev.PortalRunID) == "" {
		return Result{}, fmt.Errorf("%w: portal run id is required", ErrSchema)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var outbound *RunStateChange
	accepted := false
	err := s.store.InTx(ctx, func(tx repo.Store) error {
		wf, err := resolveWorkflow(ctx, tx, ev.Workflow)
		if err != nil {
			return err
		}
		run, created, err := s.resolveRun(ctx, tx, ev, wf)
		if err != nil {
			return err
		}
		if created {
			if err := s.associate(ctx, tx, run.ID, ev.Libraries, ev.ComputeEnv, ev.StorageEnv); err != nil {
				return err
			}
		}

		states, err := tx.ListRunStates(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("list states: %w", err)
		}
		var current *domain.State
		if latest, ok := domain.LatestState(states); ok {
			current = &latest
		}
		next := domain.State{
			ID:            domain.NewID(domain.PrefixState),
			WorkflowRunID: run.ID,
			Status:        domain.NormalizeStatus(ev.Status),
			Timestamp:     ev.Timestamp,
		}
		if !domain.AcceptTransition(current, next, s.runningWindow) {
			return nil
		}

		var payload *domain.Payload
		if ev.Payload != nil {
			payload, err = s.storePayload(ctx, tx, ev.Payload)
			if err != nil {
				return err
			}
			next.PayloadID = payload.ID
		}
		if err := tx.AppendRunState(ctx, next); err != nil {
			return fmt.Errorf("append state: %w", err)
		}
		accepted = true

		event, err := s.assembleEvent(ctx, tx, run, wf, next, payload)
		if err != nil {
			return err
		}
		outbound = &event
		return nil
	})
	if err != nil {
		s.countError(err)
		return Result{}, err
	}
	if !accepted {
		if s.metrics != nil {
			s.metrics.TransitionsRejected.Inc()
		}
		s.log.InfoContext(ctx, "transition rejected",
			slog.String("portal_run_id", ev.PortalRunID),
			slog.String("status", domain.NormalizeStatus(ev.Status)),
		)
		return Result{Accepted: false}, nil
	}
	if s.metrics != nil {
		s.metrics.TransitionsAccepted.Inc()
	}
	s.emit(ctx, *outbound)
	return Result{Accepted: true, Event: outbound}, nil
}

// resolveWorkflow is an insert-or-fetch over the natural key. The loser of a
// concurrent first-sighting race falls back to fetching the winner's row.
func resolveWorkflow(ctx context.Context, tx repo.Store, spec WorkflowSpec) (domain.Workflow, error) {
	if strings.TrimSpace(spec.Name) == "" || strings.TrimSpace(spec.Version) == "" {
		return domain.Workflow{}, fmt.Errorf("%w: workflow name and version are required", ErrSchema)
	}
	engine := spec.Engine
	if engine == "" {
		engine = domain.EngineUnknown
	}
	wf, err := tx.GetWorkflowByNaturalKey(ctx, spec.Name, spec.Version, engine)
	if err == nil {
		return wf, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Workflow{}, fmt.Errorf("lookup workflow: %w", err)
	}
	wf = domain.Workflow{
		ID:                        domain.NewID(domain.PrefixWorkflow),
		Name:                      spec.Name,
		Version:                   spec.Version,
		ExecutionEngine:           engine,
		ExecutionEnginePipelineID: domain.PipelineIDUnknown,
	}
	if err := tx.CreateWorkflow(ctx, wf); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return tx.GetWorkflowByNaturalKey(ctx, spec.Name, spec.Version, engine)
		}
		return domain.Workflow{}, fmt.Errorf("create workflow: %w", err)
	}
	return wf, nil
}

func (s *Service) resolveRun(ctx context.Context, tx repo.Store, ev RunEvent, wf domain.Workflow) (domain.WorkflowRun, bool, error) {
	run, err := tx.GetRunByPortalRunID(ctx, ev.PortalRunID)
	if err == nil {
		return run, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.WorkflowRun{}, false, fmt.Errorf("lookup run: %w", err)
	}
	run = domain.WorkflowRun{
		ID:            domain.NewID(domain.PrefixWorkflowRun),
		PortalRunID:   ev.PortalRunID,
		Name:          ev.RunName,
		ExecutionID:   ev.ExecutionID,
		WorkflowID:    wf.ID,
		AnalysisRunID: ev.AnalysisRunID,
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			existing, getErr := tx.GetRunByPortalRunID(ctx, ev.PortalRunID)
			if getErr != nil {
				return domain.WorkflowRun{}, false, fmt.Errorf("refetch run: %w", getErr)
			}
			return existing, false, nil
		}
		return domain.WorkflowRun{}, false, fmt.Errorf("create run: %w", err)
	}
	return run, true, nil
}

// associate links libraries, readsets and environment contexts to a freshly
// created run. Re-delivery never reaches here; the run already exists then.
func (s *Service) associate(ctx context.Context, tx repo.Store, runID string,
	libs []LibrarySpec, computeEnv, storageEnv string) error {
	now := time.Now().UTC()
	for _, spec := range libs {
		lib, err := resolveLibrary(ctx, tx, spec)
		if err != nil {
			return err
		}
		assoc := domain.LibraryAssociation{
			ID:              domain.NewID(domain.PrefixLibrary),
			WorkflowRunID:   runID,
			LibraryID:       lib.ID,
			AssociationDate: now,
			Status:          domain.AssociationActive,
		}
		if err := tx.CreateLibraryAssociation(ctx, assoc); err != nil {
			return fmt.Errorf("associate library %s: %w", lib.LibraryID, err)
		}
		for _, rsSpec := range spec.Readsets {
			rs, err := resolveReadset(ctx, tx, lib.ID, rsSpec)
			if err != nil {
				return err
			}
			if err := tx.LinkRunReadset(ctx, runID, rs.ID); err != nil {
				return fmt.Errorf("link readset %s: %w", rs.RGID, err)
			}
		}
	}
	for _, env := range []struct{ name, usecase string }{
		{computeEnv, domain.UsecaseCompute},
		{storageEnv, domain.UsecaseStorage},
	} {
		if env.name == "" {
			continue
		}
		rc, err := resolveRunContext(ctx, tx, env.name, env.usecase)
		if err != nil {
			return err
		}
		if err := tx.LinkRunContext(ctx, runID, rc.ID); err != nil {
			return fmt.Errorf("link %s context: %w", env.usecase, err)
		}
	}
	return nil
}

func resolveLibrary(ctx context.Context, tx repo.Store, spec LibrarySpec) (domain.Library, error) {
	if spec.ID != "" {
		lib, err := tx.GetLibrary(ctx, spec.ID)
		if err == nil {
			return lib, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Library{}, fmt.Errorf("lookup library: %w", err)
		}
	}
	if strings.TrimSpace(spec.LibraryID) == "" {
		return domain.Library{}, fmt.Errorf("%w: library id is required", ErrSchema)
	}
	id := spec.ID
	if id == "" {
		id = domain.SanitizeID(domain.NewID(domain.PrefixLibrary))
	}
	lib := domain.Library{ID: id, LibraryID: spec.LibraryID, Stopgap: true}
	if err := tx.CreateLibrary(ctx, lib); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return tx.GetLibrary(ctx, id)
		}
		return domain.Library{}, fmt.Errorf("create library: %w", err)
	}
	return lib, nil
}

func resolveReadset(ctx context.Context, tx repo.Store, libraryOID string, spec ReadsetSpec) (domain.Readset, error) {
	if strings.TrimSpace(spec.RGID) == "" {
		return domain.Readset{}, fmt.Errorf("%w: readset rgid is required", ErrSchema)
	}
	rs, err := tx.GetReadsetByKey(ctx, libraryOID, spec.RGID)
	if err == nil {
		return rs, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Readset{}, fmt.Errorf("lookup readset: %w", err)
	}
	id := spec.ID
	if id == "" {
		id = domain.SanitizeID(domain.NewID(domain.PrefixReadset))
	}
	rs = domain.Readset{ID: id, RGID: spec.RGID, LibraryOID: libraryOID}
	if err := tx.CreateReadset(ctx, rs); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return tx.GetReadsetByKey(ctx, libraryOID, spec.RGID)
		}
		return domain.Readset{}, fmt.Errorf("create readset: %w", err)
	}
	return rs, nil
}

func resolveRunContext(ctx context.Context, tx repo.Store, name, usecase string) (domain.RunContext, error) {
	rc, err := tx.GetRunContextByKey(ctx, name, usecase)
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.RunContext{}, fmt.Errorf("lookup run context: %w", err)
	}
	rc = domain.RunContext{
		ID:      domain.NewID(domain.PrefixRunContext),
		Name:    name,
		Usecase: usecase,
		Status:  domain.ContextActive,
	}
	if err := tx.CreateRunContext(ctx, rc); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return tx.GetRunContextByKey(ctx, name, usecase)
		}
		return domain.RunContext{}, fmt.Errorf("create run context: %w", err)
	}
	return rc, nil
}

func (s *Service) storePayload(ctx context.Context, tx repo.Store, spec *PayloadSpec) (*domain.Payload, error) {
	hash, err := hashing.HashPayloadData(spec.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload data: %v", ErrSchema, err)
	}
	version := spec.Version
	if version == "" {
		version = RunStateChangeVersion
	}
	payload := domain.Payload{
		ID:          domain.NewID(domain.PrefixPayload),
		RefID:       domain.NewPayloadRefID(),
		Version:     version,
		Data:        spec.Data,
		ContentHash: hash,
	}
	if s.blobs.ShouldOffload(len(spec.Data)) {
		key, err := s.blobs.Put(ctx, hash, spec.Data)
		if err != nil {
			return nil, fmt.Errorf("offload payload: %w", err)
		}
		payload.ObjectKey = key
		payload.Data = nil
	}
	if err := tx.CreatePayload(ctx, payload); err != nil {
		return nil, fmt.Errorf("create payload: %w", err)
	}
	return &payload, nil
}

func (s *Service) assembleEvent(ctx context.Context, tx repo.Store, run domain.WorkflowRun,
	wf domain.Workflow, state domain.State, payload *domain.Payload) (RunStateChange, error) {
	libs, err := tx.ListRunLibraries(ctx, run.ID)
	if err != nil {
		return RunStateChange{}, fmt.Errorf("list run libraries: %w", err)
	}
	readsets, err := tx.ListRunReadsets(ctx, run.ID)
	if err != nil {
		return RunStateChange{}, fmt.Errorf("list run readsets: %w", err)
	}
	contexts, err := tx.ListRunContexts(ctx, run.ID)
	if err != nil {
		return RunStateChange{}, fmt.Errorf("list run contexts: %w", err)
	}
	if err := checkSingleActiveContexts(contexts); err != nil {
		return RunStateChange{}, err
	}
	var analysisRun *domain.AnalysisRun
	if run.AnalysisRunID != "" {
		ar, err := tx.GetAnalysisRun(ctx, run.AnalysisRunID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return RunStateChange{}, fmt.Errorf("lookup analysis run: %w", err)
		}
		if err == nil {
			analysisRun = &ar
		}
	}
	return buildRunStateChange(run, wf, state, payload, libs, readsets, contexts, analysisRun), nil
}

// checkSingleActiveContexts rejects runs linked to more than one active
// context per usecase; the outbound event has exactly one slot each.
func checkSingleActiveContexts(contexts []domain.RunContext) error {
	seen := map[string]int{}
	for _, rc := range contexts {
		if rc.Status != domain.ContextActive {
			continue
		}
		seen[rc.Usecase]++
		if seen[rc.Usecase] > 1 {
			return fmt.Errorf("%w: more than one active %s context", ErrValidation, rc.Usecase)
		}
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event RunStateChange) {
	detail, err := json.Marshal(event)
	if err != nil {
		s.log.ErrorContext(ctx, "encode outbound event", slog.String("error", err.Error()))
		s.countError(err)
		return
	}
	if err := s.publisher.Publish(ctx, EventTypeRunStateChange, detail); err != nil {
		// At-least-once: a publish failure after commit is logged, not
		// surfaced. The identity hash lets consumers deduplicate replays.
		s.log.ErrorContext(ctx, "publish outbound event",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		s.countError(err)
		return
	}
	if s.metrics != nil {
		s.metrics.EventsEmitted.WithLabelValues(EventTypeRunStateChange).Inc()
	}
	s.log.InfoContext(ctx, "event emitted",
		slog.String("event_id", event.ID),
		slog.String("portal_run_id", event.PortalRunID),
		slog.String("status", event.Status),
	)
}

func (s *Service) countError(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventErrors.WithLabelValues(ClassifyError(err)).Inc()
}

// ClassifyError maps an error onto its taxonomy class label.
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return "not_found"
	case errors.Is(err, repo.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
