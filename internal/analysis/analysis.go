// Package analysis implements the analysis run lifecycle: create-only DRAFT
// registration and fail-closed READY finalization, which fans out into DRAFT
// workflow runs for every workflow the analysis is bound to.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/ingest"
	"github.com/seqportal/runhub/internal/platform/env"
	"github.com/seqportal/runhub/internal/platform/metrics"
	"github.com/seqportal/runhub/internal/relay"
	"github.com/seqportal/runhub/internal/repo"
)

// DefaultRunNamePrefix seeds fanned-out workflow run names.
const DefaultRunNamePrefix = "umccr"

// RunNamePrefixFromEnv reads the fan-out run name prefix.
func RunNamePrefixFromEnv() string {
	return env.String("RUNHUB_RUN_NAME_PREFIX", DefaultRunNamePrefix)
}

type Service struct {
	store         repo.TxStore
	runs          *ingest.Service
	publisher     relay.Publisher
	metrics       *metrics.Ingest
	log           *slog.Logger
	runNamePrefix string
}

func NewService(store repo.TxStore, runs *ingest.Service, publisher relay.Publisher,
	m *metrics.Ingest, log *slog.Logger, runNamePrefix string) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run ingest service is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(runNamePrefix) == "" {
		runNamePrefix = DefaultRunNamePrefix
	}
	return &Service{
		store:         store,
		runs:          runs,
		publisher:     publisher,
		metrics:       m,
		log:           log,
		runNamePrefix: runNamePrefix,
	}, nil
}

// Process routes an analysis run update to create or finalize based on its
// status.
func (s *Service) Process(ctx context.Context, ev ingest.AnalysisRunEvent) (AnalysisRunStateChange, error) {
	switch ev.Status {
	case domain.StatusDraft:
		return s.Create(ctx, ev)
	case domain.StatusReady:
		return s.Finalize(ctx, ev)
	default:
		return AnalysisRunStateChange{}, fmt.Errorf("%w: analysis run status must be DRAFT or READY", ingest.ErrSchema)
	}
}

// Create registers a new AnalysisRun in DRAFT. The referenced Analysis must
// already exist; a duplicate run name is a Conflict, never an upsert.
func (s *Service) Create(ctx context.Context, ev ingest.AnalysisRunEvent) (AnalysisRunStateChange, error) {
	if s == nil || s.store == nil {
		return AnalysisRunStateChange{}, fmt.Errorf("analysis service not initialized")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	var event AnalysisRunStateChange
	err := s.store.InTx(ctx, func(tx repo.Store) error {
		if _, err := tx.GetAnalysis(ctx, ev.AnalysisID); err != nil {
			return fmt.Errorf("lookup analysis %s: %w", ev.AnalysisID, err)
		}
		if _, err := tx.GetAnalysisRunByName(ctx, ev.Name); err == nil {
			return fmt.Errorf("analysis run %q: %w", ev.Name, repo.ErrConflict)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("lookup analysis run: %w", err)
		}

		ar := domain.AnalysisRun{
			ID:         domain.NewID(domain.PrefixAnalysisRun),
			Name:       ev.Name,
			Comment:    ev.Comment,
			AnalysisID: ev.AnalysisID,
		}
		computeID, storageID, err := s.resolveContexts(ctx, tx, ev.ComputeEnv, ev.StorageEnv, true)
		if err != nil {
			return err
		}
		ar.ComputeContextID = computeID
		ar.StorageContextID = storageID
		if err := tx.CreateAnalysisRun(ctx, ar); err != nil {
			return fmt.Errorf("create analysis run: %w", err)
		}

		libs, readsets, err := s.associateLibraries(ctx, tx, ar.ID, ev.Libraries)
		if err != nil {
			return err
		}

		state := domain.AnalysisRunState{
			ID:            domain.NewID(domain.PrefixAnalysisRunState),
			AnalysisRunID: ar.ID,
			Status:        domain.StatusDraft,
			Timestamp:     ev.Timestamp,
			Comment:       ev.Comment,
		}
		if err := tx.AppendAnalysisRunState(ctx, state); err != nil {
			return fmt.Errorf("append draft state: %w", err)
		}
		event = buildAnalysisRunStateChange(ar, state, libs, readsets, ev.ComputeEnv, ev.StorageEnv)
		return nil
	})
	if err != nil {
		s.countError(err)
		return AnalysisRunStateChange{}, err
	}
	s.emit(ctx, event)
	return event, nil
}

// Finalize moves a drafted AnalysisRun to READY. Identity fields are
// re-validated against the draft, environment contexts must pre-exist, the
// library set must match exactly, and readset reconciliation fails closed:
// previously linked readsets missing from the event abort finalization. On
// success a DRAFT workflow run is created for every workflow bound to the
// analysis.
func (s *Service) Finalize(ctx context.Context, ev ingest.AnalysisRunEvent) (AnalysisRunStateChange, error) {
	if s == nil || s.store == nil {
		return AnalysisRunStateChange{}, fmt.Errorf("analysis service not initialized")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.ComputeEnv == "" || ev.StorageEnv == "" {
		return AnalysisRunStateChange{}, fmt.Errorf(
			"%w: compute and storage environments are required to finalize", ingest.ErrValidation)
	}
	var (
		event     AnalysisRunStateChange
		run       domain.AnalysisRun
		workflows []domain.Workflow
		libraries []domain.Library
		readsets  []domain.AnalysisRunReadset
	)
	err := s.store.InTx(ctx, func(tx repo.Store) error {
		ar, err := tx.GetAnalysisRunByName(ctx, ev.Name)
		if err != nil {
			return fmt.Errorf("lookup analysis run %q: %w", ev.Name, err)
		}
		if ar.AnalysisID != ev.AnalysisID {
			return fmt.Errorf("%w: analysis reference changed since draft (%s vs %s)",
				ingest.ErrValidation, ar.AnalysisID, ev.AnalysisID)
		}
		if ev.AnalysisName != "" {
			an, err := tx.GetAnalysis(ctx, ar.AnalysisID)
			if err != nil {
				return fmt.Errorf("lookup analysis %s: %w", ar.AnalysisID, err)
			}
			if an.Name != ev.AnalysisName {
				return fmt.Errorf("%w: analysis name %q does not match %q",
					ingest.ErrValidation, ev.AnalysisName, an.Name)
			}
		}
		states, err := tx.ListAnalysisRunStates(ctx, ar.ID)
		if err != nil {
			return fmt.Errorf("list analysis run states: %w", err)
		}
		latest, ok := domain.LatestAnalysisRunState(states)
		if !ok || !latest.IsDraft() {
			return fmt.Errorf("%w: analysis run %q is not in DRAFT", ingest.ErrValidation, ev.Name)
		}

		computeID, storageID, err := s.resolveContexts(ctx, tx, ev.ComputeEnv, ev.StorageEnv, false)
		if err != nil {
			return err
		}
		if err := tx.SetAnalysisRunContexts(ctx, ar.ID, computeID, storageID); err != nil {
			return fmt.Errorf("set contexts: %w", err)
		}
		ar.ComputeContextID = computeID
		ar.StorageContextID = storageID

		linked, err := tx.ListAnalysisRunLibraries(ctx, ar.ID)
		if err != nil {
			return fmt.Errorf("list linked libraries: %w", err)
		}
		if len(linked) != len(ev.Libraries) {
			return fmt.Errorf("%w: library set changed since draft (%d linked, %d in event)",
				ingest.ErrValidation, len(linked), len(ev.Libraries))
		}
		byExternalID := make(map[string]domain.Library, len(linked))
		for _, lib := range linked {
			byExternalID[lib.LibraryID] = lib
		}

		existing, err := tx.ListAnalysisRunReadsets(ctx, ar.ID)
		if err != nil {
			return fmt.Errorf("list linked readsets: %w", err)
		}
		unmatched := make(map[string]domain.AnalysisRunReadset, len(existing))
		for _, rs := range existing {
			unmatched[rs.LibraryOID+"/"+rs.RGID] = rs
		}

		for _, spec := range ev.Libraries {
			lib, ok := byExternalID[spec.LibraryID]
			if !ok {
				return fmt.Errorf("%w: library %s was not part of the draft", ingest.ErrValidation, spec.LibraryID)
			}
			if spec.ID != "" && spec.ID != lib.ID {
				return fmt.Errorf("%w: library %s resolves to %s, event says %s",
					ingest.ErrValidation, spec.LibraryID, lib.ID, spec.ID)
			}
			for _, rsSpec := range spec.Readsets {
				key := lib.ID + "/" + rsSpec.RGID
				if _, ok := unmatched[key]; ok {
					delete(unmatched, key)
					continue
				}
				rs := domain.AnalysisRunReadset{
					ID:            domain.NewID(domain.PrefixReadset),
					RGID:          rsSpec.RGID,
					AnalysisRunID: ar.ID,
					LibraryID:     lib.LibraryID,
					LibraryOID:    lib.ID,
				}
				if err := tx.CreateAnalysisRunReadset(ctx, rs); err != nil {
					return fmt.Errorf("link readset %s: %w", rsSpec.RGID, err)
				}
			}
		}
		if len(unmatched) > 0 {
			var missing []string
			for key := range unmatched {
				missing = append(missing, key)
			}
			return fmt.Errorf("%w: %d previously linked readsets absent from finalize event: %s",
				ingest.ErrValidation, len(unmatched), strings.Join(missing, ", "))
		}

		state := domain.AnalysisRunState{
			ID:            domain.NewID(domain.PrefixAnalysisRunState),
			AnalysisRunID: ar.ID,
			Status:        domain.StatusReady,
			Timestamp:     ev.Timestamp,
			Comment:       ev.Comment,
		}
		if err := tx.AppendAnalysisRunState(ctx, state); err != nil {
			return fmt.Errorf("append ready state: %w", err)
		}

		workflows, err = tx.ListAnalysisWorkflows(ctx, ar.AnalysisID)
		if err != nil {
			return fmt.Errorf("list analysis workflows: %w", err)
		}
		readsets, err = tx.ListAnalysisRunReadsets(ctx, ar.ID)
		if err != nil {
			return fmt.Errorf("list readsets: %w", err)
		}
		run = ar
		libraries = linked
		event = buildAnalysisRunStateChange(ar, state, linked, readsets, ev.ComputeEnv, ev.StorageEnv)
		return nil
	})
	if err != nil {
		s.countError(err)
		return AnalysisRunStateChange{}, err
	}
	s.emit(ctx, event)
	if err := s.fanOut(ctx, run, workflows, libraries, readsets, ev.ComputeEnv, ev.StorageEnv); err != nil {
		return event, err
	}
	return event, nil
}

// fanOut creates a DRAFT workflow run per bound workflow, routed through the
// normal run ingestion path so each fan-out emits its own canonical event.
func (s *Service) fanOut(ctx context.Context, ar domain.AnalysisRun, workflows []domain.Workflow,
	libraries []domain.Library, readsets []domain.AnalysisRunReadset, computeEnv, storageEnv string) error {

	byLibrary := make(map[string][]ingest.ReadsetSpec)
	for _, rs := range readsets {
		byLibrary[rs.LibraryOID] = append(byLibrary[rs.LibraryOID], ingest.ReadsetSpec{ID: rs.ID, RGID: rs.RGID})
	}
	var libSpecs []ingest.LibrarySpec
	for _, lib := range libraries {
		libSpecs = append(libSpecs, ingest.LibrarySpec{
			ID:        lib.ID,
			LibraryID: lib.LibraryID,
			Readsets:  byLibrary[lib.ID],
		})
	}
	now := time.Now().UTC()
	for _, wf := range workflows {
		portalRunID := domain.NewPortalRunID()
		ev := ingest.RunEvent{
			PortalRunID:   portalRunID,
			RunName:       s.runName(wf, portalRunID),
			Timestamp:     now,
			Status:        domain.StatusDraft,
			Workflow:      ingest.WorkflowSpec{ID: wf.ID, Name: wf.Name, Version: wf.Version, Engine: wf.ExecutionEngine},
			Libraries:     libSpecs,
			ComputeEnv:    computeEnv,
			StorageEnv:    storageEnv,
			AnalysisRunID: ar.ID,
		}
		if _, err := s.runs.ProcessRunEvent(ctx, ev); err != nil {
			return fmt.Errorf("fan out %s: %w", wf.Name, err)
		}
		s.log.InfoContext(ctx, "workflow run fanned out",
			slog.String("analysis_run_id", ar.ID),
			slog.String("workflow", wf.Name),
			slog.String("portal_run_id", portalRunID),
		)
	}
	return nil
}

func (s *Service) runName(wf domain.Workflow, portalRunID string) string {
	version := strings.ReplaceAll(wf.Version, ".", "-")
	return s.runNamePrefix + "--" + wf.Name + "--" + version + "--" + portalRunID
}

// resolveContexts maps environment names to RunContext ids. With
// createMissing false a missing context is a NotFound failure.
func (s *Service) resolveContexts(ctx context.Context, tx repo.Store, computeEnv, storageEnv string,
	createMissing bool) (string, string, error) {
	resolve := func(name, usecase string) (string, error) {
		if name == "" {
			return "", nil
		}
		rc, err := tx.GetRunContextByKey(ctx, name, usecase)
		if err == nil {
			return rc.ID, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("lookup %s context: %w", usecase, err)
		}
		if !createMissing {
			return "", fmt.Errorf("%s context %q: %w", usecase, name, repo.ErrNotFound)
		}
		rc = domain.RunContext{
			ID:      domain.NewID(domain.PrefixRunContext),
			Name:    name,
			Usecase: usecase,
			Status:  domain.ContextActive,
		}
		if err := tx.CreateRunContext(ctx, rc); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				rc, err = tx.GetRunContextByKey(ctx, name, usecase)
				if err != nil {
					return "", fmt.Errorf("refetch %s context: %w", usecase, err)
				}
				return rc.ID, nil
			}
			return "", fmt.Errorf("create %s context: %w", usecase, err)
		}
		return rc.ID, nil
	}
	computeID, err := resolve(computeEnv, domain.UsecaseCompute)
	if err != nil {
		return "", "", err
	}
	storageID, err := resolve(storageEnv, domain.UsecaseStorage)
	if err != nil {
		return "", "", err
	}
	return computeID, storageID, nil
}

// associateLibraries links libraries and readsets to a freshly drafted run.
func (s *Service) associateLibraries(ctx context.Context, tx repo.Store, analysisRunID string,
	specs []ingest.LibrarySpec) ([]domain.Library, []domain.AnalysisRunReadset, error) {

	var libs []domain.Library
	var readsets []domain.AnalysisRunReadset
	for _, spec := range specs {
		lib, err := resolveLibrary(ctx, tx, spec)
		if err != nil {
			return nil, nil, err
		}
		if err := tx.LinkAnalysisRunLibrary(ctx, analysisRunID, lib.ID); err != nil {
			return nil, nil, fmt.Errorf("link library %s: %w", lib.LibraryID, err)
		}
		libs = append(libs, lib)
		for _, rsSpec := range spec.Readsets {
			rs := domain.AnalysisRunReadset{
				ID:            domain.NewID(domain.PrefixReadset),
				RGID:          rsSpec.RGID,
				AnalysisRunID: analysisRunID,
				LibraryID:     lib.LibraryID,
				LibraryOID:    lib.ID,
			}
			if err := tx.CreateAnalysisRunReadset(ctx, rs); err != nil {
				return nil, nil, fmt.Errorf("link readset %s: %w", rsSpec.RGID, err)
			}
			readsets = append(readsets, rs)
		}
	}
	return libs, readsets, nil
}

func resolveLibrary(ctx context.Context, tx repo.Store, spec ingest.LibrarySpec) (domain.Library, error) {
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
		return domain.Library{}, fmt.Errorf("%w: library id is required", ingest.ErrSchema)
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

func (s *Service) emit(ctx context.Context, event AnalysisRunStateChange) {
	detail, err := json.Marshal(event)
	if err != nil {
		s.log.ErrorContext(ctx, "encode analysis run event", slog.String("error", err.Error()))
		return
	}
	if err := s.publisher.Publish(ctx, EventTypeAnalysisRunStateChange, detail); err != nil {
		s.log.ErrorContext(ctx, "publish analysis run event",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		s.countError(err)
		return
	}
	if s.metrics != nil {
		s.metrics.EventsEmitted.WithLabelValues(EventTypeAnalysisRunStateChange).Inc()
	}
	s.log.InfoContext(ctx, "analysis run event emitted",
		slog.String("event_id", event.ID),
		slog.String("analysis_run", event.AnalysisRun.Name),
		slog.String("status", event.Status),
	)
}

func (s *Service) countError(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventErrors.WithLabelValues(ingest.ClassifyError(err)).Inc()
}
