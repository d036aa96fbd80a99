// Package repo defines the repository interfaces the services operate
// against, storage-agnostic. The postgres subpackage implements them;
// service tests implement them over maps.
package repo

import (
	"context"
	"errors"

	"github.com/seqportal/runhub/internal/domain"
)

var (
	// ErrNotFound marks a lookup miss on a required entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a create against a natural key that already exists.
	ErrConflict = errors.New("already exists")
)

// WorkflowRepository resolves workflows by natural key.
type WorkflowRepository interface {
	GetWorkflowByNaturalKey(ctx context.Context, name, version, engine string) (domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	// CreateWorkflow returns ErrConflict when the natural key is taken.
	CreateWorkflow(ctx context.Context, wf domain.Workflow) error
}

// RunRepository resolves workflow runs by portal run id.
type RunRepository interface {
	GetRunByPortalRunID(ctx context.Context, portalRunID string) (domain.WorkflowRun, error)
	GetRun(ctx context.Context, id string) (domain.WorkflowRun, error)
	// CreateRun returns ErrConflict when the portal run id is taken.
	CreateRun(ctx context.Context, run domain.WorkflowRun) error
}

// StateRepository manages the append-only run state history.
type StateRepository interface {
	ListRunStates(ctx context.Context, runID string) ([]domain.State, error)
	GetRunState(ctx context.Context, runID, stateID string) (domain.State, error)
	AppendRunState(ctx context.Context, state domain.State) error
	// UpdateRunStateComment is the only permitted mutation of a state.
	UpdateRunStateComment(ctx context.Context, stateID, comment string) error
}

// PayloadRepository stores opaque payload documents.
type PayloadRepository interface {
	CreatePayload(ctx context.Context, p domain.Payload) error
	GetPayload(ctx context.Context, id string) (domain.Payload, error)
}

// LibraryRepository mirrors externally owned libraries and readsets and
// their run associations.
type LibraryRepository interface {
	GetLibrary(ctx context.Context, id string) (domain.Library, error)
	CreateLibrary(ctx context.Context, lib domain.Library) error
	CreateLibraryAssociation(ctx context.Context, assoc domain.LibraryAssociation) error
	ListRunLibraries(ctx context.Context, runID string) ([]domain.Library, error)

	GetReadsetByKey(ctx context.Context, libraryOID, rgid string) (domain.Readset, error)
	CreateReadset(ctx context.Context, rs domain.Readset) error
	LinkRunReadset(ctx context.Context, runID, readsetID string) error
	ListRunReadsets(ctx context.Context, runID string) ([]domain.Readset, error)
}

// RunContextRepository resolves compute/storage environments and their run
// associations.
type RunContextRepository interface {
	GetRunContextByKey(ctx context.Context, name, usecase string) (domain.RunContext, error)
	CreateRunContext(ctx context.Context, rc domain.RunContext) error
	LinkRunContext(ctx context.Context, runID, contextID string) error
	ListRunContexts(ctx context.Context, runID string) ([]domain.RunContext, error)
}

// AnalysisRepository reads pre-registered analyses and their workflow
// bindings.
type AnalysisRepository interface {
	GetAnalysis(ctx context.Context, id string) (domain.Analysis, error)
	CreateAnalysis(ctx context.Context, a domain.Analysis) error
	LinkAnalysisWorkflow(ctx context.Context, analysisID, workflowID string) error
	ListAnalysisWorkflows(ctx context.Context, analysisID string) ([]domain.Workflow, error)
}

// AnalysisRunRepository manages analysis runs, their histories and
// associations.
type AnalysisRunRepository interface {
	GetAnalysisRun(ctx context.Context, id string) (domain.AnalysisRun, error)
	GetAnalysisRunByName(ctx context.Context, name string) (domain.AnalysisRun, error)
	// CreateAnalysisRun returns ErrConflict when the name is taken.
	CreateAnalysisRun(ctx context.Context, ar domain.AnalysisRun) error
	SetAnalysisRunContexts(ctx context.Context, id, computeContextID, storageContextID string) error

	ListAnalysisRunStates(ctx context.Context, id string) ([]domain.AnalysisRunState, error)
	AppendAnalysisRunState(ctx context.Context, state domain.AnalysisRunState) error

	LinkAnalysisRunLibrary(ctx context.Context, id, libraryID string) error
	ListAnalysisRunLibraries(ctx context.Context, id string) ([]domain.Library, error)

	CreateAnalysisRunReadset(ctx context.Context, rs domain.AnalysisRunReadset) error
	ListAnalysisRunReadsets(ctx context.Context, id string) ([]domain.AnalysisRunReadset, error)
}

// Store aggregates all repositories backing one unit of work.
type Store interface {
	WorkflowRepository
	RunRepository
	StateRepository
	PayloadRepository
	LibraryRepository
	RunContextRepository
	AnalysisRepository
	AnalysisRunRepository
}

// TxStore runs a unit of work atomically. Fn sees a Store scoped to the
// transaction; a returned error rolls everything back.
type TxStore interface {
	Store
	InTx(ctx context.Context, fn func(Store) error) error
}
