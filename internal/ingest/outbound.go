package ingest

import (
	"encoding/json"
	"time"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/hashing"
)

// EventTypeRunStateChange is the canonical outbound event type for workflow
// run transitions.
const EventTypeRunStateChange = "WorkflowRunStateChange"

// RunStateChangeVersion tags the outbound schema.
const RunStateChangeVersion = "0.0.1"

type RunStateChange struct {
	ID          string          `json:"id"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	RunID       string          `json:"runId"`
	PortalRunID string          `json:"portalRunId"`
	RunName     string          `json:"runName,omitempty"`
	Workflow    WorkflowRef     `json:"workflow"`
	AnalysisRun *AnalysisRunRef `json:"analysisRun,omitempty"`
	Libraries   []LibraryRef    `json:"libraries,omitempty"`
	Payload     *PayloadRef     `json:"payload,omitempty"`
	Status      string          `json:"status"`
	ComputeEnv  string          `json:"computeEnv,omitempty"`
	StorageEnv  string          `json:"storageEnv,omitempty"`
}

type WorkflowRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Engine  string `json:"engine"`
}

type AnalysisRunRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type LibraryRef struct {
	ID        string       `json:"id"`
	LibraryID string       `json:"libraryId"`
	Readsets  []ReadsetRef `json:"readsets,omitempty"`
}

type ReadsetRef struct {
	ID   string `json:"id"`
	RGID string `json:"rgid"`
}

type PayloadRef struct {
	ID      string          `json:"id"`
	RefID   string          `json:"refId"`
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Identity computes the deterministic dedup id over the tracked field set.
// A non-empty existing id is trusted and returned unchanged.
func (e RunStateChange) Identity() string {
	if e.ID != "" {
		return e.ID
	}
	keywords := []string{
		e.Version,
		e.RunID,
		e.PortalRunID,
		e.RunName,
		e.Status,
		e.Workflow.ID,
		e.ComputeEnv,
		e.StorageEnv,
	}
	if e.AnalysisRun != nil {
		keywords = append(keywords, e.AnalysisRun.ID)
	}
	for _, lib := range e.Libraries {
		keywords = append(keywords, lib.ID)
		for _, rs := range lib.Readsets {
			keywords = append(keywords, rs.ID)
		}
	}
	return hashing.IdentityDigest(keywords)
}

// buildRunStateChange assembles the canonical event after the transition has
// been persisted.
func buildRunStateChange(run domain.WorkflowRun, wf domain.Workflow, state domain.State,
	payload *domain.Payload, libs []domain.Library, readsets []domain.Readset,
	contexts []domain.RunContext, analysisRun *domain.AnalysisRun) RunStateChange {

	event := RunStateChange{
		Version:     RunStateChangeVersion,
		Timestamp:   state.Timestamp,
		RunID:       run.ID,
		PortalRunID: run.PortalRunID,
		RunName:     run.Name,
		Workflow: WorkflowRef{
			ID:      wf.ID,
			Name:    wf.Name,
			Version: wf.Version,
			Engine:  wf.ExecutionEngine,
		},
		Status: domain.NormalizeStatus(state.Status),
	}
	if analysisRun != nil {
		event.AnalysisRun = &AnalysisRunRef{ID: analysisRun.ID, Name: analysisRun.Name}
	}
	byLibrary := make(map[string][]ReadsetRef)
	for _, rs := range readsets {
		byLibrary[rs.LibraryOID] = append(byLibrary[rs.LibraryOID], ReadsetRef{ID: rs.ID, RGID: rs.RGID})
	}
	for _, lib := range libs {
		event.Libraries = append(event.Libraries, LibraryRef{
			ID:        lib.ID,
			LibraryID: lib.LibraryID,
			Readsets:  byLibrary[lib.ID],
		})
	}
	if payload != nil {
		event.Payload = &PayloadRef{
			ID:      payload.ID,
			RefID:   payload.RefID,
			Version: payload.Version,
			Data:    payload.Data,
		}
	}
	for _, rc := range contexts {
		if rc.Status != domain.ContextActive {
			continue
		}
		switch rc.Usecase {
		case domain.UsecaseCompute:
			event.ComputeEnv = rc.Name
		case domain.UsecaseStorage:
			event.StorageEnv = rc.Name
		}
	}
	event.ID = event.Identity()
	return event
}
