package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seqportal/runhub/internal/domain"
)

// Inbound event kinds, the transport's explicit discriminator.
const (
	KindRunUpdate         = "WorkflowRunUpdate"
	KindLegacyStateChange = "WorkflowRunStateChange"
	KindAnalysisRunUpdate = "AnalysisRunUpdate"
)

// ReadsetSpec describes one read group attached to a library in an inbound
// event. ID may arrive prefixed or bare.
type ReadsetSpec struct {
	ID   string
	RGID string
}

// LibrarySpec describes one linked library in an inbound event.
type LibrarySpec struct {
	ID        string
	LibraryID string
	Readsets  []ReadsetSpec
}

// RunEvent is the internal record all workflow-run shaped inbound variants
// normalize into before the engine acts.
type RunEvent struct {
	PortalRunID   string
	RunName       string
	ExecutionID   string
	Timestamp     time.Time
	Status        string
	Workflow      WorkflowSpec
	Libraries     []LibrarySpec
	Payload       *PayloadSpec
	ComputeEnv    string
	StorageEnv    string
	AnalysisRunID string
}

type WorkflowSpec struct {
	ID      string
	Name    string
	Version string
	Engine  string
}

type PayloadSpec struct {
	Version string
	Data    json.RawMessage
}

// AnalysisRunEvent is the internal record for the analysis-run-update shape.
type AnalysisRunEvent struct {
	Name         string
	Status       string
	Timestamp    time.Time
	Comment      string
	AnalysisID   string
	AnalysisName string
	Libraries    []LibrarySpec
	ComputeEnv   string
	StorageEnv   string
}

type wireReadset struct {
	ID   string `json:"id"`
	RGID string `json:"rgid"`
}

type wireLibrary struct {
	ID        string        `json:"id"`
	LibraryID string        `json:"libraryId"`
	Readsets  []wireReadset `json:"readsets"`
}

type wirePayload struct {
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type wireRunUpdate struct {
	PortalRunID string `json:"portalRunId"`
	RunName     string `json:"runName"`
	ExecutionID string `json:"executionId"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	Workflow    struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Version         string `json:"version"`
		ExecutionEngine string `json:"executionEngine"`
	} `json:"workflow"`
	Libraries   []wireLibrary `json:"libraries"`
	Payload     *wirePayload  `json:"payload"`
	ComputeEnv  string        `json:"computeEnv"`
	StorageEnv  string        `json:"storageEnv"`
	AnalysisRun *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"analysisRun"`
}

// ParseRunUpdate decodes the current structured shape.
func ParseRunUpdate(raw []byte) (RunEvent, error) {
	var w wireRunUpdate
	if err := json.Unmarshal(raw, &w); err != nil {
		return RunEvent{}, fmt.Errorf("%w: decode run update: %v", ErrSchema, err)
	}
	if strings.TrimSpace(w.PortalRunID) == "" {
		return RunEvent{}, fmt.Errorf("%w: portalRunId is required", ErrSchema)
	}
	if strings.TrimSpace(w.Status) == "" {
		return RunEvent{}, fmt.Errorf("%w: status is required", ErrSchema)
	}
	if strings.TrimSpace(w.Workflow.Name) == "" || strings.TrimSpace(w.Workflow.Version) == "" {
		return RunEvent{}, fmt.Errorf("%w: workflow name and version are required", ErrSchema)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return RunEvent{}, err
	}
	ev := RunEvent{
		PortalRunID: strings.TrimSpace(w.PortalRunID),
		RunName:     strings.TrimSpace(w.RunName),
		ExecutionID: strings.TrimSpace(w.ExecutionID),
		Timestamp:   ts,
		Status:      w.Status,
		Workflow: WorkflowSpec{
			ID:      strings.TrimSpace(w.Workflow.ID),
			Name:    strings.TrimSpace(w.Workflow.Name),
			Version: strings.TrimSpace(w.Workflow.Version),
			Engine:  defaultEngine(w.Workflow.ExecutionEngine),
		},
		Libraries:  mapLibraries(w.Libraries),
		ComputeEnv: strings.TrimSpace(w.ComputeEnv),
		StorageEnv: strings.TrimSpace(w.StorageEnv),
	}
	if w.Payload != nil {
		ev.Payload = &PayloadSpec{Version: strings.TrimSpace(w.Payload.Version), Data: w.Payload.Data}
	}
	if w.AnalysisRun != nil {
		ev.AnalysisRunID = domain.SanitizeID(w.AnalysisRun.ID)
	}
	return ev, nil
}

type wireLegacy struct {
	PortalRunID     string `json:"portalRunId"`
	ExecutionID     string `json:"executionId"`
	Timestamp       string `json:"timestamp"`
	Status          string `json:"status"`
	WorkflowName    string `json:"workflowName"`
	WorkflowVersion string `json:"workflowVersion"`
	WorkflowRunName string `json:"workflowRunName"`
	LinkedLibraries []struct {
		ID        string `json:"id"`
		LibraryID string `json:"libraryId"`
	} `json:"linkedLibraries"`
	Payload *wirePayload `json:"payload"`
}

// ParseLegacyRunStateChange decodes the legacy flat shape. It carries no
// workflow engine or analysis-run fields; the workflow resolves against the
// Unknown engine.
func ParseLegacyRunStateChange(raw []byte) (RunEvent, error) {
	var w wireLegacy
	if err := json.Unmarshal(raw, &w); err != nil {
		return RunEvent{}, fmt.Errorf("%w: decode legacy state change: %v", ErrSchema, err)
	}
	if strings.TrimSpace(w.PortalRunID) == "" {
		return RunEvent{}, fmt.Errorf("%w: portalRunId is required", ErrSchema)
	}
	if strings.TrimSpace(w.Status) == "" {
		return RunEvent{}, fmt.Errorf("%w: status is required", ErrSchema)
	}
	if strings.TrimSpace(w.WorkflowName) == "" || strings.TrimSpace(w.WorkflowVersion) == "" {
		return RunEvent{}, fmt.Errorf("%w: workflowName and workflowVersion are required", ErrSchema)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return RunEvent{}, err
	}
	ev := RunEvent{
		PortalRunID: strings.TrimSpace(w.PortalRunID),
		RunName:     strings.TrimSpace(w.WorkflowRunName),
		ExecutionID: strings.TrimSpace(w.ExecutionID),
		Timestamp:   ts,
		Status:      w.Status,
		Workflow: WorkflowSpec{
			Name:    strings.TrimSpace(w.WorkflowName),
			Version: strings.TrimSpace(w.WorkflowVersion),
			Engine:  domain.EngineUnknown,
		},
	}
	for _, lib := range w.LinkedLibraries {
		ev.Libraries = append(ev.Libraries, LibrarySpec{
			ID:        domain.SanitizeID(lib.ID),
			LibraryID: strings.TrimSpace(lib.LibraryID),
		})
	}
	if w.Payload != nil {
		ev.Payload = &PayloadSpec{Version: strings.TrimSpace(w.Payload.Version), Data: w.Payload.Data}
	}
	return ev, nil
}

type wireAnalysisRunUpdate struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Comment   string `json:"comment"`
	Analysis  *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"analysis"`
	Libraries  []wireLibrary `json:"libraries"`
	ComputeEnv string        `json:"computeEnv"`
	StorageEnv string        `json:"storageEnv"`
}

// ParseAnalysisRunUpdate decodes the analysis-run-update shape. Only DRAFT
// and READY statuses are legal here.
func ParseAnalysisRunUpdate(raw []byte) (AnalysisRunEvent, error) {
	var w wireAnalysisRunUpdate
	if err := json.Unmarshal(raw, &w); err != nil {
		return AnalysisRunEvent{}, fmt.Errorf("%w: decode analysis run update: %v", ErrSchema, err)
	}
	if strings.TrimSpace(w.Name) == "" {
		return AnalysisRunEvent{}, fmt.Errorf("%w: name is required", ErrSchema)
	}
	status := domain.NormalizeStatus(w.Status)
	if status != domain.StatusDraft && status != domain.StatusReady {
		return AnalysisRunEvent{}, fmt.Errorf("%w: analysis run status must be DRAFT or READY, got %q", ErrSchema, w.Status)
	}
	if w.Analysis == nil || strings.TrimSpace(w.Analysis.ID) == "" {
		return AnalysisRunEvent{}, fmt.Errorf("%w: analysis reference is required", ErrSchema)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return AnalysisRunEvent{}, err
	}
	return AnalysisRunEvent{
		Name:         strings.TrimSpace(w.Name),
		Status:       status,
		Timestamp:    ts,
		Comment:      strings.TrimSpace(w.Comment),
		AnalysisID:   domain.SanitizeID(w.Analysis.ID),
		AnalysisName: strings.TrimSpace(w.Analysis.Name),
		Libraries:    mapLibraries(w.Libraries),
		ComputeEnv:   strings.TrimSpace(w.ComputeEnv),
		StorageEnv:   strings.TrimSpace(w.StorageEnv),
	}, nil
}

func mapLibraries(libs []wireLibrary) []LibrarySpec {
	var out []LibrarySpec
	for _, lib := range libs {
		spec := LibrarySpec{
			ID:        domain.SanitizeID(lib.ID),
			LibraryID: strings.TrimSpace(lib.LibraryID),
		}
		for _, rs := range lib.Readsets {
			spec.Readsets = append(spec.Readsets, ReadsetSpec{
				ID:   domain.SanitizeID(rs.ID),
				RGID: strings.TrimSpace(rs.RGID),
			})
		}
		out = append(out, spec)
	}
	return out
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q is not RFC3339", ErrSchema, raw)
	}
	return ts.UTC(), nil
}

func defaultEngine(engine string) string {
	engine = strings.TrimSpace(engine)
	if engine == "" {
		return domain.EngineUnknown
	}
	return engine
}
