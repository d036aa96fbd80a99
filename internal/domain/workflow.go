package domain

import (
	"errors"
	"strings"
	"time"
)

// Known execution engines. The column is free text; these are the values
// currently seen in the wild.
const (
	EngineUnknown  = "Unknown"
	EngineICA      = "ICA"
	EngineAWSBatch = "AWS_BATCH"
	EngineAWSECS   = "AWS_ECS"
)

// PipelineIDUnknown is the placeholder external pipeline id assigned when a
// workflow is created on the fly from an inbound event.
const PipelineIDUnknown = "Unknown"

// Workflow is a registered pipeline definition. Natural key:
// (Name, Version, ExecutionEngine).
type Workflow struct {
	ID                        string
	Name                      string
	Version                   string
	ExecutionEngine           string
	ExecutionEnginePipelineID string
}

func (w Workflow) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return errors.New("workflow id is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workflow name is required")
	}
	if strings.TrimSpace(w.Version) == "" {
		return errors.New("workflow version is required")
	}
	if strings.TrimSpace(w.ExecutionEngine) == "" {
		return errors.New("execution engine is required")
	}
	return nil
}

// WorkflowRun is one execution instance of a Workflow. Natural key:
// PortalRunID (globally unique, supplied by the execution engine).
type WorkflowRun struct {
	ID            string
	PortalRunID   string
	Name          string
	ExecutionID   string
	Comment       string
	WorkflowID    string
	AnalysisRunID string
}

func (r WorkflowRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.PortalRunID) == "" {
		return errors.New("portal run id is required")
	}
	if strings.TrimSpace(r.WorkflowID) == "" {
		return errors.New("workflow id is required")
	}
	return nil
}

// AssociationActive is the status stamped on new library associations.
const AssociationActive = "ACTIVE"

// LibraryAssociation links a run to a library. Set once at run creation,
// immutable afterwards.
type LibraryAssociation struct {
	ID              string
	WorkflowRunID   string
	LibraryID       string
	AssociationDate time.Time
	Status          string
}
