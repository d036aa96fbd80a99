package domain

import (
	"errors"
	"strings"
	"time"
)

// Analysis is a pre-registered analysis definition binding one or more
// Workflows. It must exist before an AnalysisRun can reference it.
type Analysis struct {
	ID      string
	Name    string
	Version string
}

// AnalysisRun tracks the lifecycle of one analysis execution from DRAFT to
// READY. Natural key: Name (unique while in DRAFT).
type AnalysisRun struct {
	ID               string
	Name             string
	Comment          string
	AnalysisID       string
	ComputeContextID string
	StorageContextID string
}

func (r AnalysisRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("analysis run id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("analysis run name is required")
	}
	if strings.TrimSpace(r.AnalysisID) == "" {
		return errors.New("analysis id is required")
	}
	return nil
}

// AnalysisRunState mirrors State for the analysis run history.
// (AnalysisRunID, Status, Timestamp) is unique.
type AnalysisRunState struct {
	ID            string
	AnalysisRunID string
	Status        string
	Timestamp     time.Time
	Comment       string
}

func (s AnalysisRunState) IsTerminal() bool { return IsTerminalStatus(s.Status) }
func (s AnalysisRunState) IsDraft() bool    { return IsDraftStatus(s.Status) }
func (s AnalysisRunState) IsReady() bool    { return IsReadyStatus(s.Status) }

// LatestAnalysisRunState picks the state with the maximum timestamp.
func LatestAnalysisRunState(states []AnalysisRunState) (AnalysisRunState, bool) {
	if len(states) == 0 {
		return AnalysisRunState{}, false
	}
	latest := states[0]
	for _, s := range states[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest, true
}

// AnalysisRunReadset associates a readset with an analysis run and the
// library it was sequenced from. Every readset attached to a finalized run
// must belong to one of the run's linked libraries.
type AnalysisRunReadset struct {
	ID            string
	RGID          string
	AnalysisRunID string
	LibraryID     string
	LibraryOID    string
}
