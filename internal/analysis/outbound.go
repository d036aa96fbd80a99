package analysis

import (
	"time"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/hashing"
	"github.com/seqportal/runhub/internal/ingest"
)

// EventTypeAnalysisRunStateChange is the canonical outbound event type for
// analysis run transitions.
const EventTypeAnalysisRunStateChange = "AnalysisRunStateChange"

// AnalysisRunStateChangeVersion tags the outbound schema.
const AnalysisRunStateChangeVersion = "0.0.1"

type AnalysisRunStateChange struct {
	ID          string                `json:"id"`
	Version     string                `json:"version"`
	Timestamp   time.Time             `json:"timestamp"`
	AnalysisRun ingest.AnalysisRunRef `json:"analysisRun"`
	Status      string                `json:"status"`
	Libraries   []ingest.LibraryRef   `json:"libraries,omitempty"`
	ComputeEnv  string                `json:"computeEnv,omitempty"`
	StorageEnv  string                `json:"storageEnv,omitempty"`
}

// Identity computes the dedup id; an existing non-empty id is trusted.
func (e AnalysisRunStateChange) Identity() string {
	if e.ID != "" {
		return e.ID
	}
	keywords := []string{
		e.Version,
		e.AnalysisRun.ID,
		e.AnalysisRun.Name,
		e.Status,
		e.ComputeEnv,
		e.StorageEnv,
	}
	for _, lib := range e.Libraries {
		keywords = append(keywords, lib.ID)
		for _, rs := range lib.Readsets {
			keywords = append(keywords, rs.ID)
		}
	}
	return hashing.IdentityDigest(keywords)
}

func buildAnalysisRunStateChange(ar domain.AnalysisRun, state domain.AnalysisRunState,
	libs []domain.Library, readsets []domain.AnalysisRunReadset, computeEnv, storageEnv string) AnalysisRunStateChange {

	event := AnalysisRunStateChange{
		Version:     AnalysisRunStateChangeVersion,
		Timestamp:   state.Timestamp,
		AnalysisRun: ingest.AnalysisRunRef{ID: ar.ID, Name: ar.Name},
		Status:      domain.NormalizeStatus(state.Status),
		ComputeEnv:  computeEnv,
		StorageEnv:  storageEnv,
	}
	byLibrary := make(map[string][]ingest.ReadsetRef)
	for _, rs := range readsets {
		byLibrary[rs.LibraryOID] = append(byLibrary[rs.LibraryOID], ingest.ReadsetRef{ID: rs.ID, RGID: rs.RGID})
	}
	for _, lib := range libs {
		event.Libraries = append(event.Libraries, ingest.LibraryRef{
			ID:        lib.ID,
			LibraryID: lib.LibraryID,
			Readsets:  byLibrary[lib.ID],
		})
	}
	event.ID = event.Identity()
	return event
}
