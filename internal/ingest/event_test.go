package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/seqportal/runhub/internal/domain"
)

func TestParseRunUpdate(t *testing.T) {
	raw := []byte(`{
		"portalRunId": "20260301abcd1234",
		"runName": "umccr--wgts-qc--1-0-0--20260301abcd1234",
		"timestamp": "2026-03-01T10:00:00Z",
		"status": "running",
		"workflow": {"id": "wfl.01AAA", "name": "wgts-qc", "version": "1.0.0", "executionEngine": "ICA"},
		"libraries": [
			{"id": "lib.01J5M2J44HFJ9424G7074NKTGN", "libraryId": "L2400001",
			 "readsets": [{"id": "rds.01J5M2J44HFJ9424G7074NKTGM", "rgid": "AAGC.4.240229"}]}
		],
		"payload": {"version": "0.1.0", "data": {"k": 1}},
		"computeEnv": "research",
		"storageEnv": "archive",
		"analysisRun": {"id": "anr.01J5M2J44HFJ9424G7074NKTGQ"}
	}`)
	ev, err := ParseRunUpdate(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.PortalRunID != "20260301abcd1234" {
		t.Fatalf("portal run id = %q", ev.PortalRunID)
	}
	if ev.Workflow.Engine != domain.EngineICA {
		t.Fatalf("engine = %q", ev.Workflow.Engine)
	}
	if !ev.Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", ev.Timestamp)
	}
	if len(ev.Libraries) != 1 || ev.Libraries[0].ID != "01J5M2J44HFJ9424G7074NKTGN" {
		t.Fatalf("library id must be sanitized to the bare ULID, got %+v", ev.Libraries)
	}
	if len(ev.Libraries[0].Readsets) != 1 || ev.Libraries[0].Readsets[0].RGID != "AAGC.4.240229" {
		t.Fatalf("readsets = %+v", ev.Libraries[0].Readsets)
	}
	if ev.Payload == nil || string(ev.Payload.Data) != `{"k": 1}` {
		t.Fatalf("payload = %+v", ev.Payload)
	}
	if ev.AnalysisRunID != "01J5M2J44HFJ9424G7074NKTGQ" {
		t.Fatalf("analysis run id = %q", ev.AnalysisRunID)
	}
}

func TestParseRunUpdateMissingEngineDefaultsUnknown(t *testing.T) {
	raw := []byte(`{"portalRunId":"1234","status":"DRAFT","workflow":{"name":"qc","version":"1.0"}}`)
	ev, err := ParseRunUpdate(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Workflow.Engine != domain.EngineUnknown {
		t.Fatalf("engine = %q, want Unknown", ev.Workflow.Engine)
	}
}

func TestParseRunUpdateSchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing portal run id", `{"status":"DRAFT","workflow":{"name":"qc","version":"1.0"}}`},
		{"missing status", `{"portalRunId":"1234","workflow":{"name":"qc","version":"1.0"}}`},
		{"missing workflow version", `{"portalRunId":"1234","status":"DRAFT","workflow":{"name":"qc"}}`},
		{"bad timestamp", `{"portalRunId":"1234","status":"DRAFT","timestamp":"yesterday","workflow":{"name":"qc","version":"1.0"}}`},
		{"not json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRunUpdate([]byte(tc.raw))
			if !errors.Is(err, ErrSchema) {
				t.Fatalf("err = %v, want ErrSchema", err)
			}
		})
	}
}

func TestParseLegacyRunStateChange(t *testing.T) {
	raw := []byte(`{
		"portalRunId": "1234",
		"executionId": "exec-9",
		"timestamp": "2026-03-01T10:00:00Z",
		"status": "in-progress",
		"workflowName": "bcl-convert",
		"workflowVersion": "4.2.7",
		"workflowRunName": "umccr--bcl-convert--4-2-7--1234",
		"linkedLibraries": [{"id": "lib.01J5M2J44HFJ9424G7074NKTGN", "libraryId": "L2400001"}]
	}`)
	ev, err := ParseLegacyRunStateChange(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Workflow.Engine != domain.EngineUnknown {
		t.Fatalf("legacy events resolve against the Unknown engine, got %q", ev.Workflow.Engine)
	}
	if ev.RunName != "umccr--bcl-convert--4-2-7--1234" {
		t.Fatalf("run name = %q", ev.RunName)
	}
	if domain.NormalizeStatus(ev.Status) != domain.StatusRunning {
		t.Fatalf("status %q must normalize to RUNNING", ev.Status)
	}
	if len(ev.Libraries) != 1 || ev.Libraries[0].LibraryID != "L2400001" {
		t.Fatalf("libraries = %+v", ev.Libraries)
	}
}

func TestParseLegacyRequiresWorkflowNameAndVersion(t *testing.T) {
	for _, raw := range []string{
		`{"portalRunId":"1234","status":"DRAFT","workflowVersion":"1.0"}`,
		`{"portalRunId":"1234","status":"DRAFT","workflowName":"qc"}`,
	} {
		if _, err := ParseLegacyRunStateChange([]byte(raw)); !errors.Is(err, ErrSchema) {
			t.Fatalf("err = %v, want ErrSchema for %s", err, raw)
		}
	}
}

func TestParseAnalysisRunUpdate(t *testing.T) {
	raw := []byte(`{
		"name": "cohort-2026-03",
		"status": "draft",
		"timestamp": "2026-03-01T10:00:00Z",
		"analysis": {"id": "ana.01J5M2J44HFJ9424G7074NKTGP", "name": "wgts"},
		"libraries": [{"libraryId": "L2400001"}],
		"computeEnv": "research",
		"storageEnv": "archive"
	}`)
	ev, err := ParseAnalysisRunUpdate(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Status != domain.StatusDraft {
		t.Fatalf("status = %q", ev.Status)
	}
	if ev.AnalysisID != "01J5M2J44HFJ9424G7074NKTGP" {
		t.Fatalf("analysis id = %q", ev.AnalysisID)
	}
	if ev.AnalysisName != "wgts" {
		t.Fatalf("analysis name = %q", ev.AnalysisName)
	}
}

func TestParseAnalysisRunUpdateRejectsOtherStatuses(t *testing.T) {
	raw := []byte(`{"name":"x","status":"RUNNING","analysis":{"id":"ana.01J5M2J44HFJ9424G7074NKTGP"}}`)
	if _, err := ParseAnalysisRunUpdate(raw); !errors.Is(err, ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}
