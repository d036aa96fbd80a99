package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/repo"
)

// fakeStore is an in-memory repo.TxStore. Natural-key uniqueness is
// enforced the way the database would, by returning repo.ErrConflict.
type fakeStore struct {
	workflows    map[string]domain.Workflow
	runs         map[string]domain.WorkflowRun
	states       map[string][]domain.State
	payloads     map[string]domain.Payload
	libraries    map[string]domain.Library
	associations map[string][]domain.LibraryAssociation
	readsets     map[string]domain.Readset
	runReadsets  map[string][]string
	contexts     map[string]domain.RunContext
	runContexts  map[string][]string

	analyses          map[string]domain.Analysis
	analysisWorkflows map[string][]string
	analysisRuns      map[string]domain.AnalysisRun
	analysisStates    map[string][]domain.AnalysisRunState
	analysisLibraries map[string][]string
	analysisReadsets  map[string][]domain.AnalysisRunReadset
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workflows:         map[string]domain.Workflow{},
		runs:              map[string]domain.WorkflowRun{},
		states:            map[string][]domain.State{},
		payloads:          map[string]domain.Payload{},
		libraries:         map[string]domain.Library{},
		associations:      map[string][]domain.LibraryAssociation{},
		readsets:          map[string]domain.Readset{},
		runReadsets:       map[string][]string{},
		contexts:          map[string]domain.RunContext{},
		runContexts:       map[string][]string{},
		analyses:          map[string]domain.Analysis{},
		analysisWorkflows: map[string][]string{},
		analysisRuns:      map[string]domain.AnalysisRun{},
		analysisStates:    map[string][]domain.AnalysisRunState{},
		analysisLibraries: map[string][]string{},
		analysisReadsets:  map[string][]domain.AnalysisRunReadset{},
	}
}

func (f *fakeStore) InTx(_ context.Context, fn func(repo.Store) error) error {
	// No rollback; tests only drive paths whose failures happen before
	// writes or assert on the error alone.
	return fn(f)
}

func (f *fakeStore) GetWorkflowByNaturalKey(_ context.Context, name, version, engine string) (domain.Workflow, error) {
	for _, wf := range f.workflows {
		if wf.Name == name && wf.Version == version && wf.ExecutionEngine == engine {
			return wf, nil
		}
	}
	return domain.Workflow{}, repo.ErrNotFound
}

func (f *fakeStore) GetWorkflow(_ context.Context, id string) (domain.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return domain.Workflow{}, repo.ErrNotFound
	}
	return wf, nil
}

func (f *fakeStore) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	if _, err := f.GetWorkflowByNaturalKey(ctx, wf.Name, wf.Version, wf.ExecutionEngine); err == nil {
		return repo.ErrConflict
	}
	f.workflows[wf.ID] = wf
	return nil
}

func (f *fakeStore) GetRunByPortalRunID(_ context.Context, portalRunID string) (domain.WorkflowRun, error) {
	for _, run := range f.runs {
		if run.PortalRunID == portalRunID {
			return run, nil
		}
	}
	return domain.WorkflowRun{}, repo.ErrNotFound
}

func (f *fakeStore) GetRun(_ context.Context, id string) (domain.WorkflowRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return domain.WorkflowRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) CreateRun(ctx context.Context, run domain.WorkflowRun) error {
	if _, err := f.GetRunByPortalRunID(ctx, run.PortalRunID); err == nil {
		return repo.ErrConflict
	}
	f.runs[run.ID] = run
	return nil
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

func (f *fakeStore) CreatePayload(_ context.Context, p domain.Payload) error {
	f.payloads[p.ID] = p
	return nil
}

func (f *fakeStore) GetPayload(_ context.Context, id string) (domain.Payload, error) {
	p, ok := f.payloads[id]
	if !ok {
		return domain.Payload{}, repo.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetLibrary(_ context.Context, id string) (domain.Library, error) {
	lib, ok := f.libraries[id]
	if !ok {
		return domain.Library{}, repo.ErrNotFound
	}
	return lib, nil
}

func (f *fakeStore) CreateLibrary(_ context.Context, lib domain.Library) error {
	if _, ok := f.libraries[lib.ID]; ok {
		return repo.ErrConflict
	}
	f.libraries[lib.ID] = lib
	return nil
}

func (f *fakeStore) CreateLibraryAssociation(_ context.Context, assoc domain.LibraryAssociation) error {
	for _, existing := range f.associations[assoc.WorkflowRunID] {
		if existing.LibraryID == assoc.LibraryID {
			return nil
		}
	}
	f.associations[assoc.WorkflowRunID] = append(f.associations[assoc.WorkflowRunID], assoc)
	return nil
}

func (f *fakeStore) ListRunLibraries(_ context.Context, runID string) ([]domain.Library, error) {
	var libs []domain.Library
	for _, assoc := range f.associations[runID] {
		libs = append(libs, f.libraries[assoc.LibraryID])
	}
	return libs, nil
}

func (f *fakeStore) GetReadsetByKey(_ context.Context, libraryOID, rgid string) (domain.Readset, error) {
	for _, rs := range f.readsets {
		if rs.LibraryOID == libraryOID && rs.RGID == rgid {
			return rs, nil
		}
	}
	return domain.Readset{}, repo.ErrNotFound
}

func (f *fakeStore) CreateReadset(_ context.Context, rs domain.Readset) error {
	f.readsets[rs.ID] = rs
	return nil
}

func (f *fakeStore) LinkRunReadset(_ context.Context, runID, readsetID string) error {
	for _, id := range f.runReadsets[runID] {
		if id == readsetID {
			return nil
		}
	}
	f.runReadsets[runID] = append(f.runReadsets[runID], readsetID)
	return nil
}

func (f *fakeStore) ListRunReadsets(_ context.Context, runID string) ([]domain.Readset, error) {
	var out []domain.Readset
	for _, id := range f.runReadsets[runID] {
		out = append(out, f.readsets[id])
	}
	return out, nil
}

func (f *fakeStore) GetRunContextByKey(_ context.Context, name, usecase string) (domain.RunContext, error) {
	for _, rc := range f.contexts {
		if rc.Name == name && rc.Usecase == usecase {
			return rc, nil
		}
	}
	return domain.RunContext{}, repo.ErrNotFound
}

func (f *fakeStore) CreateRunContext(_ context.Context, rc domain.RunContext) error {
	f.contexts[rc.ID] = rc
	return nil
}

func (f *fakeStore) LinkRunContext(_ context.Context, runID, contextID string) error {
	for _, id := range f.runContexts[runID] {
		if id == contextID {
			return nil
		}
	}
	f.runContexts[runID] = append(f.runContexts[runID], contextID)
	return nil
}

func (f *fakeStore) ListRunContexts(_ context.Context, runID string) ([]domain.RunContext, error) {
	var out []domain.RunContext
	for _, id := range f.runContexts[runID] {
		out = append(out, f.contexts[id])
	}
	return out, nil
}

func (f *fakeStore) GetAnalysis(_ context.Context, id string) (domain.Analysis, error) {
	a, ok := f.analyses[id]
	if !ok {
		return domain.Analysis{}, repo.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) CreateAnalysis(_ context.Context, a domain.Analysis) error {
	if _, ok := f.analyses[a.ID]; ok {
		return repo.ErrConflict
	}
	f.analyses[a.ID] = a
	return nil
}

func (f *fakeStore) LinkAnalysisWorkflow(_ context.Context, analysisID, workflowID string) error {
	f.analysisWorkflows[analysisID] = append(f.analysisWorkflows[analysisID], workflowID)
	return nil
}

func (f *fakeStore) ListAnalysisWorkflows(_ context.Context, analysisID string) ([]domain.Workflow, error) {
	var out []domain.Workflow
	for _, id := range f.analysisWorkflows[analysisID] {
		out = append(out, f.workflows[id])
	}
	return out, nil
}

func (f *fakeStore) GetAnalysisRun(_ context.Context, id string) (domain.AnalysisRun, error) {
	ar, ok := f.analysisRuns[id]
	if !ok {
		return domain.AnalysisRun{}, repo.ErrNotFound
	}
	return ar, nil
}

func (f *fakeStore) GetAnalysisRunByName(_ context.Context, name string) (domain.AnalysisRun, error) {
	for _, ar := range f.analysisRuns {
		if ar.Name == name {
			return ar, nil
		}
	}
	return domain.AnalysisRun{}, repo.ErrNotFound
}

func (f *fakeStore) CreateAnalysisRun(ctx context.Context, ar domain.AnalysisRun) error {
	if _, err := f.GetAnalysisRunByName(ctx, ar.Name); err == nil {
		return repo.ErrConflict
	}
	f.analysisRuns[ar.ID] = ar
	return nil
}

func (f *fakeStore) SetAnalysisRunContexts(_ context.Context, id, computeContextID, storageContextID string) error {
	ar, ok := f.analysisRuns[id]
	if !ok {
		return repo.ErrNotFound
	}
	ar.ComputeContextID = computeContextID
	ar.StorageContextID = storageContextID
	f.analysisRuns[id] = ar
	return nil
}

func (f *fakeStore) ListAnalysisRunStates(_ context.Context, id string) ([]domain.AnalysisRunState, error) {
	return f.analysisStates[id], nil
}

func (f *fakeStore) AppendAnalysisRunState(_ context.Context, state domain.AnalysisRunState) error {
	f.analysisStates[state.AnalysisRunID] = append(f.analysisStates[state.AnalysisRunID], state)
	return nil
}

func (f *fakeStore) LinkAnalysisRunLibrary(_ context.Context, id, libraryID string) error {
	for _, existing := range f.analysisLibraries[id] {
		if existing == libraryID {
			return nil
		}
	}
	f.analysisLibraries[id] = append(f.analysisLibraries[id], libraryID)
	return nil
}

func (f *fakeStore) ListAnalysisRunLibraries(_ context.Context, id string) ([]domain.Library, error) {
	var out []domain.Library
	for _, libID := range f.analysisLibraries[id] {
		out = append(out, f.libraries[libID])
	}
	return out, nil
}

func (f *fakeStore) CreateAnalysisRunReadset(_ context.Context, rs domain.AnalysisRunReadset) error {
	f.analysisReadsets[rs.AnalysisRunID] = append(f.analysisReadsets[rs.AnalysisRunID], rs)
	return nil
}

func (f *fakeStore) ListAnalysisRunReadsets(_ context.Context, id string) ([]domain.AnalysisRunReadset, error) {
	return f.analysisReadsets[id], nil
}

// capturePublisher records emitted events.
type capturePublisher struct {
	types   []string
	details [][]byte
	err     error
}

func (c *capturePublisher) Publish(_ context.Context, eventType string, detail []byte) error {
	if c.err != nil {
		return c.err
	}
	c.types = append(c.types, eventType)
	c.details = append(c.details, detail)
	return nil
}

func newTestService(t *testing.T, store repo.TxStore, pub *capturePublisher) *Service {
	t.Helper()
	svc, err := NewService(store, pub, nil, nil, slog.New(slog.DiscardHandler), time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func runEvent(portalRunID, status string, ts time.Time) RunEvent {
	return RunEvent{
		PortalRunID: portalRunID,
		RunName:     "umccr--wgts-qc--1-0-0--" + portalRunID,
		Timestamp:   ts,
		Status:      status,
		Workflow:    WorkflowSpec{Name: "wgts-qc", Version: "1.0.0", Engine: domain.EngineICA},
	}
}

func TestProcessRunEventCreatesEntities(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)

	ev := runEvent("1234", "DRAFT", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ev.Libraries = []LibrarySpec{{LibraryID: "L2400001", Readsets: []ReadsetSpec{{RGID: "AAGC.4.240229"}}}}
	ev.ComputeEnv = "research"
	ev.StorageEnv = "archive"

	res, err := svc.ProcessRunEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("first event must be accepted")
	}
	if len(store.workflows) != 1 || len(store.runs) != 1 {
		t.Fatalf("want 1 workflow and 1 run, got %d and %d", len(store.workflows), len(store.runs))
	}
	run, err := store.GetRunByPortalRunID(context.Background(), "1234")
	if err != nil {
		t.Fatalf("run lookup: %v", err)
	}
	states := store.states[run.ID]
	if len(states) != 1 || domain.NormalizeStatus(states[0].Status) != domain.StatusDraft {
		t.Fatalf("want one DRAFT state, got %v", states)
	}
	if len(store.associations[run.ID]) != 1 {
		t.Fatalf("want one library association")
	}
	if len(store.runReadsets[run.ID]) != 1 {
		t.Fatalf("want one linked readset")
	}
	if len(store.runContexts[run.ID]) != 2 {
		t.Fatalf("want compute and storage contexts linked")
	}
	if len(pub.types) != 1 || pub.types[0] != EventTypeRunStateChange {
		t.Fatalf("want one emitted event, got %v", pub.types)
	}
}

func TestProcessRunEventAppendsAndEmits(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := svc.ProcessRunEvent(ctx, runEvent("1234", "DRAFT", base)); err != nil {
		t.Fatalf("draft: %v", err)
	}
	res, err := svc.ProcessRunEvent(ctx, runEvent("1234", "READY", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("READY after DRAFT must be accepted")
	}
	if len(store.workflows) != 1 || len(store.runs) != 1 {
		t.Fatalf("re-delivery must not duplicate entities")
	}
	run, _ := store.GetRunByPortalRunID(ctx, "1234")
	if len(store.states[run.ID]) != 2 {
		t.Fatalf("want two states, got %d", len(store.states[run.ID]))
	}
	if len(pub.details) != 2 {
		t.Fatalf("want two emissions, got %d", len(pub.details))
	}
	var emitted RunStateChange
	if err := json.Unmarshal(pub.details[1], &emitted); err != nil {
		t.Fatalf("decode emitted: %v", err)
	}
	if emitted.Status != domain.StatusReady {
		t.Fatalf("emitted status = %q, want READY", emitted.Status)
	}
	if emitted.ID == "" {
		t.Fatalf("emitted event must carry an identity hash")
	}
}

func TestProcessRunEventReplayIsNoOp(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ready := runEvent("1234", "READY", base)
	if _, err := svc.ProcessRunEvent(ctx, ready); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	res, err := svc.ProcessRunEvent(ctx, ready)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Accepted {
		t.Fatalf("replay must be rejected")
	}
	run, _ := store.GetRunByPortalRunID(ctx, "1234")
	if len(store.states[run.ID]) != 1 {
		t.Fatalf("replay must not append a state")
	}
	if len(pub.types) != 1 {
		t.Fatalf("replay must not re-emit, got %d emissions", len(pub.types))
	}
}

func TestProcessRunEventTerminalBlocks(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := svc.ProcessRunEvent(ctx, runEvent("1234", "SUCCEEDED", base)); err != nil {
		t.Fatalf("terminal: %v", err)
	}
	res, err := svc.ProcessRunEvent(ctx, runEvent("1234", "RUNNING", base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("post-terminal: %v", err)
	}
	if res.Accepted {
		t.Fatalf("transitions after a terminal state must be rejected")
	}
}

func TestProcessRunEventRunningThrottle(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := svc.ProcessRunEvent(ctx, runEvent("1234", "RUNNING", base)); err != nil {
		t.Fatalf("first running: %v", err)
	}
	res, err := svc.ProcessRunEvent(ctx, runEvent("1234", "RUNNING", base.Add(30*time.Minute)))
	if err != nil {
		t.Fatalf("second running: %v", err)
	}
	if res.Accepted {
		t.Fatalf("RUNNING repeat inside the window must be rejected")
	}
	res, err = svc.ProcessRunEvent(ctx, runEvent("1234", "RUNNING", base.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("third running: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("RUNNING repeat past the window must be accepted")
	}
}

func TestProcessRunEventPayload(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	ev := runEvent("1234", "SUCCEEDED", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ev.Payload = &PayloadSpec{Version: "0.1.0", Data: json.RawMessage(`{"outputUri":"s3://bucket/out"}`)}
	res, err := svc.ProcessRunEvent(ctx, ev)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Event.Payload == nil {
		t.Fatalf("emitted event must carry the payload reference")
	}
	p, err := store.GetPayload(ctx, res.Event.Payload.ID)
	if err != nil {
		t.Fatalf("payload lookup: %v", err)
	}
	if p.ContentHash == "" || p.RefID == "" {
		t.Fatalf("payload must be content-hashed with a ref id, got %+v", p)
	}
}

func TestProcessRunEventAliasIsSameStatus(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := svc.ProcessRunEvent(ctx, runEvent("1234", "SUCCEEDED", base)); err != nil {
		t.Fatalf("succeeded: %v", err)
	}
	res, err := svc.ProcessRunEvent(ctx, runEvent("1234", "success", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("alias: %v", err)
	}
	if res.Accepted {
		t.Fatalf("alias of the current status must be rejected")
	}
}

func TestProcessRunEventLateAssociationsIgnored(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := runEvent("1234", "DRAFT", base)
	first.Libraries = []LibrarySpec{{LibraryID: "L2400001"}}
	if _, err := svc.ProcessRunEvent(ctx, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	second := runEvent("1234", "READY", base.Add(time.Minute))
	second.Libraries = []LibrarySpec{{LibraryID: "L2400001"}, {LibraryID: "L2400002"}}
	if _, err := svc.ProcessRunEvent(ctx, second); err != nil {
		t.Fatalf("second: %v", err)
	}
	run, _ := store.GetRunByPortalRunID(ctx, "1234")
	if len(store.associations[run.ID]) != 1 {
		t.Fatalf("associations are set once at creation, got %d", len(store.associations[run.ID]))
	}
}

func TestProcessRunEventConflictingContexts(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	ev := runEvent("1234", "DRAFT", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ev.ComputeEnv = "research"
	if _, err := svc.ProcessRunEvent(ctx, ev); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Wire a second active compute context behind the run's back.
	run, _ := store.GetRunByPortalRunID(ctx, "1234")
	extra := domain.RunContext{ID: "rnx-extra", Name: "clinical", Usecase: domain.UsecaseCompute, Status: domain.ContextActive}
	if err := store.CreateRunContext(ctx, extra); err != nil {
		t.Fatalf("create context: %v", err)
	}
	if err := store.LinkRunContext(ctx, run.ID, extra.ID); err != nil {
		t.Fatalf("link context: %v", err)
	}

	_, err := svc.ProcessRunEvent(ctx, runEvent("1234", "READY", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)))
	if err == nil {
		t.Fatalf("expected validation error for duplicate active compute contexts")
	}
	if ClassifyError(err) != "validation" {
		t.Fatalf("error class = %q, want validation", ClassifyError(err))
	}
}

func TestProcessRunEventEmitsOnlyActiveContexts(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := newTestService(t, store, pub)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := runEvent("1234", "DRAFT", base)
	first.ComputeEnv = "research"
	if _, err := svc.ProcessRunEvent(ctx, first); err != nil {
		t.Fatalf("draft: %v", err)
	}
	// A compute context retired after the run was created stays linked but
	// must never be named in emitted events.
	run, _ := store.GetRunByPortalRunID(ctx, "1234")
	retired := domain.RunContext{ID: "rnx-retired", Name: "retired-env", Usecase: domain.UsecaseCompute, Status: domain.ContextInactive}
	if err := store.CreateRunContext(ctx, retired); err != nil {
		t.Fatalf("create context: %v", err)
	}
	if err := store.LinkRunContext(ctx, run.ID, retired.ID); err != nil {
		t.Fatalf("link context: %v", err)
	}

	if _, err := svc.ProcessRunEvent(ctx, runEvent("1234", "READY", base.Add(time.Minute))); err != nil {
		t.Fatalf("ready: %v", err)
	}
	var emitted RunStateChange
	if err := json.Unmarshal(pub.details[len(pub.details)-1], &emitted); err != nil {
		t.Fatalf("decode emitted: %v", err)
	}
	if emitted.ComputeEnv != "research" {
		t.Fatalf("emitted computeEnv = %q, want research", emitted.ComputeEnv)
	}
}

func TestIdentitySkipsRecomputeWhenSet(t *testing.T) {
	event := RunStateChange{ID: "preset", Version: RunStateChangeVersion, RunID: "wfr.x", Status: domain.StatusReady}
	if got := event.Identity(); got != "preset" {
		t.Fatalf("identity = %q, want preset", got)
	}
}

func TestIdentityStableAcrossLibraryOrder(t *testing.T) {
	libsA := []LibraryRef{
		{ID: "01AAA", LibraryID: "L1", Readsets: []ReadsetRef{{ID: "01RRA", RGID: "rg1"}}},
		{ID: "01BBB", LibraryID: "L2"},
	}
	libsB := []LibraryRef{libsA[1], libsA[0]}
	a := RunStateChange{Version: RunStateChangeVersion, RunID: "wfr.x", Status: domain.StatusReady, Libraries: libsA}
	b := RunStateChange{Version: RunStateChangeVersion, RunID: "wfr.x", Status: domain.StatusReady, Libraries: libsB}
	if a.Identity() != b.Identity() {
		t.Fatalf("identity must not depend on library order")
	}
	c := a
	c.Status = domain.StatusFailed
	if a.Identity() == c.Identity() {
		t.Fatalf("identity must change when a tracked field changes")
	}
}

func ExampleClassifyError() {
	fmt.Println(ClassifyError(ErrSchema))
	fmt.Println(ClassifyError(repo.ErrConflict))
	// Output:
	// schema
	// conflict
}
