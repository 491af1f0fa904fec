package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/camline/camline/pkg/api"
	"github.com/camline/camline/pkg/bom"
	"github.com/camline/camline/pkg/jobs"
)

// fakeService scripts remote job behavior. Each created job walks through
// its status sequence one GetJob call at a time; the last entry repeats.
type fakeService struct {
	mu        sync.Mutex
	createErr error
	created   []jobs.Kind
	params    map[jobs.Kind]interface{}
	script    map[jobs.Kind][]jobs.Job
	calls     map[string]int
}

func newFakeService() *fakeService {
	return &fakeService{
		params: make(map[jobs.Kind]interface{}),
		script: make(map[jobs.Kind][]jobs.Job),
		calls:  make(map[string]int),
	}
}

// scriptCompletion makes jobs of the given kind complete after n
// processing observations.
func (f *fakeService) scriptCompletion(kind jobs.Kind, processing int, artifactRef string) {
	var seq []jobs.Job
	for i := 0; i < processing; i++ {
		seq = append(seq, jobs.Job{Kind: kind, Status: jobs.StatusProcessing})
	}
	seq = append(seq, jobs.Job{Kind: kind, Status: jobs.StatusCompleted, ArtifactRef: artifactRef})
	f.script[kind] = seq
}

func (f *fakeService) scriptFailure(kind jobs.Kind, reason string) {
	f.script[kind] = []jobs.Job{{Kind: kind, Status: jobs.StatusFailed, Error: reason}}
}

func (f *fakeService) scriptNeverTerminal(kind jobs.Kind) {
	f.script[kind] = []jobs.Job{{Kind: kind, Status: jobs.StatusProcessing}}
}

func (f *fakeService) CreateJob(ctx context.Context, kind jobs.Kind, params interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, kind)
	f.params[kind] = params
	return "job-" + string(kind), nil
}

func (f *fakeService) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kind := jobs.Kind(jobID[len("job-"):])
	seq, ok := f.script[kind]
	if !ok {
		return nil, fmt.Errorf("unknown job: %s", jobID)
	}

	idx := f.calls[jobID]
	f.calls[jobID]++
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	job := seq[idx]
	job.ID = jobID
	return &job, nil
}

func (f *fakeService) createdKinds() []jobs.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]jobs.Kind, len(f.created))
	copy(out, f.created)
	return out
}

// fakeRecorder captures SaveArtifact calls.
type fakeRecorder struct {
	mu      sync.Mutex
	records []string
}

func (f *fakeRecorder) SaveArtifact(ctx context.Context, orderID string, kind jobs.Kind, jobID, artifactRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, fmt.Sprintf("%s/%s/%s", orderID, kind, artifactRef))
	return nil
}

// fakeSettings captures settings writes.
type fakeSettings struct {
	mu       sync.Mutex
	err      error
	profiles []string
}

func (f *fakeSettings) UpdateSettings(ctx context.Context, settings *api.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.profiles = append(f.profiles, settings.MachineProfile)
	return nil
}

func testSpec() *bom.Specification {
	return &bom.Specification{
		OrderID: "order-1",
		Panels: []bom.Panel{
			{Name: "side_left", WidthMM: 560, HeightMM: 720, ThicknessMM: 18, Quantity: 2},
		},
	}
}

func newTestOrchestrator(t *testing.T, svc *fakeService, gate *ProfileGate) (*Orchestrator, *fakeRecorder) {
	t.Helper()
	recorder := &fakeRecorder{}
	o, err := NewOrchestrator(Config{
		OrderID:  "order-1",
		Service:  svc,
		Gate:     gate,
		Spec:     testSpec,
		Recorder: recorder,
		Sheet:    api.SheetConstraints{WidthMM: 2800, HeightMM: 2070},
		PollOptions: jobs.PollOptions{
			Interval:    time.Millisecond,
			MaxAttempts: 20,
		},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return o, recorder
}

func selectedGate(t *testing.T) *ProfileGate {
	t.Helper()
	return NewProfileGate(GateConfig{
		OrderID:   "order-1",
		Settings:  &fakeSettings{},
		ProfileID: "biesse_rover",
	})
}

func TestGenerateLayoutProducesArtifact(t *testing.T) {
	svc := newFakeService()
	svc.scriptCompletion(jobs.KindLayout, 2, "artifacts/layout.dxf")
	o, recorder := newTestOrchestrator(t, svc, selectedGate(t))

	state, err := o.Generate(context.Background(), jobs.KindLayout)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if state.Status != StageReady {
		t.Errorf("Expected status %s, got %s", StageReady, state.Status)
	}
	if state.ArtifactRef != "artifacts/layout.dxf" {
		t.Errorf("Expected artifact ref artifacts/layout.dxf, got %s", state.ArtifactRef)
	}

	params, ok := svc.params[jobs.KindLayout].(api.LayoutParams)
	if !ok {
		t.Fatalf("Expected LayoutParams, got %T", svc.params[jobs.KindLayout])
	}
	if len(params.Panels) != 1 {
		t.Errorf("Expected 1 panel in layout params, got %d", len(params.Panels))
	}
	if params.Sheet.WidthMM != 2800 {
		t.Errorf("Expected sheet width 2800, got %v", params.Sheet.WidthMM)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 1 {
		t.Fatalf("Expected 1 recorded artifact, got %d", len(recorder.records))
	}
	if recorder.records[0] != "order-1/layout/artifacts/layout.dxf" {
		t.Errorf("Unexpected artifact record: %s", recorder.records[0])
	}
}

func TestGCodeWithoutProfileNeverReachesService(t *testing.T) {
	svc := newFakeService()
	gate := NewProfileGate(GateConfig{OrderID: "order-1", Settings: &fakeSettings{}})
	o, _ := newTestOrchestrator(t, svc, gate)

	state, err := o.Generate(context.Background(), jobs.KindGCode)
	if err == nil {
		t.Fatal("Expected an error for gated stage without profile")
	}
	if !IsPrecondition(err) {
		t.Errorf("Expected precondition error, got %v", err)
	}
	if state.Status != StageBlocked {
		t.Errorf("Expected status %s, got %s", StageBlocked, state.Status)
	}
	if len(svc.createdKinds()) != 0 {
		t.Errorf("Expected no jobs created, got %v", svc.createdKinds())
	}
	if !gate.PromptPending() {
		t.Error("Expected selection prompt to be pending")
	}
}

func TestGCodeTriggersLayoutFirst(t *testing.T) {
	svc := newFakeService()
	svc.scriptCompletion(jobs.KindLayout, 1, "artifacts/layout.dxf")
	svc.scriptCompletion(jobs.KindGCode, 1, "artifacts/program.nc")
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	state, err := o.Generate(context.Background(), jobs.KindGCode)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if state.Status != StageReady {
		t.Errorf("Expected status %s, got %s", StageReady, state.Status)
	}

	created := svc.createdKinds()
	if len(created) != 2 || created[0] != jobs.KindLayout || created[1] != jobs.KindGCode {
		t.Fatalf("Expected [layout gcode] creation order, got %v", created)
	}

	params, ok := svc.params[jobs.KindGCode].(api.GCodeParams)
	if !ok {
		t.Fatalf("Expected GCodeParams, got %T", svc.params[jobs.KindGCode])
	}
	if params.LayoutRef != "artifacts/layout.dxf" {
		t.Errorf("Expected layout ref artifacts/layout.dxf, got %s", params.LayoutRef)
	}
	if params.MachineProfile != "biesse_rover" {
		t.Errorf("Expected machine profile biesse_rover, got %s", params.MachineProfile)
	}

	if layout := o.Stage(jobs.KindLayout); layout.Status != StageReady {
		t.Errorf("Expected layout stage ready after auto-trigger, got %s", layout.Status)
	}
}

func TestGCodeReusesReadyLayout(t *testing.T) {
	svc := newFakeService()
	svc.scriptCompletion(jobs.KindGCode, 1, "artifacts/program.nc")
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))
	o.RestoreArtifact(jobs.KindLayout, "job-layout", "artifacts/previous.dxf")

	if _, err := o.Generate(context.Background(), jobs.KindGCode); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	created := svc.createdKinds()
	if len(created) != 1 || created[0] != jobs.KindGCode {
		t.Fatalf("Expected only a gcode job, got %v", created)
	}

	params := svc.params[jobs.KindGCode].(api.GCodeParams)
	if params.LayoutRef != "artifacts/previous.dxf" {
		t.Errorf("Expected restored layout ref, got %s", params.LayoutRef)
	}
}

func TestDrillingNeedsProfileButNotLayout(t *testing.T) {
	svc := newFakeService()
	svc.scriptCompletion(jobs.KindDrilling, 0, "artifacts/drilling.nc")
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	state, err := o.Generate(context.Background(), jobs.KindDrilling)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if state.Status != StageReady {
		t.Errorf("Expected status %s, got %s", StageReady, state.Status)
	}

	created := svc.createdKinds()
	if len(created) != 1 || created[0] != jobs.KindDrilling {
		t.Fatalf("Expected only a drilling job, got %v", created)
	}
}

func TestSameKindRequestsCoalesce(t *testing.T) {
	svc := newFakeService()
	svc.scriptCompletion(jobs.KindLayout, 10, "artifacts/layout.dxf")
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	var wg sync.WaitGroup
	results := make([]StageState, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state, err := o.Generate(context.Background(), jobs.KindLayout)
			if err != nil {
				t.Errorf("Generate %d failed: %v", i, err)
			}
			results[i] = state
		}(i)
		// Give the first request time to take the stage.
		time.Sleep(2 * time.Millisecond)
	}
	wg.Wait()

	if created := svc.createdKinds(); len(created) != 1 {
		t.Fatalf("Expected a single job for coalesced requests, got %v", created)
	}
	for i, state := range results {
		if state.Status != StageReady {
			t.Errorf("Request %d: expected status %s, got %s", i, StageReady, state.Status)
		}
		if state.ArtifactRef != "artifacts/layout.dxf" {
			t.Errorf("Request %d: expected shared artifact ref, got %s", i, state.ArtifactRef)
		}
	}
}

func TestFailedJobSurfacesServerReason(t *testing.T) {
	svc := newFakeService()
	svc.scriptFailure(jobs.KindLayout, "panel exceeds sheet bounds")
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	state, err := o.Generate(context.Background(), jobs.KindLayout)
	if err == nil {
		t.Fatal("Expected an error for failed job")
	}
	if !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if state.Status != StageError {
		t.Errorf("Expected status %s, got %s", StageError, state.Status)
	}
	if state.Err == nil || state.Err.Message != "panel exceeds sheet bounds" {
		t.Errorf("Expected server reason on stage, got %v", state.Err)
	}
}

func TestPollBudgetExhaustionIsTimeoutNotFailure(t *testing.T) {
	svc := newFakeService()
	svc.scriptNeverTerminal(jobs.KindLayout)
	o, err := NewOrchestrator(Config{
		OrderID: "order-1",
		Service: svc,
		Gate:    selectedGate(t),
		Spec:    testSpec,
		PollOptions: jobs.PollOptions{
			Interval:    time.Millisecond,
			MaxAttempts: 3,
		},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	state, genErr := o.Generate(context.Background(), jobs.KindLayout)
	if !IsTimeout(genErr) {
		t.Fatalf("Expected timeout error, got %v", genErr)
	}
	if IsValidation(genErr) {
		t.Error("Timeout must not be classified as failure")
	}
	if state.Status != StageError {
		t.Errorf("Expected status %s, got %s", StageError, state.Status)
	}
}

func TestRetriggerAfterErrorRegenerates(t *testing.T) {
	svc := newFakeService()
	svc.scriptFailure(jobs.KindLayout, "nesting failed")
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	if _, err := o.Generate(context.Background(), jobs.KindLayout); err == nil {
		t.Fatal("Expected first attempt to fail")
	}

	svc.mu.Lock()
	svc.scriptCompletion(jobs.KindLayout, 0, "artifacts/layout.dxf")
	svc.calls = make(map[string]int)
	svc.mu.Unlock()

	state, err := o.Generate(context.Background(), jobs.KindLayout)
	if err != nil {
		t.Fatalf("Second Generate failed: %v", err)
	}
	if state.Status != StageReady {
		t.Errorf("Expected status %s after retrigger, got %s", StageReady, state.Status)
	}
	if state.Err != nil {
		t.Errorf("Expected cleared error after retrigger, got %v", state.Err)
	}
	if created := svc.createdKinds(); len(created) != 2 {
		t.Errorf("Expected 2 jobs across both attempts, got %v", created)
	}
}

func TestSelectReplaysDeferredStage(t *testing.T) {
	svc := newFakeService()
	svc.scriptCompletion(jobs.KindLayout, 0, "artifacts/layout.dxf")
	svc.scriptCompletion(jobs.KindGCode, 0, "artifacts/program.nc")
	settings := &fakeSettings{}
	gate := NewProfileGate(GateConfig{OrderID: "order-1", Settings: settings})
	o, _ := newTestOrchestrator(t, svc, gate)

	if _, err := o.Generate(context.Background(), jobs.KindGCode); !IsPrecondition(err) {
		t.Fatalf("Expected precondition error before selection, got %v", err)
	}

	if err := gate.Select(context.Background(), "homag_centateq"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if state := o.Stage(jobs.KindGCode); state.Status != StageReady {
		t.Errorf("Expected replayed gcode stage ready, got %s", state.Status)
	}
	if len(settings.profiles) != 1 || settings.profiles[0] != "homag_centateq" {
		t.Errorf("Expected profile persisted to settings, got %v", settings.profiles)
	}
	if gate.PromptPending() {
		t.Error("Expected prompt cleared after selection")
	}
}

func TestCancellationAbandonsObservation(t *testing.T) {
	svc := newFakeService()
	svc.scriptNeverTerminal(jobs.KindLayout)
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	state, err := o.Generate(ctx, jobs.KindLayout)
	if !IsTransient(err) {
		t.Fatalf("Expected transient error after cancellation, got %v", err)
	}
	if state.Status != StageError {
		t.Errorf("Expected status %s, got %s", StageError, state.Status)
	}
}

func TestGenerateRejectsUnknownKind(t *testing.T) {
	svc := newFakeService()
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	if _, err := o.Generate(context.Background(), jobs.Kind("sanding")); !IsValidation(err) {
		t.Errorf("Expected validation error for unknown kind, got %v", err)
	}
	if len(svc.createdKinds()) != 0 {
		t.Error("Expected no jobs created for unknown kind")
	}
}

func TestStageUnknownKindReturnsIdleState(t *testing.T) {
	svc := newFakeService()
	o, _ := newTestOrchestrator(t, svc, selectedGate(t))

	state := o.Stage(jobs.Kind("sanding"))
	if state.Status != StageIdle {
		t.Errorf("Expected idle status for unknown kind, got %s", state.Status)
	}
	if state.Kind != jobs.Kind("sanding") {
		t.Errorf("Expected kind echoed back, got %s", state.Kind)
	}
	if state.JobID != "" || state.ArtifactRef != "" || state.Err != nil {
		t.Error("Expected an otherwise zero state for unknown kind")
	}
}
