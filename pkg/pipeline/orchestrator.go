package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/camline/camline/pkg/api"
	"github.com/camline/camline/pkg/bom"
	"github.com/camline/camline/pkg/jobs"
	"github.com/camline/camline/pkg/telemetry"
)

// StageStatus is the lifecycle state of one artifact stage.
type StageStatus string

const (
	// StageIdle means the stage has never produced anything for the
	// current inputs.
	StageIdle StageStatus = "idle"

	// StageGenerating means a job for the stage is in flight.
	StageGenerating StageStatus = "generating"

	// StageReady means the stage holds a usable artifact reference.
	StageReady StageStatus = "ready"

	// StageError means the last attempt failed or timed out.
	StageError StageStatus = "error"

	// StageBlocked means the stage is waiting on the machine profile
	// selection and has not been submitted.
	StageBlocked StageStatus = "blocked"
)

// Validate checks if the stage status is valid.
func (s StageStatus) Validate() error {
	switch s {
	case StageIdle, StageGenerating, StageReady, StageError, StageBlocked:
		return nil
	default:
		return NewValidationError("invalid stage status: "+string(s), nil)
	}
}

// StageState is the observable state of one stage. Values returned by the
// orchestrator are snapshots; mutating them has no effect.
type StageState struct {
	// Kind is the artifact kind this stage produces.
	Kind jobs.Kind `json:"kind"`

	// Status is the current stage status.
	Status StageStatus `json:"status"`

	// JobID is the most recent job created for this stage.
	JobID string `json:"job_id,omitempty"`

	// ArtifactRef references the stage's artifact when Status is ready.
	ArtifactRef string `json:"artifact_reference,omitempty"`

	// Err holds the classified failure when Status is error.
	Err *Error `json:"error,omitempty"`

	// UpdatedAt is when the stage last changed state.
	UpdatedAt time.Time `json:"updated_at"`
}

// SpecProvider returns the current specification for the order. The edit
// session provides this; the orchestrator never mutates the result.
type SpecProvider func() *bom.Specification

// JobService is the remote surface the orchestrator drives. *api.Client
// satisfies it.
type JobService interface {
	CreateJob(ctx context.Context, kind jobs.Kind, params interface{}) (string, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
}

// ArtifactRecorder persists successful stage outputs so a later session
// can restore them.
type ArtifactRecorder interface {
	SaveArtifact(ctx context.Context, orderID string, kind jobs.Kind, jobID, artifactRef string) error
}

// Config configures an Orchestrator.
type Config struct {
	// OrderID is the order the pipeline belongs to.
	OrderID string

	// Service is the remote job surface. Required.
	Service JobService

	// Gate is the machine profile gate. Required.
	Gate *ProfileGate

	// Spec returns the current specification. Required.
	Spec SpecProvider

	// Recorder persists stage artifacts. Optional.
	Recorder ArtifactRecorder

	// Sheet is the sheet constraint set for layout jobs.
	Sheet api.SheetConstraints

	// CutDepthMM is the per-pass cut depth for cutting programs.
	CutDepthMM float64

	// PollOptions bound each stage's status polling. Zero value selects
	// the defaults.
	PollOptions jobs.PollOptions

	// Telemetry provides logging, metrics, tracing and notifications.
	// Optional.
	Telemetry *telemetry.Telemetry
}

// Orchestrator sequences the layout, gcode and drilling stages for one
// order. Each stage is a small state machine; dependent stages are
// triggered transparently and gated stages never reach the network while
// the profile gate reports no selection.
type Orchestrator struct {
	orderID    string
	service    JobService
	gate       *ProfileGate
	spec       SpecProvider
	recorder   ArtifactRecorder
	sheet      api.SheetConstraints
	cutDepthMM float64
	pollOpts   jobs.PollOptions
	poller     *jobs.Poller
	tel        *telemetry.Telemetry
	logger     *telemetry.Logger

	mu       sync.Mutex
	stages   map[jobs.Kind]*StageState
	inflight map[jobs.Kind]chan struct{}
}

// NewOrchestrator creates a pipeline orchestrator and registers it as the
// gate's replay target.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Service == nil {
		return nil, NewValidationError("job service is required", nil)
	}
	if cfg.Gate == nil {
		return nil, NewValidationError("profile gate is required", nil)
	}
	if cfg.Spec == nil {
		return nil, NewValidationError("spec provider is required", nil)
	}

	opts := cfg.PollOptions
	if opts.Interval <= 0 || opts.MaxAttempts <= 0 {
		opts = jobs.DefaultPollOptions()
	}

	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}

	o := &Orchestrator{
		orderID:    cfg.OrderID,
		service:    cfg.Service,
		gate:       cfg.Gate,
		spec:       cfg.Spec,
		recorder:   cfg.Recorder,
		sheet:      cfg.Sheet,
		cutDepthMM: cfg.CutDepthMM,
		pollOpts:   opts,
		poller:     jobs.NewPoller(cfg.Service),
		tel:        tel,
		logger:     tel.Logger.NewComponentLogger("pipeline"),
		stages: map[jobs.Kind]*StageState{
			jobs.KindLayout:   {Kind: jobs.KindLayout, Status: StageIdle},
			jobs.KindGCode:    {Kind: jobs.KindGCode, Status: StageIdle},
			jobs.KindDrilling: {Kind: jobs.KindDrilling, Status: StageIdle},
		},
		inflight: make(map[jobs.Kind]chan struct{}),
	}

	cfg.Gate.SetReplay(func(ctx context.Context, kind jobs.Kind) error {
		_, err := o.Generate(ctx, kind)
		return err
	})

	return o, nil
}

// Stage returns a snapshot of one stage's state. An unknown kind yields
// an idle zero state rather than a panic.
func (o *Orchestrator) Stage(kind jobs.Kind) StageState {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.stages[kind]
	if !ok {
		return StageState{Kind: kind, Status: StageIdle}
	}
	return *state
}

// Stages returns a snapshot of all stage states.
func (o *Orchestrator) Stages() map[jobs.Kind]StageState {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[jobs.Kind]StageState, len(o.stages))
	for kind, state := range o.stages {
		out[kind] = *state
	}
	return out
}

// RestoreArtifact seeds a stage with a previously generated artifact, as
// loaded from the local store on resume.
func (o *Orchestrator) RestoreArtifact(kind jobs.Kind, jobID, artifactRef string) {
	if kind.Validate() != nil || artifactRef == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	state := o.stages[kind]
	if state.Status == StageGenerating {
		return
	}
	state.Status = StageReady
	state.JobID = jobID
	state.ArtifactRef = artifactRef
	state.Err = nil
	state.UpdatedAt = time.Now()
}

// Generate runs the given stage to a terminal state and returns its final
// snapshot. Calling it for a stage that is already generating does not
// start a second job: the call waits for the in-flight one and returns its
// result. Re-triggering a ready or failed stage regenerates.
//
// Preconditions are checked before anything reaches the network: gcode and
// drilling require a selected machine profile (otherwise the stage becomes
// blocked, the selection prompt is surfaced, and a precondition error is
// returned); gcode additionally requires a ready layout and triggers the
// layout stage itself when the artifact is missing.
func (o *Orchestrator) Generate(ctx context.Context, kind jobs.Kind) (StageState, error) {
	if err := kind.Validate(); err != nil {
		return StageState{}, NewValidationError("unknown stage", err)
	}

	if kind == jobs.KindGCode || kind == jobs.KindDrilling {
		if !o.gate.IsSelected() {
			o.setBlocked(kind)
			o.gate.RequestSelection(kind)
			return o.Stage(kind), NewPreconditionError("machine profile not selected").WithStage(string(kind))
		}
	}

	if kind == jobs.KindGCode {
		if err := o.ensureLayout(ctx); err != nil {
			stageErr := NewPreconditionError("layout artifact unavailable").WithStage(string(kind))
			stageErr.Err = err
			o.setError(kind, stageErr)
			return o.Stage(kind), stageErr
		}
	}

	o.mu.Lock()
	if done, ok := o.inflight[kind]; ok {
		o.mu.Unlock()
		select {
		case <-done:
			return o.Stage(kind), o.stageError(kind)
		case <-ctx.Done():
			return o.Stage(kind), ctx.Err()
		}
	}

	done := make(chan struct{})
	o.inflight[kind] = done
	state := o.stages[kind]
	state.Status = StageGenerating
	state.JobID = ""
	state.ArtifactRef = ""
	state.Err = nil
	state.UpdatedAt = time.Now()
	o.mu.Unlock()

	o.runStage(ctx, kind)

	o.mu.Lock()
	delete(o.inflight, kind)
	o.mu.Unlock()
	close(done)

	return o.Stage(kind), o.stageError(kind)
}

// ensureLayout makes sure a layout artifact exists, running the layout
// stage if needed. Concurrent gcode requests coalesce on the same layout
// job through Generate.
func (o *Orchestrator) ensureLayout(ctx context.Context) error {
	if o.Stage(jobs.KindLayout).Status == StageReady {
		return nil
	}

	o.logger.WithOrderID(o.orderID).Info("layout artifact missing, generating before cutting program")
	state, err := o.Generate(ctx, jobs.KindLayout)
	if err != nil {
		return err
	}
	if state.Status != StageReady {
		return NewValidationError("layout stage ended without an artifact", nil)
	}
	return nil
}

// runStage creates the job, polls it to a terminal observation, and
// records the result on the stage.
func (o *Orchestrator) runStage(ctx context.Context, kind jobs.Kind) {
	logger := o.logger.WithOrderID(o.orderID).WithStage(string(kind))
	started := time.Now()

	ctx, span := o.tel.Tracer.StartStageSpan(ctx, o.orderID, string(kind))
	defer span.End()
	defer func() {
		if err := o.stageError(kind); err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}()

	params, paramsErr := o.paramsForKind(kind)
	if paramsErr != nil {
		o.finishStage(kind, started, "", "", paramsErr)
		return
	}

	jobID, err := o.service.CreateJob(ctx, kind, params)
	if err != nil {
		o.finishStage(kind, started, "", "", FromAPIError("create job", err).WithStage(string(kind)))
		return
	}

	o.mu.Lock()
	o.stages[kind].JobID = jobID
	o.mu.Unlock()

	logger.WithJobID(jobID).Info("job created")
	o.tel.Metrics.RecordJobCreated(string(kind))

	o.tel.Metrics.PollStarted()
	result, err := o.poller.Poll(ctx, jobID, o.pollOpts)
	o.tel.Metrics.PollFinished()
	if err != nil {
		// Cancellation abandons the observation; the remote job keeps
		// running and the stage reports the interruption.
		abandoned := NewTransientError("observation abandoned", err).
			WithStage(string(kind)).WithJobID(jobID)
		o.finishStage(kind, started, jobID, "", abandoned)
		return
	}

	o.tel.Metrics.RecordPoll(string(kind), string(result.Outcome), result.Attempts)
	span.SetAttributes(
		telemetry.AttrOutcome.String(string(result.Outcome)),
		telemetry.AttrAttempts.Int(result.Attempts),
	)

	switch result.Outcome {
	case jobs.OutcomeCompleted:
		o.finishStage(kind, started, jobID, result.ArtifactRef, nil)
	case jobs.OutcomeFailed:
		reason := result.Reason
		if reason == "" {
			reason = "job failed without a reason"
		}
		o.finishStage(kind, started, jobID, "",
			NewValidationError(reason, nil).WithStage(string(kind)).WithJobID(jobID))
	case jobs.OutcomeTimedOut:
		o.finishStage(kind, started, jobID, "",
			NewTimeoutError("job did not finish within the polling budget").
				WithStage(string(kind)).WithJobID(jobID))
	}
}

// finishStage records the terminal result of a stage run.
func (o *Orchestrator) finishStage(kind jobs.Kind, started time.Time, jobID, artifactRef string, stageErr *Error) {
	o.mu.Lock()
	state := o.stages[kind]
	state.JobID = jobID
	state.UpdatedAt = time.Now()
	if stageErr != nil {
		state.Status = StageError
		state.ArtifactRef = ""
		state.Err = stageErr
	} else {
		state.Status = StageReady
		state.ArtifactRef = artifactRef
		state.Err = nil
	}
	o.mu.Unlock()

	logger := o.logger.WithOrderID(o.orderID).WithStage(string(kind))
	if stageErr != nil {
		o.tel.Metrics.RecordStage(string(kind), string(StageError), time.Since(started))
		logger.WithError(stageErr).Error("stage failed")
		o.tel.Events.Publish("stage_failed", o.orderID, "error",
			string(kind)+": "+stageErr.Message)
		return
	}

	o.tel.Metrics.RecordStage(string(kind), string(StageReady), time.Since(started))
	logger.WithJobID(jobID).Info("stage ready")
	o.tel.Events.Publish("stage_ready", o.orderID, "info",
		string(kind)+" artifact generated")

	if o.recorder != nil {
		if err := o.recorder.SaveArtifact(context.Background(), o.orderID, kind, jobID, artifactRef); err != nil {
			logger.WithError(err).Warn("local artifact record failed")
		}
	}
}

// paramsForKind assembles the job parameters for a stage from the current
// specification, settings and gate.
func (o *Orchestrator) paramsForKind(kind jobs.Kind) (interface{}, *Error) {
	switch kind {
	case jobs.KindLayout:
		spec := o.spec()
		if spec == nil || len(spec.Panels) == 0 {
			return nil, NewValidationError("specification has no panels to nest", nil).WithStage(string(kind))
		}
		return api.LayoutParams{
			OrderID: o.orderID,
			Panels:  spec.Panels,
			Sheet:   o.sheet,
		}, nil
	case jobs.KindGCode:
		layout := o.Stage(jobs.KindLayout)
		return api.GCodeParams{
			OrderID:        o.orderID,
			LayoutRef:      layout.ArtifactRef,
			MachineProfile: o.gate.Profile(),
			CutDepthMM:     o.cutDepthMM,
		}, nil
	case jobs.KindDrilling:
		return api.DrillingParams{
			OrderID:        o.orderID,
			MachineProfile: o.gate.Profile(),
		}, nil
	}
	return nil, NewValidationError("unknown stage: "+string(kind), nil)
}

// setBlocked marks a stage as waiting on the profile gate. A stage that is
// generating or already holds an artifact keeps its state.
func (o *Orchestrator) setBlocked(kind jobs.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state := o.stages[kind]
	if state.Status == StageGenerating || state.Status == StageReady {
		return
	}
	state.Status = StageBlocked
	state.Err = nil
	state.UpdatedAt = time.Now()
}

// setError records a precondition failure that happened before any job
// was created.
func (o *Orchestrator) setError(kind jobs.Kind, stageErr *Error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state := o.stages[kind]
	state.Status = StageError
	state.ArtifactRef = ""
	state.Err = stageErr
	state.UpdatedAt = time.Now()
}

// stageError returns the stage's recorded error, nil when none.
func (o *Orchestrator) stageError(kind jobs.Kind) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.stages[kind].Err; err != nil {
		return err
	}
	return nil
}
