// Package session owns the editing lifecycle of one order's
// specification: the baseline snapshot, edit classification, debounced
// autosave of incidental changes, and the explicit recalculation barrier
// for structural ones.
package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/camline/camline/pkg/bom"
	"github.com/camline/camline/pkg/pipeline"
	"github.com/camline/camline/pkg/telemetry"
)

const (
	// DefaultDebounceDelay is the quiet period after the last incidental
	// edit before the specification is persisted.
	DefaultDebounceDelay = 1500 * time.Millisecond

	// DefaultDisplayWindow is how long the saved indicator is shown
	// before reverting to idle.
	DefaultDisplayWindow = 3 * time.Second

	// DefaultPersistTimeout bounds a single persist call.
	DefaultPersistTimeout = 10 * time.Second
)

// BOMService is the remote surface the session needs. *api.Client
// satisfies it.
type BOMService interface {
	GetBOM(ctx context.Context, orderID string) (*bom.Specification, error)
	UpdateBOM(ctx context.Context, orderID string, spec *bom.Specification) error
	RecalculateBOM(ctx context.Context, orderID string, spec *bom.Specification) (*bom.Specification, error)
}

// SessionStore records session activity locally so the order can be
// resumed later.
type SessionStore interface {
	TouchSession(ctx context.Context, orderID string) error
}

// Config configures a Session.
type Config struct {
	// OrderID is the order being edited. Required.
	OrderID string

	// Service is the remote BOM surface. Required.
	Service BOMService

	// Store records session activity. Optional.
	Store SessionStore

	// DebounceDelay overrides the autosave quiet period. Zero selects
	// the default.
	DebounceDelay time.Duration

	// DisplayWindow overrides how long the saved indicator shows. Zero
	// selects the default.
	DisplayWindow time.Duration

	// PersistTimeout bounds each persist call. Zero selects the default.
	PersistTimeout time.Duration

	// Telemetry provides logging, metrics, tracing and notifications.
	// Optional.
	Telemetry *telemetry.Telemetry
}

// Session is the single mutation entry point for one order's
// specification. All edits flow through ApplyEdit, which classifies them
// against the baseline snapshot and drives either the debounced autosave
// or the recalculation flag.
type Session struct {
	orderID        string
	service        BOMService
	store          SessionStore
	debounceDelay  time.Duration
	displayWindow  time.Duration
	persistTimeout time.Duration
	tel            *telemetry.Telemetry
	logger         *telemetry.Logger

	mu          sync.Mutex
	spec        *bom.Specification
	baseline    *bom.Specification
	needsRecalc bool
	saveStatus  SaveStatus
	lastSaveErr error
	dirty       bool
	persisting  bool
	pendingSave bool
	closed      bool
	debounce    *time.Timer
	revert      *time.Timer
}

// Resume loads the order's current specification from the service and
// opens an editing session over it. The loaded state becomes the baseline
// snapshot; the save status starts idle and the recalculation flag clear.
func Resume(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.OrderID == "" {
		return nil, pipeline.NewValidationError("order id is required", nil)
	}
	if cfg.Service == nil {
		return nil, pipeline.NewValidationError("BOM service is required", nil)
	}

	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}

	spec, err := cfg.Service.GetBOM(ctx, cfg.OrderID)
	if err != nil {
		return nil, pipeline.FromAPIError("load specification", err)
	}

	s := &Session{
		orderID:        cfg.OrderID,
		service:        cfg.Service,
		store:          cfg.Store,
		debounceDelay:  cfg.DebounceDelay,
		displayWindow:  cfg.DisplayWindow,
		persistTimeout: cfg.PersistTimeout,
		tel:            tel,
		logger:         tel.Logger.NewComponentLogger("session").WithOrderID(cfg.OrderID),
		spec:           spec,
		baseline:       spec.Clone(),
		saveStatus:     SaveStatusIdle,
	}
	if s.debounceDelay <= 0 {
		s.debounceDelay = DefaultDebounceDelay
	}
	if s.displayWindow <= 0 {
		s.displayWindow = DefaultDisplayWindow
	}
	if s.persistTimeout <= 0 {
		s.persistTimeout = DefaultPersistTimeout
	}

	if s.store != nil {
		if err := s.store.TouchSession(ctx, cfg.OrderID); err != nil {
			s.logger.WithError(err).Warn("local session record failed")
		}
	}

	s.logger.Info("session resumed")
	return s, nil
}

// OrderID returns the order this session edits.
func (s *Session) OrderID() string { return s.orderID }

// Spec returns a copy of the current specification.
func (s *Session) Spec() *bom.Specification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec.Clone()
}

// NeedsRecalculation returns true while structural edits await the
// recalculation barrier.
func (s *Session) NeedsRecalculation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsRecalc
}

// SaveStatus returns the current save indicator.
func (s *Session) SaveStatus() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveStatus
}

// LastSaveError returns the failure behind a sticking error status.
func (s *Session) LastSaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveErr
}

// ApplyEdit is the single mutation entry point. The mutation runs on a
// copy of the current specification; an edit that leaves the copy invalid
// is rejected without touching session state. The committed edit is
// classified against the baseline: incidental edits arm the autosave
// debounce, structural ones raise the recalculation flag and suppress
// autosave. The flag is derived from the baseline on every commit, so an
// edit that reverts the structural fields back to their baseline values
// clears it and re-arms autosave.
func (s *Session) ApplyEdit(mutate func(*bom.Specification)) (bom.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", pipeline.NewValidationError("session is closed", nil)
	}

	candidate := s.spec.Clone()
	mutate(candidate)
	if err := candidate.Validate(); err != nil {
		return "", pipeline.NewValidationError("edit leaves specification invalid", err)
	}

	class := bom.Classify(s.baseline, candidate)
	s.spec = candidate
	s.dirty = true

	// An edit clears a sticking error and any lingering saved indicator.
	if s.saveStatus == SaveStatusError || s.saveStatus == SaveStatusSaved {
		s.saveStatus = SaveStatusIdle
		s.lastSaveErr = nil
		s.stopRevertLocked()
	}

	wasRecalc := s.needsRecalc
	s.needsRecalc = class.IsStructural()

	if s.needsRecalc {
		if !wasRecalc {
			s.logger.Info("structural change, recalculation required")
			s.tel.Events.Publish("recalculation_required", s.orderID, "info",
				"structural change requires recalculation")
		}
		s.stopDebounceLocked()
		return class, nil
	}

	if wasRecalc {
		s.logger.Info("structural changes reverted, autosave re-armed")
		s.tel.Events.Publish("recalculation_cleared", s.orderID, "info",
			"structural changes reverted to the baseline")
	}
	s.scheduleAutosaveLocked()
	return class, nil
}

// Recalculate is the explicit barrier for structural edits: it persists
// the current specification, asks the service to recompute the derived
// BOM, and on success atomically replaces both the live specification and
// the baseline snapshot and clears the recalculation flag. On failure the
// session state is left untouched and the reason is surfaced.
func (s *Session) Recalculate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pipeline.NewValidationError("session is closed", nil)
	}
	// A pending recalculation supersedes any armed autosave.
	s.stopDebounceLocked()
	snapshot := s.spec.Clone()
	s.mu.Unlock()

	ctx, span := s.tel.Tracer.StartRecalculateSpan(ctx, s.orderID)
	defer span.End()

	if err := s.service.UpdateBOM(ctx, s.orderID, snapshot); err != nil {
		return s.recalcFailed(span, "persist specification", err)
	}

	updated, err := s.service.RecalculateBOM(ctx, s.orderID, snapshot)
	if err != nil {
		return s.recalcFailed(span, "recalculate specification", err)
	}
	if err := updated.Validate(); err != nil {
		return s.recalcFailed(span, "service returned an invalid specification", err)
	}

	s.mu.Lock()
	s.spec = updated
	s.baseline = updated.Clone()
	s.needsRecalc = false
	s.dirty = false
	s.saveStatus = SaveStatusIdle
	s.lastSaveErr = nil
	s.mu.Unlock()

	telemetry.RecordSuccess(span)
	s.tel.Metrics.RecordRecalculation("success")
	s.logger.Info("recalculation applied")
	s.tel.Events.Publish("recalculated", s.orderID, "info", "specification recalculated")
	return nil
}

func (s *Session) recalcFailed(span trace.Span, msg string, err error) error {
	telemetry.RecordError(span, err)
	s.tel.Metrics.RecordRecalculation("error")
	s.logger.WithError(err).Error("recalculation failed")
	s.tel.Events.Publish("recalculation_failed", s.orderID, "error", msg)
	return pipeline.FromAPIError(msg, err)
}

// Flush persists pending incidental edits immediately, without waiting
// for the debounce to fire. It is a no-op when nothing is pending, and
// refuses to run while structural edits await recalculation.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pipeline.NewValidationError("session is closed", nil)
	}
	if s.needsRecalc {
		s.mu.Unlock()
		return pipeline.NewPreconditionError("structural changes pending recalculation")
	}
	if !s.dirty || s.persisting {
		s.mu.Unlock()
		return nil
	}
	s.stopDebounceLocked()
	snapshot := s.beginPersistLocked()
	s.mu.Unlock()

	return s.persist(ctx, snapshot)
}

// Close stops the session's timers. Pending unsaved edits are dropped;
// call Flush first to keep them.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopDebounceLocked()
	s.stopRevertLocked()
}

// scheduleAutosaveLocked arms the debounce, cancelling any previous arm.
// Caller holds s.mu.
func (s *Session) scheduleAutosaveLocked() {
	s.stopDebounceLocked()
	s.debounce = time.AfterFunc(s.debounceDelay, s.autosave)
}

// stopDebounceLocked cancels a pending autosave. Caller holds s.mu.
func (s *Session) stopDebounceLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// stopRevertLocked cancels a pending saved-indicator revert. Caller
// holds s.mu.
func (s *Session) stopRevertLocked() {
	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}
}

// beginPersistLocked marks a persist as in flight and snapshots the
// specification. Caller holds s.mu.
func (s *Session) beginPersistLocked() *bom.Specification {
	s.dirty = false
	s.persisting = true
	s.saveStatus = SaveStatusSaving
	return s.spec.Clone()
}

// autosave is the debounce expiry callback.
func (s *Session) autosave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.needsRecalc {
		// Structural edits won the race with the timer; the pending
		// burst rides along with the eventual recalculation.
		s.mu.Unlock()
		s.tel.Metrics.RecordAutosave("suppressed", 0)
		return
	}
	if s.persisting {
		s.pendingSave = true
		s.mu.Unlock()
		return
	}
	snapshot := s.beginPersistLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	_ = s.persist(ctx, snapshot)
}

// persist runs one UpdateBOM round trip and records the outcome on the
// session. Never more than one runs at a time.
func (s *Session) persist(ctx context.Context, snapshot *bom.Specification) error {
	ctx, span := s.tel.Tracer.StartPersistSpan(ctx, s.orderID)
	defer span.End()

	started := time.Now()
	err := s.service.UpdateBOM(ctx, s.orderID, snapshot)

	s.mu.Lock()
	s.persisting = false
	if err != nil {
		s.dirty = true
		s.saveStatus = SaveStatusError
		s.lastSaveErr = err
		s.pendingSave = false
		s.mu.Unlock()

		telemetry.RecordError(span, err)
		s.tel.Metrics.RecordAutosave("error", time.Since(started))
		s.logger.WithError(err).Error("save failed")
		s.tel.Events.Publish("save_failed", s.orderID, "error", "specification save failed")
		return pipeline.FromAPIError("persist specification", err)
	}

	s.saveStatus = SaveStatusSaved
	s.lastSaveErr = nil
	s.stopRevertLocked()
	s.revert = time.AfterFunc(s.displayWindow, s.revertSaved)
	reschedule := s.pendingSave || s.dirty
	s.pendingSave = false
	if reschedule && !s.needsRecalc {
		s.scheduleAutosaveLocked()
	}
	s.mu.Unlock()

	telemetry.RecordSuccess(span)
	s.tel.Metrics.RecordAutosave("saved", time.Since(started))
	s.logger.Debug("specification saved")
	return nil
}

// revertSaved flips a lingering saved indicator back to idle after the
// display window.
func (s *Session) revertSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveStatus == SaveStatusSaved {
		s.saveStatus = SaveStatusIdle
	}
}
