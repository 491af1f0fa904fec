package pipeline

import (
	"context"
	"sync"

	"github.com/camline/camline/pkg/api"
	"github.com/camline/camline/pkg/jobs"
	"github.com/camline/camline/pkg/telemetry"
)

// SettingsWriter persists the machine profile on the remote service.
// *api.Client satisfies it.
type SettingsWriter interface {
	UpdateSettings(ctx context.Context, settings *api.Settings) error
}

// ProfileStore persists the selected profile locally so the selection
// survives a restart.
type ProfileStore interface {
	SaveProfile(ctx context.Context, orderID, profileID string) error
}

// ReplayFunc re-runs a stage that was deferred pending profile selection.
type ReplayFunc func(ctx context.Context, kind jobs.Kind) error

// ProfileGate guards machine-dependent stages behind an explicit profile
// selection. There is no default profile: until the user selects one, the
// gate reports not-selected and gated stage requests are deferred, never
// sent to the service.
type ProfileGate struct {
	settings SettingsWriter
	store    ProfileStore
	orderID  string
	logger   *telemetry.Logger
	events   *telemetry.EventPublisher

	mu            sync.Mutex
	profileID     string
	promptPending bool
	deferred      []jobs.Kind
	replay        ReplayFunc
}

// GateConfig configures a ProfileGate.
type GateConfig struct {
	// OrderID is the order the gate belongs to.
	OrderID string

	// Settings persists the selection remotely. Required.
	Settings SettingsWriter

	// Store persists the selection locally. Optional.
	Store ProfileStore

	// ProfileID seeds the gate with an already-selected profile, as
	// restored on resume.
	ProfileID string

	// Telemetry provides logging and notifications. Optional.
	Telemetry *telemetry.Telemetry
}

// NewProfileGate creates a profile gate.
func NewProfileGate(cfg GateConfig) *ProfileGate {
	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}
	return &ProfileGate{
		settings:  cfg.Settings,
		store:     cfg.Store,
		orderID:   cfg.OrderID,
		profileID: cfg.ProfileID,
		logger:    tel.Logger.NewComponentLogger("gate"),
		events:    tel.Events,
	}
}

// SetReplay registers the function used to re-run deferred stages after a
// selection is made. The orchestrator registers itself here.
func (g *ProfileGate) SetReplay(replay ReplayFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replay = replay
}

// IsSelected returns true once a machine profile has been selected.
func (g *ProfileGate) IsSelected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.profileID != ""
}

// Profile returns the selected profile ID, empty when none is selected.
func (g *ProfileGate) Profile() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.profileID
}

// PromptPending returns true while a selection prompt is owed to the user.
func (g *ProfileGate) PromptPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.promptPending
}

// RequestSelection records that the given stage is waiting on a profile
// and surfaces the selection prompt. Requesting repeatedly for the same
// kind keeps a single deferred entry.
func (g *ProfileGate) RequestSelection(kind jobs.Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.promptPending = true
	for _, k := range g.deferred {
		if k == kind {
			return
		}
	}
	g.deferred = append(g.deferred, kind)

	g.logger.WithOrderID(g.orderID).WithStage(string(kind)).
		Info("machine profile required before stage can run")
	g.events.Publish("profile_required", g.orderID, "warning",
		"select a machine profile to generate "+string(kind))
}

// Select persists the chosen profile remotely and locally, clears the
// pending prompt, and replays every stage that was deferred waiting for
// the selection. A persistence failure leaves the gate unselected.
func (g *ProfileGate) Select(ctx context.Context, profileID string) error {
	if profileID == "" {
		return NewValidationError("profile id is required", nil)
	}

	if err := g.settings.UpdateSettings(ctx, &api.Settings{MachineProfile: profileID}); err != nil {
		return FromAPIError("persist machine profile", err)
	}

	if g.store != nil {
		if err := g.store.SaveProfile(ctx, g.orderID, profileID); err != nil {
			g.logger.WithError(err).Warn("local profile record failed")
		}
	}

	g.mu.Lock()
	g.profileID = profileID
	g.promptPending = false
	deferred := g.deferred
	g.deferred = nil
	replay := g.replay
	g.mu.Unlock()

	g.logger.WithOrderID(g.orderID).WithField("profile", profileID).
		Info("machine profile selected")
	g.events.Publish("profile_selected", g.orderID, "info",
		"machine profile set to "+profileID)

	if replay == nil {
		return nil
	}
	for _, kind := range deferred {
		if err := replay(ctx, kind); err != nil {
			g.logger.WithError(err).WithStage(string(kind)).
				Warn("deferred stage replay failed")
		}
	}
	return nil
}
