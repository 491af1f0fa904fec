package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/camline/camline/pkg/jobs"
)

func TestGateStartsUnselected(t *testing.T) {
	gate := NewProfileGate(GateConfig{OrderID: "order-1", Settings: &fakeSettings{}})

	if gate.IsSelected() {
		t.Error("Expected no profile selected initially")
	}
	if gate.Profile() != "" {
		t.Errorf("Expected empty profile, got %s", gate.Profile())
	}
	if gate.PromptPending() {
		t.Error("Expected no pending prompt initially")
	}
}

func TestGateSeededFromResume(t *testing.T) {
	gate := NewProfileGate(GateConfig{
		OrderID:   "order-1",
		Settings:  &fakeSettings{},
		ProfileID: "biesse_rover",
	})

	if !gate.IsSelected() {
		t.Error("Expected seeded gate to report selected")
	}
}

func TestRequestSelectionDeduplicates(t *testing.T) {
	gate := NewProfileGate(GateConfig{OrderID: "order-1", Settings: &fakeSettings{}})

	gate.RequestSelection(jobs.KindGCode)
	gate.RequestSelection(jobs.KindGCode)
	gate.RequestSelection(jobs.KindDrilling)

	var replayed []jobs.Kind
	gate.SetReplay(func(ctx context.Context, kind jobs.Kind) error {
		replayed = append(replayed, kind)
		return nil
	})

	if err := gate.Select(context.Background(), "homag_centateq"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(replayed) != 2 {
		t.Fatalf("Expected 2 distinct deferred stages replayed, got %v", replayed)
	}
	if replayed[0] != jobs.KindGCode || replayed[1] != jobs.KindDrilling {
		t.Errorf("Expected replay order [gcode drilling], got %v", replayed)
	}
}

func TestSelectRejectsEmptyProfile(t *testing.T) {
	settings := &fakeSettings{}
	gate := NewProfileGate(GateConfig{OrderID: "order-1", Settings: settings})

	if err := gate.Select(context.Background(), ""); !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if len(settings.profiles) != 0 {
		t.Error("Expected no settings write for rejected selection")
	}
}

func TestSelectFailureLeavesGateUnselected(t *testing.T) {
	settings := &fakeSettings{err: fmt.Errorf("service unavailable")}
	gate := NewProfileGate(GateConfig{OrderID: "order-1", Settings: settings})
	gate.RequestSelection(jobs.KindGCode)

	if err := gate.Select(context.Background(), "biesse_rover"); err == nil {
		t.Fatal("Expected Select to fail when persistence fails")
	}
	if gate.IsSelected() {
		t.Error("Expected gate to stay unselected after failed persist")
	}
	if !gate.PromptPending() {
		t.Error("Expected prompt to stay pending after failed persist")
	}
}

func TestSelectDoesNotReplayWithoutDeferredStages(t *testing.T) {
	gate := NewProfileGate(GateConfig{OrderID: "order-1", Settings: &fakeSettings{}})

	replayed := 0
	gate.SetReplay(func(ctx context.Context, kind jobs.Kind) error {
		replayed++
		return nil
	})

	if err := gate.Select(context.Background(), "biesse_rover"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if replayed != 0 {
		t.Errorf("Expected no replays, got %d", replayed)
	}
}
