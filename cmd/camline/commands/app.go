package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/camline/camline/pkg/api"
	"github.com/camline/camline/pkg/config"
	"github.com/camline/camline/pkg/jobs"
	"github.com/camline/camline/pkg/pipeline"
	"github.com/camline/camline/pkg/session"
	"github.com/camline/camline/pkg/stores"
	"github.com/camline/camline/pkg/telemetry"
)

// app wires one command invocation: configuration, telemetry, the API
// client, the local store, the editing session and the pipeline.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	client *api.Client
	store  *stores.SQLiteStore
	sess   *session.Session
	gate   *pipeline.ProfileGate
	orch   *pipeline.Orchestrator

	unsubscribe func()
}

// newApp builds the full application around the given order. An empty
// orderID resumes the most recently edited order from the local store.
func newApp(ctx context.Context, orderID string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	if jsonOutput {
		cfg.Telemetry.LogFormat = "json"
	}

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(appVersion))
	if err != nil {
		return nil, err
	}
	// Serve /metrics when enabled; tel.Shutdown stops it in close.
	if err := tel.Metrics.StartServer(); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.Service.BaseURL,
		Timeout: cfg.Service.Timeout,
	})
	if err != nil {
		return nil, err
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	if orderID == "" {
		last, err := store.LastSession(ctx)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("no order to operate on, run 'camline resume <order-id>' first")
		}
		orderID = last.OrderID
	}

	a := &app{
		cfg:    cfg,
		tel:    tel,
		client: client,
		store:  store,
	}
	a.unsubscribe = tel.Events.Subscribe(a.logEvent)

	a.sess, err = session.Resume(ctx, session.Config{
		OrderID:       orderID,
		Service:       client,
		Store:         store,
		DebounceDelay: cfg.Session.DebounceDelay,
		DisplayWindow: cfg.Session.DisplayWindow,
		Telemetry:     tel,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	// The machine profile lives in the remote settings; the sheet
	// defaults fall back to configuration when the service has none.
	sheet := api.SheetConstraints{
		WidthMM:  cfg.Pipeline.SheetWidthMM,
		HeightMM: cfg.Pipeline.SheetHeightMM,
		TrimMM:   cfg.Pipeline.SheetTrimMM,
	}
	profileID := ""
	if settings, err := client.GetSettings(ctx); err == nil {
		profileID = settings.MachineProfile
		if settings.Sheet.WidthMM > 0 && settings.Sheet.HeightMM > 0 {
			sheet = settings.Sheet
		}
	} else {
		tel.Logger.WithError(err).Warn("settings unavailable, using configured defaults")
	}

	a.gate = pipeline.NewProfileGate(pipeline.GateConfig{
		OrderID:   orderID,
		Settings:  client,
		Store:     store,
		ProfileID: profileID,
		Telemetry: tel,
	})

	a.orch, err = pipeline.NewOrchestrator(pipeline.Config{
		OrderID:     orderID,
		Service:     client,
		Gate:        a.gate,
		Spec:        a.sess.Spec,
		Recorder:    store,
		Sheet:       sheet,
		CutDepthMM:  cfg.Pipeline.CutDepthMM,
		PollOptions: jobsPollOptions(cfg),
		Telemetry:   tel,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	// Seed stages with previously generated artifacts.
	if artifacts, err := store.ListArtifacts(ctx, orderID); err == nil {
		for _, rec := range artifacts {
			a.orch.RestoreArtifact(rec.Kind, rec.JobID, rec.ArtifactRef)
		}
	}

	return a, nil
}

// close releases the application resources in reverse wiring order.
func (a *app) close(ctx context.Context) {
	if a.sess != nil {
		a.sess.Close()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
}

// logEvent mirrors user-facing notifications into the local activity log.
func (a *app) logEvent(event telemetry.Event) {
	level := stores.EventLevelInfo
	switch event.Level {
	case "debug":
		level = stores.EventLevelDebug
	case "warning":
		level = stores.EventLevelWarning
	case "error":
		level = stores.EventLevelError
	}
	_ = a.store.AppendEvent(context.Background(), &stores.EventRecord{
		OrderID:   event.OrderID,
		Level:     level,
		Message:   event.Message,
		Timestamp: event.Timestamp,
	})
}

// jobsPollOptions maps the configured polling bounds.
func jobsPollOptions(cfg *config.Config) jobs.PollOptions {
	return jobs.PollOptions{
		Interval:    cfg.Pipeline.PollInterval,
		MaxAttempts: cfg.Pipeline.PollMaxAttempts,
	}
}

// printResult renders a command result as text lines or JSON.
func printResult(lines []string, payload interface{}) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(payload)
		return
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}
