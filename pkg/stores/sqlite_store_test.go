package stores

import (
	"context"
	"testing"
	"time"

	"github.com/camline/camline/pkg/jobs"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()

	tables := []string{"sessions", "artifacts", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestSessionRoundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.TouchSession(ctx, "order-1"); err != nil {
		t.Fatalf("failed to touch session: %v", err)
	}

	rec, err := store.GetSession(ctx, "order-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if rec.OrderID != "order-1" {
		t.Errorf("expected order-1, got %s", rec.OrderID)
	}
	if rec.ProfileSelected {
		t.Error("expected no profile selected for fresh session")
	}
	if rec.MachineProfile != nil {
		t.Errorf("expected nil profile, got %v", *rec.MachineProfile)
	}

	// Touching again must not fail or lose the row.
	if err := store.TouchSession(ctx, "order-1"); err != nil {
		t.Fatalf("failed to re-touch session: %v", err)
	}
}

func TestSaveProfileMarksSelection(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// SaveProfile must work without a prior TouchSession.
	if err := store.SaveProfile(ctx, "order-1", "biesse_rover"); err != nil {
		t.Fatalf("failed to save profile: %v", err)
	}

	rec, err := store.GetSession(ctx, "order-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if !rec.ProfileSelected {
		t.Error("expected profile_selected set")
	}
	if rec.MachineProfile == nil || *rec.MachineProfile != "biesse_rover" {
		t.Errorf("unexpected profile: %v", rec.MachineProfile)
	}

	// Selecting again replaces the profile.
	if err := store.SaveProfile(ctx, "order-1", "homag_centateq"); err != nil {
		t.Fatalf("failed to update profile: %v", err)
	}
	rec, err = store.GetSession(ctx, "order-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if *rec.MachineProfile != "homag_centateq" {
		t.Errorf("expected homag_centateq, got %s", *rec.MachineProfile)
	}
}

func TestLastSession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.LastSession(ctx); err == nil {
		t.Error("expected error when no sessions recorded")
	}

	if err := store.TouchSession(ctx, "order-1"); err != nil {
		t.Fatalf("failed to touch session: %v", err)
	}

	rec, err := store.LastSession(ctx)
	if err != nil {
		t.Fatalf("failed to get last session: %v", err)
	}
	if rec.OrderID != "order-1" {
		t.Errorf("expected order-1, got %s", rec.OrderID)
	}
}

func TestArtifactRoundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.SaveArtifact(ctx, "order-1", jobs.KindLayout, "job-11", "artifacts/layout.dxf")
	if err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}

	rec, err := store.GetArtifact(ctx, "order-1", jobs.KindLayout)
	if err != nil {
		t.Fatalf("failed to get artifact: %v", err)
	}
	if rec.ArtifactRef != "artifacts/layout.dxf" {
		t.Errorf("unexpected artifact ref: %s", rec.ArtifactRef)
	}
	if rec.JobID != "job-11" {
		t.Errorf("unexpected job id: %s", rec.JobID)
	}

	// A regenerated artifact replaces the previous one per stage.
	err = store.SaveArtifact(ctx, "order-1", jobs.KindLayout, "job-12", "artifacts/layout-v2.dxf")
	if err != nil {
		t.Fatalf("failed to replace artifact: %v", err)
	}

	rec, err = store.GetArtifact(ctx, "order-1", jobs.KindLayout)
	if err != nil {
		t.Fatalf("failed to get replaced artifact: %v", err)
	}
	if rec.ArtifactRef != "artifacts/layout-v2.dxf" {
		t.Errorf("expected replaced ref, got %s", rec.ArtifactRef)
	}

	artifacts, err := store.ListArtifacts(ctx, "order-1")
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}
	if len(artifacts) != 1 {
		t.Errorf("expected 1 artifact after replacement, got %d", len(artifacts))
	}
}

func TestSaveArtifactRejectsUnknownKind(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveArtifact(context.Background(), "order-1", jobs.Kind("sanding"), "job-1", "ref")
	if err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestGetArtifactNotFound(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.GetArtifact(context.Background(), "order-1", jobs.KindGCode); err == nil {
		t.Error("expected error for missing artifact")
	}
}

func TestEventLog(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, msg := range []string{"session resumed", "layout artifact generated", "save failed"} {
		level := EventLevelInfo
		if i == 2 {
			level = EventLevelError
		}
		event := &EventRecord{
			OrderID:   "order-1",
			Level:     level,
			Message:   msg,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if event.ID == 0 {
			t.Error("expected auto-assigned event ID")
		}
	}

	events, err := store.ListEvents(ctx, "order-1", nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Message != "save failed" {
		t.Errorf("expected newest first, got %s", events[0].Message)
	}

	errLevel := EventLevelError
	events, err = store.ListEvents(ctx, "order-1", &errLevel, 10, 0)
	if err != nil {
		t.Fatalf("failed to list filtered events: %v", err)
	}
	if len(events) != 1 || events[0].Level != EventLevelError {
		t.Errorf("expected 1 error event, got %d", len(events))
	}
}

func TestInitHonorsPoolConfig(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:            ":memory:",
		MaxOpenConns:    3,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if got := store.db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("expected 3 max open connections, got %d", got)
	}
}

func TestPoolConfigDefaults(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if store.cfg.MaxOpenConns != 5 {
		t.Errorf("expected default max open connections 5, got %d", store.cfg.MaxOpenConns)
	}
	if store.cfg.MaxIdleConns != 2 {
		t.Errorf("expected default max idle connections 2, got %d", store.cfg.MaxIdleConns)
	}
	if store.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("expected default connection lifetime 5m, got %s", store.cfg.ConnMaxLifetime)
	}
}
