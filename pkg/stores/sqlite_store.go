package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/camline/camline/pkg/jobs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is the client-local session store backed by SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration. The pool fields are optional;
// a single-user client tool needs only a small pool, so the zero values
// select small defaults.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 5
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// TouchSession records that the order was resumed now, creating the
// session row if it does not exist yet.
func (s *SQLiteStore) TouchSession(ctx context.Context, orderID string) error {
	query := `
		INSERT INTO sessions (order_id, resumed_at, updated_at)
		VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id) DO UPDATE SET
			resumed_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, orderID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// SaveProfile records the selected machine profile for the order.
func (s *SQLiteStore) SaveProfile(ctx context.Context, orderID, profileID string) error {
	query := `
		INSERT INTO sessions (order_id, machine_profile, profile_selected, updated_at)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id) DO UPDATE SET
			machine_profile = excluded.machine_profile,
			profile_selected = 1,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, orderID, profileID); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// GetSession retrieves the session record for an order.
func (s *SQLiteStore) GetSession(ctx context.Context, orderID string) (*SessionRecord, error) {
	query := `
		SELECT order_id, machine_profile, profile_selected, resumed_at, updated_at
		FROM sessions
		WHERE order_id = ?
	`

	rec := &SessionRecord{}
	err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&rec.OrderID,
		&rec.MachineProfile,
		&rec.ProfileSelected,
		&rec.ResumedAt,
		&rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return rec, nil
}

// LastSession returns the most recently touched session, if any.
func (s *SQLiteStore) LastSession(ctx context.Context) (*SessionRecord, error) {
	query := `
		SELECT order_id, machine_profile, profile_selected, resumed_at, updated_at
		FROM sessions
		ORDER BY resumed_at DESC
		LIMIT 1
	`

	rec := &SessionRecord{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&rec.OrderID,
		&rec.MachineProfile,
		&rec.ProfileSelected,
		&rec.ResumedAt,
		&rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no sessions recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last session: %w", err)
	}

	return rec, nil
}

// SaveArtifact records the latest successful artifact for an order and
// stage, replacing any previous one.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, orderID string, kind jobs.Kind, jobID, artifactRef string) error {
	if err := kind.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO artifacts (order_id, kind, job_id, artifact_ref, generated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id, kind) DO UPDATE SET
			job_id = excluded.job_id,
			artifact_ref = excluded.artifact_ref,
			generated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, orderID, kind, jobID, artifactRef); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves the recorded artifact for an order and stage.
func (s *SQLiteStore) GetArtifact(ctx context.Context, orderID string, kind jobs.Kind) (*ArtifactRecord, error) {
	query := `
		SELECT order_id, kind, job_id, artifact_ref, generated_at
		FROM artifacts
		WHERE order_id = ? AND kind = ?
	`

	rec := &ArtifactRecord{}
	err := s.db.QueryRowContext(ctx, query, orderID, kind).Scan(
		&rec.OrderID,
		&rec.Kind,
		&rec.JobID,
		&rec.ArtifactRef,
		&rec.GeneratedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact not found: %s/%s", orderID, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return rec, nil
}

// ListArtifacts lists all recorded artifacts for an order.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, orderID string) ([]*ArtifactRecord, error) {
	query := `
		SELECT order_id, kind, job_id, artifact_ref, generated_at
		FROM artifacts
		WHERE order_id = ?
		ORDER BY kind ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*ArtifactRecord{}
	for rows.Next() {
		rec := &ArtifactRecord{}
		err := rows.Scan(
			&rec.OrderID,
			&rec.Kind,
			&rec.JobID,
			&rec.ArtifactRef,
			&rec.GeneratedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return artifacts, nil
}

// AppendEvent appends a new event to the local activity log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *EventRecord) error {
	query := `
		INSERT INTO events (order_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.OrderID,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// ListEvents retrieves events for an order with optional level filter and
// pagination.
func (s *SQLiteStore) ListEvents(ctx context.Context, orderID string, level *EventLevel, limit, offset int) ([]*EventRecord, error) {
	query := `
		SELECT id, order_id, level, message, details, timestamp
		FROM events
		WHERE order_id = ?
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, orderID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		event := &EventRecord{}
		err := rows.Scan(
			&event.ID,
			&event.OrderID,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
