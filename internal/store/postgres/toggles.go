// Package postgres persists bot toggles and synchronizer audit events in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tripsync/internal/trip"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default table names.
const (
	DefaultTogglesTable = "bot_toggles"
	DefaultEventsTable  = "sync_events"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	TogglesTable    string
	EventsTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements trip.ToggleStore and trip.EventLog.
type Store struct {
	pool    pool
	toggles string
	events  string
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("toggles.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.TogglesTable, cfg.EventsTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, togglesTable, eventsTable string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if togglesTable == "" {
		togglesTable = DefaultTogglesTable
	}
	if eventsTable == "" {
		eventsTable = DefaultEventsTable
	}
	for _, name := range []string{togglesTable, eventsTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &Store{pool: p, toggles: togglesTable, events: eventsTable}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// SetBotEnabled upserts the flag keyed by visitor id.
func (s *Store) SetBotEnabled(ctx context.Context, visitorID string, enabled bool) error {
	if visitorID == "" {
		return fmt.Errorf("visitor id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (visitor_id, is_bot_enabled, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (visitor_id) DO UPDATE SET
	is_bot_enabled = EXCLUDED.is_bot_enabled,
	updated_at = EXCLUDED.updated_at`, s.toggles)
	if _, err := s.pool.Exec(ctx, query, visitorID, enabled); err != nil {
		return fmt.Errorf("upsert bot toggle: %w", err)
	}
	return nil
}

// BotEnabled reads the flag for visitorID.
func (s *Store) BotEnabled(ctx context.Context, visitorID string) (bool, error) {
	query := fmt.Sprintf(`SELECT is_bot_enabled FROM %s WHERE visitor_id = $1`, s.toggles)
	var enabled bool
	if err := s.pool.QueryRow(ctx, query, visitorID).Scan(&enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("toggle %q: %w", visitorID, trip.ErrNotFound)
		}
		return false, fmt.Errorf("select bot toggle: %w", err)
	}
	return enabled, nil
}

// RecordEvent inserts one audit row.
func (s *Store) RecordEvent(ctx context.Context, event trip.SyncEvent) error {
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (visitor_id, operation, outcome, detail, occurred_at)
VALUES ($1,$2,$3,$4,$5)`, s.events)
	if _, err := s.pool.Exec(ctx, query, event.VisitorID, event.Operation, event.Outcome, event.Detail, at); err != nil {
		return fmt.Errorf("insert sync event: %w", err)
	}
	return nil
}
