package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("not found")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the config as a lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store persists ticks, submitted votes, distributions and parameter versions in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the database and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the database connection pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	log.Info().Msg("Closing database connection...")
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	}
}

// Ping tests if the database connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// EnsureSchema applies the DDL. Safe to run multiple times.
func (s *Store) EnsureSchema() error {
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS protocol_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			parameters JSONB NOT NULL,
			CONSTRAINT uq_protocol_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_protocol_parameters_config_active ON protocol_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS tick_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			tick_number INTEGER NOT NULL,
			tick_id UUID NOT NULL UNIQUE,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			syncs JSONB,
			claims JSONB,
			distributions JSONB,
			submission JSONB,
			top_pools JSONB,
			errors TEXT[]
		);
		CREATE INDEX IF NOT EXISTS idx_tick_snapshots_timestamp ON tick_snapshots(snapshot_timestamp DESC);

		CREATE TABLE IF NOT EXISTS vote_submissions (
			submission_id SERIAL PRIMARY KEY,
			tick_id UUID,
			epoch BIGINT NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			pools TEXT[] NOT NULL,
			weights NUMERIC(78, 0)[] NOT NULL,
			total_vote_weight NUMERIC(78, 0) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_vote_submissions_epoch ON vote_submissions(epoch DESC);

		CREATE TABLE IF NOT EXISTS distributions (
			distribution_id SERIAL PRIMARY KEY,
			tick_id UUID,
			distributed_at TIMESTAMPTZ NOT NULL,
			wrapper VARCHAR(42) NOT NULL,
			token VARCHAR(42) NOT NULL,
			partner_token VARCHAR(42) NOT NULL,
			amount NUMERIC(78, 0) NOT NULL,
			partner_bps INTEGER NOT NULL,
			partner NUMERIC(78, 0) NOT NULL,
			base_stakers NUMERIC(78, 0) NOT NULL,
			lockers NUMERIC(78, 0) NOT NULL,
			lp_stakers NUMERIC(78, 0) NOT NULL,
			treasury NUMERIC(78, 0) NOT NULL,
			ecosystem NUMERIC(78, 0) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_distributions_token ON distributions(token);

		-- Tick counter table for persistent global tick tracking
		CREATE TABLE IF NOT EXISTS tick_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_tick INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		INSERT INTO tick_counter (id, current_tick)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// Reset drops every table owned by the store.
func (s *Store) Reset() error {
	dropSQL := `
		DROP TABLE IF EXISTS distributions CASCADE;
		DROP TABLE IF EXISTS vote_submissions CASCADE;
		DROP TABLE IF EXISTS tick_snapshots CASCADE;
		DROP TABLE IF EXISTS tick_counter CASCADE;
		DROP TABLE IF EXISTS protocol_parameters CASCADE;
	`
	if _, err := s.db.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("All votesnap tables dropped")
	return nil
}
