package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onesmallpr/questboard/internal/models"
)

// DefaultRetention is the number of snapshots kept when none is configured
const DefaultRetention = 20

// SnapshotInfo describes a stored snapshot without its entries
type SnapshotInfo struct {
	ID          int64     `json:"id"`
	RefreshedAt time.Time `json:"refreshedAt"`
	QuestCount  int       `json:"questCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool      *pgxpool.Pool
	retention int
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
	Retention    int
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	// Set pool configuration
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 1
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &PostgresRepository{pool: pool, retention: retention}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// HealthCheck checks database connectivity for the readiness probe
func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Type returns the dependency name used in readiness reports
func (r *PostgresRepository) Type() string {
	return "postgres"
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SaveSnapshot stores a committed catalog snapshot and prunes old ones
func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	entriesJSON, err := json.Marshal(snap.Quests)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO catalog_snapshots (refreshed_at, quest_count, entries)
		VALUES ($1, $2, $3)
	`, snap.LastRefreshedAt, len(snap.Quests), entriesJSON)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM catalog_snapshots
		WHERE id NOT IN (
			SELECT id FROM catalog_snapshots ORDER BY refreshed_at DESC, id DESC LIMIT $1
		)
	`, r.retention)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot returns the most recent snapshot, or nil when none is stored
func (r *PostgresRepository) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	query := `
		SELECT refreshed_at, entries
		FROM catalog_snapshots
		ORDER BY refreshed_at DESC, id DESC
		LIMIT 1
	`

	var snap models.Snapshot
	var entriesJSON []byte

	err := r.pool.QueryRow(ctx, query).Scan(&snap.LastRefreshedAt, &entriesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := json.Unmarshal(entriesJSON, &snap.Quests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entries: %w", err)
	}

	return &snap, nil
}

// ListSnapshots returns metadata of the most recent snapshots, newest first
func (r *PostgresRepository) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 || limit > r.retention {
		limit = r.retention
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, refreshed_at, quest_count, created_at
		FROM catalog_snapshots
		ORDER BY refreshed_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.RefreshedAt, &info.QuestCount, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}
