package storage

import (
	"context"

	"github.com/onesmallpr/questboard/internal/models"
)

// Repository defines the interface for catalog snapshot persistence
type Repository interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
