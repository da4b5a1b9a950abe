// Package warmup keeps the quest catalog warm without waiting for user traffic.
package warmup

import (
	"context"
	"log/slog"
	"time"

	"github.com/onesmallpr/questboard/internal/catalog"
)

// Lister is the catalog read path driven by the warmer
type Lister interface {
	List(ctx context.Context) catalog.Listing
}

// Warmer periodically reads the catalog so that an empty catalog is populated
// and a stale one is refreshed in the background
type Warmer struct {
	catalog  Lister
	interval time.Duration
}

// NewWarmer creates a new warmup worker
func NewWarmer(c Lister, interval time.Duration) *Warmer {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &Warmer{
		catalog:  c,
		interval: interval,
	}
}

// Start begins the warmup worker in a goroutine
func (w *Warmer) Start(ctx context.Context) {
	go w.run(ctx)
}

// run is the main loop for the warmup worker
func (w *Warmer) run(ctx context.Context) {
	slog.Info("catalog warmer started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.warm(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("catalog warmer stopped")
			return
		case <-ticker.C:
			w.warm(ctx)
		}
	}
}

// warm performs one read through the catalog freshness check
func (w *Warmer) warm(ctx context.Context) {
	slog.Debug("running warmup cycle")

	listing := w.catalog.List(ctx)
	if len(listing.Quests) == 0 {
		slog.Warn("catalog still empty after warmup cycle")
		return
	}

	slog.Debug("catalog warm",
		"count", len(listing.Quests),
		"last_refreshed_at", listing.LastRefreshedAt,
	)
}
