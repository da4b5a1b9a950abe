// Package catalog maintains the enriched quest list served to users.
//
// Reads are served from memory. An empty catalog is populated before the
// first read returns; a stale one is refreshed in the background while the
// previous entries keep being served.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onesmallpr/questboard/internal/config"
	"github.com/onesmallpr/questboard/internal/models"
)

var (
	// ErrQuestNotFound is returned by Get for an unknown id
	ErrQuestNotFound = errors.New("quest not found")
	// ErrEmptyBatch is returned when the upstream search yields no issues
	ErrEmptyBatch = errors.New("upstream returned no issues")
	// ErrAllEnrichmentFailed is returned when no issue in a batch could be analyzed
	ErrAllEnrichmentFailed = errors.New("analysis failed for every issue in the batch")
)

const persistTimeout = 10 * time.Second

// Source fetches raw candidate issues
type Source interface {
	Search(ctx context.Context) ([]models.RawIssue, error)
}

// Analyzer produces a difficulty verdict for one issue
type Analyzer interface {
	Analyze(ctx context.Context, title, body string) (*models.Analysis, error)
}

// SnapshotStore persists committed snapshots across restarts
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// Recorder receives refresh instrumentation
type Recorder interface {
	ObserveRefresh(outcome string, elapsed time.Duration)
	EnrichmentFallback()
}

// Refresh outcomes reported to the Recorder
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeEmpty     = "empty"
	OutcomeDegraded  = "degraded"
)

// CommitHook is called after every successful commit
type CommitHook func(snap models.Snapshot)

// Listing is the result of List
type Listing struct {
	Quests          []models.Quest
	LastRefreshedAt time.Time
}

// RefreshResult reports whether a refresh replaced the entries
type RefreshResult struct {
	Refreshed bool `json:"refreshed"`
	Count     int  `json:"count"`
}

// Option configures a Catalog
type Option func(*Catalog)

// WithStore enables snapshot persistence
func WithStore(store SnapshotStore) Option {
	return func(c *Catalog) {
		c.store = store
	}
}

// WithRecorder sets the instrumentation sink
func WithRecorder(r Recorder) Option {
	return func(c *Catalog) {
		c.recorder = r
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// OnCommit registers a hook called after each commit
func OnCommit(hook CommitHook) Option {
	return func(c *Catalog) {
		c.hooks = append(c.hooks, hook)
	}
}

// Catalog is the refreshable quest catalog. The zero value is not usable;
// construct with New.
type Catalog struct {
	source   Source
	analyzer Analyzer
	cfg      config.CatalogConfig
	store    SnapshotStore
	recorder Recorder
	now      func() time.Time
	hooks    []CommitHook

	mu              sync.RWMutex
	quests          []models.Quest
	lastRefreshedAt time.Time

	flight     singleflight.Group
	background sync.WaitGroup
}

// New creates an empty catalog
func New(source Source, analyzer Analyzer, cfg config.CatalogConfig, opts ...Option) *Catalog {
	if cfg.EnrichConcurrency < 1 {
		cfg.EnrichConcurrency = 1
	}

	c := &Catalog{
		source:   source,
		analyzer: analyzer,
		cfg:      cfg,
		recorder: nopRecorder{},
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// List returns the current entries. An empty catalog is refreshed before
// returning; a stale one triggers a background refresh and is returned as is.
// Upstream failures never surface here: the worst case is an empty listing.
func (c *Catalog) List(ctx context.Context) Listing {
	current := c.snapshot()

	if len(current.Quests) == 0 {
		if _, err := c.Refresh(ctx); err != nil {
			slog.Warn("initial catalog population failed", "error", err)
		}
		return c.snapshot()
	}

	if c.now().Sub(current.LastRefreshedAt) > c.cfg.FreshnessWindow {
		slog.Debug("catalog is stale, refreshing in background",
			"last_refreshed_at", current.LastRefreshedAt,
		)
		c.refreshInBackground()
	}

	return current
}

// Get returns the quest with the given id
func (c *Catalog) Get(id string) (*models.Quest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.quests {
		if c.quests[i].ID == id {
			q := c.quests[i]
			return &q, nil
		}
	}
	return nil, ErrQuestNotFound
}

// Refresh fetches and enriches a new batch and replaces the entries on success.
// On failure the previous entries and timestamp are kept and the error is returned
// alongside the current count.
func (c *Catalog) Refresh(ctx context.Context) (RefreshResult, error) {
	if !c.cfg.SingleFlight {
		return c.refresh(ctx)
	}

	ch := c.flight.DoChan("refresh", func() (any, error) {
		// joined callers must not be cut short by the first caller going away
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
		defer cancel()
		return c.refresh(fctx)
	})

	select {
	case <-ctx.Done():
		return RefreshResult{Count: c.count()}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			slog.Debug("joined in-flight refresh")
		}
		return res.Val.(RefreshResult), res.Err
	}
}

// Restore loads the last persisted snapshot, if any
func (c *Catalog) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	snap, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil || len(snap.Quests) == 0 {
		slog.Info("no persisted catalog snapshot")
		return nil
	}

	c.mu.Lock()
	c.quests = snap.Quests
	c.lastRefreshedAt = snap.LastRefreshedAt
	c.mu.Unlock()

	slog.Info("catalog restored from snapshot",
		"count", len(snap.Quests),
		"last_refreshed_at", snap.LastRefreshedAt,
	)
	return nil
}

// Wait blocks until all background refreshes have finished
func (c *Catalog) Wait() {
	c.background.Wait()
}

// Snapshot returns a copy of the committed state
func (c *Catalog) Snapshot() models.Snapshot {
	s := c.snapshot()
	return models.Snapshot{Quests: s.Quests, LastRefreshedAt: s.LastRefreshedAt}
}

func (c *Catalog) snapshot() Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// committed slices are never mutated, sharing the backing array is safe
	return Listing{Quests: c.quests, LastRefreshedAt: c.lastRefreshedAt}
}

func (c *Catalog) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quests)
}

func (c *Catalog) refreshInBackground() {
	c.background.Add(1)
	go func() {
		defer c.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RefreshTimeout)
		defer cancel()

		if _, err := c.Refresh(ctx); err != nil {
			slog.Warn("background refresh failed", "error", err)
		}
	}()
}

func (c *Catalog) refresh(ctx context.Context) (RefreshResult, error) {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	issues, err := c.source.Search(fetchCtx)
	cancel()
	if err != nil {
		return c.fail(start, OutcomeFailed, fmt.Errorf("failed to fetch issues: %w", err))
	}
	if len(issues) == 0 {
		return c.fail(start, OutcomeEmpty, ErrEmptyBatch)
	}

	if c.cfg.Dedupe {
		issues = Dedupe(issues)
	}

	slog.Info("enriching issue batch", "count", len(issues))

	enrichments, succeeded := c.enrichAll(ctx, issues)
	if succeeded == 0 {
		return c.fail(start, OutcomeDegraded, ErrAllEnrichmentFailed)
	}

	quests := make([]models.Quest, len(issues))
	for i := range issues {
		quests[i] = BuildQuest(&issues[i], enrichments[i], c.cfg.DescriptionLimit)
	}

	snap := c.commit(quests)
	c.recorder.ObserveRefresh(OutcomeCommitted, time.Since(start))

	slog.Info("catalog refreshed",
		"count", len(quests),
		"enriched", succeeded,
		"fallbacks", len(quests)-succeeded,
		"duration", time.Since(start),
	)

	c.persist(ctx, snap)
	for _, hook := range c.hooks {
		hook(snap)
	}

	return RefreshResult{Refreshed: true, Count: len(quests)}, nil
}

// commit swaps entries and timestamp in one critical section
func (c *Catalog) commit(quests []models.Quest) models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.quests = quests
	c.lastRefreshedAt = c.now()
	return models.Snapshot{Quests: quests, LastRefreshedAt: c.lastRefreshedAt}
}

func (c *Catalog) fail(start time.Time, outcome string, err error) (RefreshResult, error) {
	c.recorder.ObserveRefresh(outcome, time.Since(start))
	count := c.count()
	slog.Warn("catalog refresh failed, keeping previous entries",
		"error", err,
		"outcome", outcome,
		"count", count,
	)
	return RefreshResult{Refreshed: false, Count: count}, err
}

func (c *Catalog) persist(ctx context.Context, snap models.Snapshot) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := c.store.SaveSnapshot(ctx, &snap); err != nil {
		slog.Error("failed to persist catalog snapshot", "error", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveRefresh(string, time.Duration) {}
func (nopRecorder) EnrichmentFallback()                  {}
