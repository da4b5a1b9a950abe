package catalog

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onesmallpr/questboard/internal/config"
	"github.com/onesmallpr/questboard/internal/models"
)

// --- fakes ---

type fakeSource struct {
	mu      sync.Mutex
	issues  []models.RawIssue
	err     error
	calls   atomic.Int32
	release chan struct{} // when set, Search blocks until closed
}

func (s *fakeSource) Search(ctx context.Context) ([]models.RawIssue, error) {
	s.calls.Add(1)

	s.mu.Lock()
	release := s.release
	issues, err := s.issues, s.err
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return issues, err
}

func (s *fakeSource) set(issues []models.RawIssue, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues, s.err = issues, err
}

func (s *fakeSource) block() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release = make(chan struct{})
	return s.release
}

// fakeAnalyzer returns an easy verdict unless the title is listed in fail or panic
type fakeAnalyzer struct {
	fail  map[string]bool
	panic map[string]bool
	easy  bool
	calls atomic.Int32
}

func (a *fakeAnalyzer) Analyze(_ context.Context, title, _ string) (*models.Analysis, error) {
	a.calls.Add(1)
	if a.panic[title] {
		panic("boom")
	}
	if a.fail[title] {
		return nil, errors.New("analysis unavailable")
	}
	easy := a.easy
	return &models.Analysis{IsEasy: &easy, Reasoning: "scoped change", EstimatedTime: "30 mins"}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memStore struct {
	mu    sync.Mutex
	saved *models.Snapshot
	err   error
}

func (m *memStore) SaveSnapshot(_ context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.saved = &cp
	return m.err
}

func (m *memStore) LoadSnapshot(context.Context) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, m.err
}

func issue(id int64, title string, labels ...string) models.RawIssue {
	raw := models.RawIssue{
		ID:            id,
		Title:         title,
		Body:          "body of " + title,
		HTMLURL:       "https://github.com/acme/widgets/issues/1",
		RepositoryURL: "https://api.github.com/repos/acme/widgets",
	}
	for _, l := range labels {
		raw.Labels = append(raw.Labels, models.RawLabel{Name: l})
	}
	return raw
}

func testConfig() config.CatalogConfig {
	return config.CatalogConfig{
		FreshnessWindow:   time.Hour,
		FetchTimeout:      time.Second,
		AnalysisTimeout:   time.Second,
		RefreshTimeout:    5 * time.Second,
		EnrichConcurrency: 4,
		DescriptionLimit:  500,
	}
}

func newTestCatalog(src Source, an Analyzer, clk *clock, opts ...Option) *Catalog {
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(src, an, testConfig(), opts...)
}

// --- tests ---

func TestRefresh_CommitsBatchInUpstreamOrder(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{
		issue(3, "third"), issue(1, "first"), issue(2, "second"),
	}}
	clk := newClock()
	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, clk)

	res, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !res.Refreshed || res.Count != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	listing := c.List(context.Background())
	ids := []string{listing.Quests[0].ID, listing.Quests[1].ID, listing.Quests[2].ID}
	if !reflect.DeepEqual(ids, []string{"3", "1", "2"}) {
		t.Errorf("expected upstream order, got %v", ids)
	}
	if !listing.LastRefreshedAt.Equal(clk.Now()) {
		t.Errorf("lastRefreshedAt = %v, want %v", listing.LastRefreshedAt, clk.Now())
	}
}

func TestRefresh_UpstreamFailureKeepsState(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a"), issue(2, "b")}}
	clk := newClock()
	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, clk)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	before := c.Snapshot()

	clk.Advance(2 * time.Hour)
	src.set(nil, errors.New("connection refused"))

	res, err := c.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if res.Refreshed || res.Count != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	after := c.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("state changed after failed refresh:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRefresh_PartialEnrichmentFailure(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{
		issue(1, "ok one"), issue(2, "broken", "bug"), issue(3, "ok two"),
	}}
	an := &fakeAnalyzer{easy: true, fail: map[string]bool{"broken": true}}
	c := newTestCatalog(src, an, newClock())

	res, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("expected no dropped items, got %d", res.Count)
	}

	broken, err := c.Get("2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if broken.Analysis.TechnicalRequirements != FallbackReasoning {
		t.Errorf("expected fallback marker, got %q", broken.Analysis.TechnicalRequirements)
	}
	if broken.Analysis.EstimatedTime == "" {
		t.Error("fallback estimatedTime must not be empty")
	}
	if broken.Rank != models.RankC {
		t.Errorf("fallback rank should come from labels, got %s", broken.Rank)
	}

	ok, _ := c.Get("1")
	if ok.Rank != models.RankE || IsFallback(ok.Analysis) {
		t.Errorf("healthy item was affected: %+v", ok)
	}
}

func TestRefresh_PanicIsolatedToItem(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "explodes"), issue(2, "fine")}}
	an := &fakeAnalyzer{easy: true, panic: map[string]bool{"explodes": true}}
	c := newTestCatalog(src, an, newClock())

	res, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("expected 2 entries, got %d", res.Count)
	}
	q, _ := c.Get("1")
	if !IsFallback(q.Analysis) {
		t.Error("panicking analysis should produce a fallback")
	}
}

func TestRefresh_AllEnrichmentFailed(t *testing.T) {
	t.Run("first population stays empty", func(t *testing.T) {
		src := &fakeSource{issues: []models.RawIssue{issue(1, "a"), issue(2, "b")}}
		an := &fakeAnalyzer{fail: map[string]bool{"a": true, "b": true}}
		c := newTestCatalog(src, an, newClock())

		res, err := c.Refresh(context.Background())
		if !errors.Is(err, ErrAllEnrichmentFailed) {
			t.Fatalf("expected ErrAllEnrichmentFailed, got %v", err)
		}
		if res.Refreshed || res.Count != 0 {
			t.Errorf("unexpected result %+v", res)
		}
		if got := c.Snapshot(); len(got.Quests) != 0 || !got.LastRefreshedAt.IsZero() {
			t.Errorf("catalog should stay empty, got %+v", got)
		}
	})

	t.Run("prior state preserved", func(t *testing.T) {
		src := &fakeSource{issues: []models.RawIssue{issue(1, "a")}}
		an := &fakeAnalyzer{easy: true, fail: map[string]bool{}}
		c := newTestCatalog(src, an, newClock())

		if _, err := c.Refresh(context.Background()); err != nil {
			t.Fatalf("initial refresh failed: %v", err)
		}
		before := c.Snapshot()

		src.set([]models.RawIssue{issue(9, "z")}, nil)
		an.fail["z"] = true

		res, err := c.Refresh(context.Background())
		if !errors.Is(err, ErrAllEnrichmentFailed) || res.Refreshed {
			t.Fatalf("expected failed refresh, got %+v, %v", res, err)
		}
		if !reflect.DeepEqual(before, c.Snapshot()) {
			t.Error("prior state should be preserved")
		}
	})
}

func TestRefresh_EmptyUpstream(t *testing.T) {
	c := newTestCatalog(&fakeSource{}, &fakeAnalyzer{}, newClock())

	res, err := c.Refresh(context.Background())
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if res.Refreshed {
		t.Error("empty batch must not commit")
	}
}

func TestList_EmptyCatalogBlocksOnRefresh(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a")}}
	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, newClock())

	listing := c.List(context.Background())
	if len(listing.Quests) != 1 {
		t.Fatalf("expected first List to populate, got %d", len(listing.Quests))
	}
}

func TestList_TotalFailureYieldsEmptyListing(t *testing.T) {
	src := &fakeSource{err: errors.New("dns failure")}
	c := newTestCatalog(src, &fakeAnalyzer{}, newClock())

	listing := c.List(context.Background())
	if len(listing.Quests) != 0 {
		t.Errorf("expected empty listing, got %d", len(listing.Quests))
	}
	if !listing.LastRefreshedAt.IsZero() {
		t.Error("lastRefreshedAt should stay zero")
	}
}

func TestList_IdempotentWithinWindow(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a", "bug"), issue(2, "b")}}
	clk := newClock()
	c := newTestCatalog(src, &fakeAnalyzer{}, clk)

	first := c.List(context.Background())
	clk.Advance(30 * time.Minute)
	second := c.List(context.Background())
	third := c.List(context.Background())
	c.Wait()

	if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(second, third) {
		t.Error("listings within the freshness window should be identical")
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
}

func TestList_StaleReturnsImmediately(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "old")}}
	clk := newClock()
	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, clk)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	before := c.Snapshot()

	clk.Advance(time.Hour + time.Second)
	src.set([]models.RawIssue{issue(2, "new")}, nil)
	release := src.block()

	done := make(chan Listing, 1)
	go func() { done <- c.List(context.Background()) }()

	select {
	case listing := <-done:
		if len(listing.Quests) != 1 || listing.Quests[0].ID != "1" {
			t.Errorf("expected stale data, got %+v", listing.Quests)
		}
		if !listing.LastRefreshedAt.Equal(before.LastRefreshedAt) {
			t.Error("stale listing should carry the old timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("List blocked on a stale catalog")
	}

	close(release)
	c.Wait()

	q, err := c.Get("2")
	if err != nil {
		t.Fatalf("background refresh did not commit: %v", err)
	}
	if q.Title != "new" {
		t.Errorf("unexpected quest %+v", q)
	}
}

func TestGet_NotFound(t *testing.T) {
	c := newTestCatalog(&fakeSource{issues: []models.RawIssue{issue(1, "a")}}, &fakeAnalyzer{}, newClock())

	if _, err := c.Get("nonexistent"); !errors.Is(err, ErrQuestNotFound) {
		t.Errorf("empty catalog: expected ErrQuestNotFound, got %v", err)
	}

	c.Refresh(context.Background())

	if _, err := c.Get("nonexistent"); !errors.Is(err, ErrQuestNotFound) {
		t.Errorf("populated catalog: expected ErrQuestNotFound, got %v", err)
	}
	if _, err := c.Get("1"); err != nil {
		t.Errorf("expected quest 1, got %v", err)
	}
}

func TestRefresh_Dedupe(t *testing.T) {
	dup := issue(1, "updated title")
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a"), issue(2, "b"), dup}}

	cfg := testConfig()
	cfg.Dedupe = true
	c := New(src, &fakeAnalyzer{easy: true}, cfg)

	res, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("expected 2 entries after dedupe, got %d", res.Count)
	}
	listing := c.List(context.Background())
	if listing.Quests[0].ID != "1" || listing.Quests[0].Title != "updated title" {
		t.Errorf("duplicate should keep first position and last record, got %+v", listing.Quests[0])
	}
}

func TestRefresh_NoDedupeByDefault(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a"), issue(1, "a")}}
	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, newClock())

	res, _ := c.Refresh(context.Background())
	if res.Count != 2 {
		t.Errorf("expected duplicates to be kept, got %d", res.Count)
	}
}

func TestRefresh_SingleFlightJoinsInFlight(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a")}}
	release := src.block()

	cfg := testConfig()
	cfg.SingleFlight = true
	c := New(src, &fakeAnalyzer{easy: true}, cfg)

	var wg sync.WaitGroup
	results := make([]RefreshResult, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Refresh(context.Background())
		}()
	}

	// let all callers reach the flight group
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Errorf("expected one upstream call, got %d", n)
	}
	for i, r := range results {
		if !r.Refreshed || r.Count != 1 {
			t.Errorf("caller %d: unexpected result %+v", i, r)
		}
	}
}

func TestRefresh_PersistsAndRestores(t *testing.T) {
	store := &memStore{}
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a"), issue(2, "b")}}
	clk := newClock()

	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, clk, WithStore(store))
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if store.saved == nil || len(store.saved.Quests) != 2 {
		t.Fatalf("snapshot not persisted: %+v", store.saved)
	}

	restored := newTestCatalog(&fakeSource{err: errors.New("offline")}, &fakeAnalyzer{}, clk, WithStore(store))
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !reflect.DeepEqual(c.Snapshot(), restored.Snapshot()) {
		t.Error("restored snapshot differs from committed one")
	}
}

func TestRefresh_PersistFailureDoesNotFailRefresh(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a")}}
	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, newClock(), WithStore(store))

	res, err := c.Refresh(context.Background())
	if err != nil || !res.Refreshed {
		t.Errorf("persistence failure should not fail the refresh: %+v, %v", res, err)
	}
}

func TestRefresh_CommitHooks(t *testing.T) {
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a")}}

	var got []models.Snapshot
	c := newTestCatalog(src, &fakeAnalyzer{easy: true}, newClock(), OnCommit(func(s models.Snapshot) {
		got = append(got, s)
	}))

	c.Refresh(context.Background())
	src.set(nil, errors.New("down"))
	c.Refresh(context.Background())

	if len(got) != 1 {
		t.Fatalf("expected hook on commit only, got %d calls", len(got))
	}
	if len(got[0].Quests) != 1 {
		t.Errorf("unexpected hook snapshot %+v", got[0])
	}
}

type countingRecorder struct {
	mu        sync.Mutex
	outcomes  []string
	fallbacks int
}

func (r *countingRecorder) ObserveRefresh(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *countingRecorder) EnrichmentFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks++
}

func TestRefresh_RecordsOutcomes(t *testing.T) {
	rec := &countingRecorder{}
	src := &fakeSource{issues: []models.RawIssue{issue(1, "a"), issue(2, "b")}}
	an := &fakeAnalyzer{easy: true, fail: map[string]bool{"b": true}}
	c := newTestCatalog(src, an, newClock(), WithRecorder(rec))

	c.Refresh(context.Background())
	src.set(nil, nil)
	c.Refresh(context.Background())

	want := []string{OutcomeCommitted, OutcomeEmpty}
	if !reflect.DeepEqual(rec.outcomes, want) {
		t.Errorf("outcomes = %v, want %v", rec.outcomes, want)
	}
	if rec.fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", rec.fallbacks)
	}
}
