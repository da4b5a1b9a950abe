// Package generator produces quest trials (quizzes) and task protocols.
//
// Generation is best effort: any failure of the model, the parse or the
// validation yields a fixed substitute of the same shape instead of an error.
package generator

import (
	"context"
	"log/slog"
	"time"

	"github.com/onesmallpr/questboard/internal/llm"
)

// DefaultSkillLevel is used when the caller does not state one
const DefaultSkillLevel = "Novice Adventurer"

// Generation kinds and outcomes reported to the Recorder
const (
	KindQuiz     = "quiz"
	KindProtocol = "protocol"

	OutcomeGenerated = "generated"
	OutcomeCached    = "cached"
	OutcomeFallback  = "fallback"
)

// Cache stores successful generations. Implementations report a miss with ok=false.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Recorder receives generation instrumentation
type Recorder interface {
	ObserveGeneration(kind, outcome string)
}

// Config holds generator settings
type Config struct {
	DefaultSkillLevel string
	Timeout           time.Duration
	CacheTTL          time.Duration
}

// Option configures a Generator
type Option func(*Generator)

// WithCache enables caching of successful generations
func WithCache(cache Cache) Option {
	return func(g *Generator) {
		g.cache = cache
	}
}

// WithRecorder sets the instrumentation sink
func WithRecorder(r Recorder) Option {
	return func(g *Generator) {
		g.recorder = r
	}
}

// WithClock overrides the time source used for protocol ids
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator builds quizzes and protocols from quests
type Generator struct {
	completer llm.Completer
	cfg       Config
	cache     Cache
	recorder  Recorder
	now       func() time.Time
}

// New creates a new generator
func New(completer llm.Completer, cfg Config, opts ...Option) *Generator {
	if cfg.DefaultSkillLevel == "" {
		cfg.DefaultSkillLevel = DefaultSkillLevel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}

	g := &Generator{
		completer: completer,
		cfg:       cfg,
		recorder:  nopRecorder{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *Generator) skillLevel(level string) string {
	if level == "" {
		return g.cfg.DefaultSkillLevel
	}
	return level
}

func (g *Generator) complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.completer.Complete(ctx, system, prompt)
}

func (g *Generator) cached(ctx context.Context, key string) (string, bool) {
	if g.cache == nil {
		return "", false
	}
	value, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("generation cache read failed", "key", key, "error", err)
		return "", false
	}
	return value, ok
}

func (g *Generator) store(ctx context.Context, key, value string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, value, g.cfg.CacheTTL); err != nil {
		slog.Warn("generation cache write failed", "key", key, "error", err)
	}
}

func cacheKey(kind, questID, skillLevel string) string {
	return "questboard:" + kind + ":" + questID + ":" + skillLevel
}

type nopRecorder struct{}

func (nopRecorder) ObserveGeneration(string, string) {}
