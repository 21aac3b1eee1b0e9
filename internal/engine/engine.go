// Package engine wires the trial generator, evaluator, record store and
// pending-trial registry into the operations the HTTP, MCP and CLI
// front ends share.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/evaluate"
	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/models"
	"github.com/nvandessel/dotmotion/internal/ranking"
	"github.com/nvandessel/dotmotion/internal/session"
	"github.com/nvandessel/dotmotion/internal/stats"
	"github.com/nvandessel/dotmotion/internal/stimulus"
	"github.com/nvandessel/dotmotion/internal/store"
)

// Options configures New. Only Config and Store are required.
type Options struct {
	Config *config.DotmotionConfig
	Store  store.RecordStore

	// Rand seeds trial generation. nil uses a randomly seeded source.
	Rand *rand.Rand

	// Registry holds pending trials. nil creates one from Config.Server.
	Registry *session.Registry

	Events *logging.EventLogger
	Logger *slog.Logger
}

// Engine runs trials end to end. It is safe for concurrent use.
type Engine struct {
	cfg       *config.DotmotionConfig
	generator *stimulus.Generator
	recorder  *evaluate.Recorder
	store     store.RecordStore
	registry  *session.Registry
	stats     stats.Config
	events    *logging.EventLogger
	logger    *slog.Logger
}

// GeneratorConfig maps the task section onto generator bounds.
func GeneratorConfig(cfg *config.DotmotionConfig) stimulus.GeneratorConfig {
	return stimulus.GeneratorConfig{
		Variant:     models.Variant(cfg.Task.Variant),
		LowerBound:  cfg.Task.LowerBound,
		UpperBound:  cfg.Task.UpperBound,
		RoundDigits: cfg.Task.RoundDigits,
	}
}

// EvaluatorConfig maps the task section onto scoring parameters.
func EvaluatorConfig(cfg *config.DotmotionConfig) evaluate.Config {
	return evaluate.Config{
		TrialDuration:   cfg.Task.TrialDuration,
		MaxReactionTime: cfg.Task.MaxReactionTime,
		Variant:         models.Variant(cfg.Task.Variant),
		LowerBound:      cfg.Task.LowerBound,
		UpperBound:      cfg.Task.UpperBound,
	}
}

// StatsConfig maps the stats section onto aggregation settings.
func StatsConfig(cfg *config.DotmotionConfig) stats.Config {
	sc := stats.DefaultConfig(models.Variant(cfg.Task.Variant), cfg.Task.UpperBound)
	if cfg.Stats.Bins > 0 {
		sc.Bins.Count = cfg.Stats.Bins
	}
	sc.Leaderboard = ranking.ScorerConfig{
		MinTrials:   cfg.Stats.MinTrials,
		TopN:        cfg.Stats.TopN,
		ReferenceRT: cfg.Stats.ReferenceRT,
		Decimals:    constants.ScoreDecimals,
	}
	return sc
}

// SessionConfig maps the server section onto the pending-trial registry.
func SessionConfig(cfg *config.DotmotionConfig) session.Config {
	return session.Config{TTL: cfg.Server.PendingTTL}
}

// New builds an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("engine: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rng := opts.Rand
	if rng == nil {
		rng = stimulus.NewRand()
	}
	gen, err := stimulus.NewGenerator(GeneratorConfig(opts.Config), rng)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := opts.Registry
	if registry == nil {
		registry = session.NewRegistry(SessionConfig(opts.Config))
	}

	return &Engine{
		cfg:       opts.Config,
		generator: gen,
		recorder:  evaluate.NewRecorder(evaluate.New(EvaluatorConfig(opts.Config)), opts.Store, opts.Events, logger),
		store:     opts.Store,
		registry:  registry,
		stats:     StatsConfig(opts.Config),
		events:    opts.Events,
		logger:    logger,
	}, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.DotmotionConfig { return e.cfg }

// Store returns the record store.
func (e *Engine) Store() store.RecordStore { return e.store }

// Registry returns the pending-trial registry.
func (e *Engine) Registry() *session.Registry { return e.registry }

// Recorder returns the recorder used for scoring and persistence.
func (e *Engine) Recorder() *evaluate.Recorder { return e.recorder }

// StatsConfig returns the aggregation settings.
func (e *Engine) StatsConfig() stats.Config { return e.stats }

// Generate draws a trial without registering it.
func (e *Engine) Generate() models.TrialSpec {
	spec := e.generator.Generate()
	e.events.TrialGenerated(spec)
	return spec
}

// NewTrial draws a trial and registers it as pending for name.
func (e *Engine) NewTrial(name string) session.PendingTrial {
	p := e.registry.Register(e.generator.Generate(), name)
	e.events.TrialGenerated(p.Spec)
	e.logger.Debug("trial issued",
		"id", p.ID,
		"coherence", p.Spec.Coherence,
		"direction", p.Spec.Direction)
	return p
}

// Answer scores a response to a pending trial and appends the record.
// name overrides the name given when the trial was issued.
func (e *Engine) Answer(ctx context.Context, id, name, response string, reactionTimeMs float64) (models.ResponseRecord, error) {
	p, err := e.registry.Take(id)
	if err != nil {
		return models.ResponseRecord{}, fmt.Errorf("trial %s: %w", id, err)
	}
	if name == "" {
		name = p.Name
	}
	return e.recorder.Respond(ctx, name, p.Spec, response, reactionTimeMs)
}

// Expire records a pending trial as timed out.
func (e *Engine) Expire(ctx context.Context, id, name string) (models.ResponseRecord, error) {
	p, err := e.registry.Take(id)
	if err != nil {
		return models.ResponseRecord{}, fmt.Errorf("trial %s: %w", id, err)
	}
	if name == "" {
		name = p.Name
	}
	return e.recorder.Timeout(ctx, name, p.Spec)
}

// Submit records a self-describing submission that carries its own ground truth.
func (e *Engine) Submit(ctx context.Context, s evaluate.Submission) (models.ResponseRecord, error) {
	return e.recorder.Submit(ctx, s)
}

// Records loads every stored record.
func (e *Engine) Records(ctx context.Context) ([]models.ResponseRecord, error) {
	records, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	return records, nil
}

// Report aggregates the stored records. The report is nil when there are
// no records.
func (e *Engine) Report(ctx context.Context) (*models.Report, []models.ResponseRecord, error) {
	records, err := e.Records(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stats.Aggregate(records, e.stats), records, nil
}

// Leaderboard ranks the stored records. It returns
// ranking.ErrNoLeaderboard when no observer qualifies.
func (e *Engine) Leaderboard(ctx context.Context) (*models.Leaderboard, error) {
	records, err := e.Records(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(records, e.stats.Leaderboard)
}

// IsClientError reports whether err was caused by bad input rather than a
// storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, evaluate.ErrMissingField) ||
		errors.Is(err, evaluate.ErrInvalidResponse) ||
		errors.Is(err, evaluate.ErrInvalidReactionTime) ||
		errors.Is(err, evaluate.ErrInvalidTrial)
}
