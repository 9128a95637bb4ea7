// Package analyze runs the LLM stage: full analysis of retained items through
// the provider chain, fed by the fresh queue with a database backlog behind it.
package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/llm"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/worker"
)

// Reference parameters of the analysis stage.
const (
	DefaultBacklogBatch = 50
	DefaultCooldown     = 30 * time.Second
	DefaultTemperature  = 0.1
	DefaultMaxTokens    = 1200
	DefaultPoll         = 2 * time.Second
	DefaultTimeout      = 2 * time.Minute

	workerMetrics = "llm"
	logFieldItem  = "item_id"
)

// representativeScore maps an LLM priority bucket to the numeric score the
// rule engine adjusts from, chosen mid-bucket so small deltas do not flip the
// bucket immediately.
func representativeScore(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 80
	case domain.PriorityMedium:
		return 50
	case domain.PriorityLow:
		return 20
	default:
		return 0
	}
}

// Store is the storage surface of the analysis worker.
type Store interface {
	GetItemDetail(ctx context.Context, id string) (*domain.ItemDetail, error)
	MutateItem(ctx context.Context, id string, fn func(*domain.Item) error) (*domain.Item, error)
	AppendEvent(ctx context.Context, itemID string, kind domain.EventKind, payload map[string]any) error
	ListLLMBacklog(ctx context.Context, limit int) ([]domain.Item, error)
	CountLLMBacklog(ctx context.Context) (int64, error)
}

// Rules is invoked after each successful analysis (the engine is also run
// directly after classification for low-bucket items, outside this worker).
type Rules interface {
	Apply(ctx context.Context, itemID string) error
}

// Config tunes the worker; zero values select the reference defaults.
type Config struct {
	BacklogBatch int
	Cooldown     time.Duration
	Temperature  float32
	MaxTokens    int
	ErrorLatch   int
	Poll         time.Duration
	// Timeout bounds one completion call across the provider chain.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BacklogBatch <= 0 {
		c.BacklogBatch = DefaultBacklogBatch
	}

	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}

	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}

	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}

	if c.Poll <= 0 {
		c.Poll = DefaultPoll
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return c
}

// Worker is the single long-lived LLM worker.
type Worker struct {
	store      Store
	client     llm.Client
	rules      Rules
	fresh      <-chan string
	cfg        Config
	controller *worker.Controller
	logger     *zerolog.Logger
}

// NewWorker wires the analysis worker.
func NewWorker(store Store, client llm.Client, rules Rules, fresh <-chan string, cfg Config, logger *zerolog.Logger) *Worker {
	return &Worker{
		store:      store,
		client:     client,
		rules:      rules,
		fresh:      fresh,
		cfg:        cfg.withDefaults(),
		controller: worker.NewController("llm", cfg.ErrorLatch, logger),
		logger:     logger,
	}
}

// Controller exposes the operational controls.
func (w *Worker) Controller() *worker.Controller {
	return w.controller
}

// Run starts the worker loop and blocks until stop or latch.
func (w *Worker) Run(parent context.Context) error {
	ctx, err := w.controller.Start(parent)
	if err != nil {
		return err
	}

	observability.WorkerState.WithLabelValues(workerMetrics).Set(1)
	defer observability.WorkerState.WithLabelValues(workerMetrics).Set(0)

	return worker.Loop(ctx, worker.Config{
		Name:         "llm",
		PollInterval: w.cfg.Poll,
		Ready:        w.controller.AwaitRunnable,
		Process:      w.process,
		PeriodicTasks: []worker.PeriodicTask{{
			Name:     "backlog gauge",
			Interval: time.Minute,
			Run:      w.updateBacklogGauge,
		}},
		OnError: w.onError,
		Logger:  w.logger,
	})
}

func (w *Worker) updateBacklogGauge(ctx context.Context) {
	if n, err := w.store.CountLLMBacklog(ctx); err == nil {
		observability.LLMBacklogSize.Set(float64(n))
	}
}

func (w *Worker) onError(err error) bool {
	w.logger.Error().Err(err).Msg("llm process error")

	if w.controller.RecordFailure(err) {
		observability.WorkerState.WithLabelValues(workerMetrics).Set(-1)

		return false
	}

	return true
}

// process drains the fresh queue, then works one backlog batch. Fresh items
// strictly preempt: the backlog loop re-checks the fresh queue before every
// item and yields back to it.
func (w *Worker) process(ctx context.Context) error {
	if err := w.drainFresh(ctx); err != nil {
		return err
	}

	backlog, err := w.store.ListLLMBacklog(ctx, w.cfg.BacklogBatch)
	if err != nil {
		return fmt.Errorf("poll backlog: %w", err)
	}

	for i := range backlog {
		if len(w.fresh) > 0 {
			if err := w.drainFresh(ctx); err != nil {
				return err
			}
		}

		if err := w.analyzeByID(ctx, backlog[i].ID); err != nil {
			return err
		}
	}

	w.controller.RecordSuccess()

	return nil
}

func (w *Worker) drainFresh(ctx context.Context) error {
	for {
		select {
		case id := <-w.fresh:
			observability.LLMFreshQueueDepth.Set(float64(len(w.fresh)))

			if err := w.analyzeByID(ctx, id); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// analyzeByID runs the full analysis for one item. Provider unreachability
// pauses for the cooldown and leaves the item pending; a malformed response
// (after the built-in reparse) records llm_failed.
func (w *Worker) analyzeByID(ctx context.Context, id string) error {
	detail, err := w.store.GetItemDetail(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("load item %s: %w", id, err)
	}

	// Stale queue entries: already analyzed, reclassified low, or duplicate.
	if !detail.NeedsLLM || detail.RetryPriority() == domain.RetryLow || detail.SimilarTo != "" {
		return nil
	}

	start := time.Now()

	var completion llm.Completion

	err = worker.RunWithTimeout(ctx, w.cfg.Timeout, func(ctx context.Context) error {
		var err error
		completion, err = w.client.Complete(ctx,
			llm.AnalysisSystemPrompt,
			llm.AnalysisUserPrompt(detail.Title, detail.SourceName, detail.PublishedAt, detail.Content),
			w.cfg.Temperature, w.cfg.MaxTokens)

		return err
	})
	if err != nil {
		observability.LLMAnalyses.WithLabelValues("none", "unreachable").Inc()
		w.logger.Warn().Err(err).Str(logFieldItem, id).Dur("cooldown", w.cfg.Cooldown).
			Msg("llm unreachable, cooling down")

		if waitErr := worker.Wait(ctx, w.cfg.Cooldown); waitErr != nil {
			return waitErr
		}

		return fmt.Errorf("llm completion for %s: %w", id, err)
	}

	provider := string(completion.Provider)
	observability.LLMRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	var analysis llm.Analysis
	if err := llm.ExtractJSON(completion.Text, &analysis); err != nil {
		observability.LLMAnalyses.WithLabelValues(provider, "malformed").Inc()

		if evErr := w.store.AppendEvent(ctx, id, domain.EventLLMFailed, map[string]any{
			"provider": provider,
			"error":    err.Error(),
		}); evErr != nil {
			return fmt.Errorf("llm failed event: %w", evErr)
		}

		return fmt.Errorf("parse analysis for %s: %w", id, err)
	}

	if err := w.commit(ctx, id, completion, analysis); err != nil {
		return err
	}

	observability.LLMAnalyses.WithLabelValues(provider, "ok").Inc()

	if w.rules != nil {
		if err := w.rules.Apply(ctx, id); err != nil {
			return fmt.Errorf("rules after analysis of %s: %w", id, err)
		}
	}

	return nil
}

// commit writes the analysis result onto the item.
func (w *Worker) commit(ctx context.Context, id string, completion llm.Completion, analysis llm.Analysis) error {
	priority := normalizePriority(analysis.Priority)

	_, err := w.store.MutateItem(ctx, id, func(it *domain.Item) error {
		it.Summary = analysis.Summary
		it.Analysis = analysis.DetailedAnalysis
		it.Priority = priority
		it.PriorityScore = representativeScore(priority)
		it.Groups = filterGroups(analysis.AssignedGroups)
		it.Tags = mergeTags(it.Tags, analysis.Tags)
		it.NeedsLLM = false

		if it.Metadata == nil {
			it.Metadata = map[string]any{}
		}

		it.Metadata[domain.MetaLLMRaw] = completion.Text
		it.Metadata[domain.MetaLLMProvider] = string(completion.Provider)

		return nil
	})
	if err != nil {
		return fmt.Errorf("store analysis for %s: %w", id, err)
	}

	if err := w.store.AppendEvent(ctx, id, domain.EventLLMAnalyzed, map[string]any{
		"provider": string(completion.Provider),
		"priority": string(priority),
	}); err != nil {
		return fmt.Errorf("llm analyzed event: %w", err)
	}

	w.logger.Info().Str(logFieldItem, id).Str("priority", string(priority)).
		Str("provider", string(completion.Provider)).Msg("item analyzed")

	return nil
}

// normalizePriority validates the model's bucket; anything unexpected maps to
// none.
func normalizePriority(s string) domain.Priority {
	switch domain.Priority(s) {
	case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
		return domain.Priority(s)
	default:
		return domain.PriorityNone
	}
}

// filterGroups keeps only tags from the closed working-group vocabulary.
func filterGroups(groups []string) []string {
	var out []string

	for _, g := range groups {
		if domain.IsWorkingGroup(g) {
			out = append(out, g)
		}
	}

	return out
}

// mergeTags appends new tags, preserving order and dropping duplicates.
func mergeTags(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}

	for _, t := range added {
		if t != "" && !seen[t] {
			seen[t] = true
			existing = append(existing, t)
		}
	}

	return existing
}
