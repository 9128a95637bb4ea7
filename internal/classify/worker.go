package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/embeddings"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/worker"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

const (
	DefaultPoll = 2 * time.Second

	dbPollBatch   = 50
	reloadEvery   = 10 * time.Minute
	logFieldItem  = "item_id"
	workerMetrics = "classifier"
)

// Store is the storage surface the classifier worker uses. The embedding
// upsert feeds the retrieval-space semantic search index; the worker is the
// one place the vector already exists.
type Store interface {
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	MutateItem(ctx context.Context, id string, fn func(*domain.Item) error) (*domain.Item, error)
	AppendEvent(ctx context.Context, itemID string, kind domain.EventKind, payload map[string]any) error
	ListUnclassifiedItems(ctx context.Context, limit int) ([]domain.Item, error)
	UpsertEmbedding(ctx context.Context, space storage.EmbeddingSpace, itemID string, embedding []float32) error
}

// Config tunes the worker; zero values select the reference defaults.
type Config struct {
	Poll       time.Duration
	ErrorLatch int
}

func (c Config) withDefaults() Config {
	if c.Poll <= 0 {
		c.Poll = DefaultPoll
	}

	return c
}

// Rules runs directly after classification for items the LLM stage will not
// pick up (retry-priority low); everything else gets its rule pass after
// analysis.
type Rules interface {
	Apply(ctx context.Context, itemID string) error
}

// Worker is the single long-lived classifier. It drains the ingestion queue
// first and falls back to a database poll for items that predate the process.
type Worker struct {
	store      Store
	embedder   embeddings.Client
	model      *Model
	queue      <-chan string
	fresh      chan<- string
	rules      Rules
	cfg        Config
	controller *worker.Controller
	logger     *zerolog.Logger
}

// NewWorker wires the classifier. fresh receives ids of items whose
// retry-priority came out ≠ low, feeding the LLM fresh queue.
func NewWorker(store Store, embedder embeddings.Client, model *Model, queue <-chan string, fresh chan<- string, cfg Config, logger *zerolog.Logger) *Worker {
	return &Worker{
		store:      store,
		embedder:   embedder,
		model:      model,
		queue:      queue,
		fresh:      fresh,
		cfg:        cfg.withDefaults(),
		controller: worker.NewController("classifier", cfg.ErrorLatch, logger),
		logger:     logger,
	}
}

// SetRules enables the post-classification rule pass for low-bucket items.
func (w *Worker) SetRules(r Rules) {
	w.rules = r
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
		Name:         "classifier",
		PollInterval: w.cfg.Poll,
		Ready:        w.controller.AwaitRunnable,
		Process:      w.process,
		PeriodicTasks: []worker.PeriodicTask{{
			Name:     "reload prototypes",
			Interval: reloadEvery,
			Run:      w.reloadModel,
		}},
		OnError: w.onError,
		Logger:  w.logger,
	})
}

func (w *Worker) reloadModel(ctx context.Context) {
	if store, ok := w.store.(PrototypeStore); ok {
		if err := w.model.Load(ctx, store); err != nil {
			w.logger.Warn().Err(err).Msg("prototype reload failed")
		}
	}
}

// onError feeds the latch; returning false stops the loop.
func (w *Worker) onError(err error) bool {
	w.logger.Error().Err(err).Msg("classifier process error")

	if w.controller.RecordFailure(err) {
		observability.WorkerState.WithLabelValues(workerMetrics).Set(-1)

		return false
	}

	return true
}

// process drains the queue, then polls the database once.
func (w *Worker) process(ctx context.Context) error {
	worked := false

	for {
		select {
		case id := <-w.queue:
			observability.ClassifierQueueDepth.Set(float64(len(w.queue)))

			if err := w.classifyByID(ctx, id); err != nil {
				return err
			}

			worked = true

			continue
		default:
		}

		break
	}

	if worked {
		w.controller.RecordSuccess()

		return nil
	}

	items, err := w.store.ListUnclassifiedItems(ctx, dbPollBatch)
	if err != nil {
		return fmt.Errorf("poll unclassified: %w", err)
	}

	for i := range items {
		if err := w.classify(ctx, &items[i]); err != nil {
			return err
		}
	}

	w.controller.RecordSuccess()

	return nil
}

func (w *Worker) classifyByID(ctx context.Context, id string) error {
	item, err := w.store.GetItem(ctx, id)
	if err != nil {
		return fmt.Errorf("load item %s: %w", id, err)
	}

	return w.classify(ctx, item)
}

// classify computes the retrieval embedding, indexes it, runs the model and
// records the disposition in item metadata. First-class priority and groups
// stay untouched; they become authoritative only after the LLM stage.
func (w *Worker) classify(ctx context.Context, item *domain.Item) error {
	output, vec, retry := w.evaluate(ctx, item)

	if len(vec) > 0 {
		if err := w.store.UpsertEmbedding(ctx, storage.SpaceRetrieval, item.ID, vec); err != nil {
			return fmt.Errorf("index retrieval embedding %s: %w", item.ID, err)
		}
	}

	_, err := w.store.MutateItem(ctx, item.ID, func(it *domain.Item) error {
		if it.Metadata == nil {
			it.Metadata = map[string]any{}
		}

		it.Metadata[domain.MetaRetryPriority] = string(retry)

		if output != nil {
			it.Metadata[domain.MetaClassifierConfidence] = output.Confidence
			it.Metadata[domain.MetaGroupSuggestions] = output.GroupSuggestions
			it.Metadata[domain.MetaPrioritySuggestion] = string(output.PrioritySuggestion)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("store classification %s: %w", item.ID, err)
	}

	payload := map[string]any{"retry_priority": string(retry)}
	if output != nil {
		payload["confidence"] = output.Confidence
	}

	if err := w.store.AppendEvent(ctx, item.ID, domain.EventClassified, payload); err != nil {
		return fmt.Errorf("classified event %s: %w", item.ID, err)
	}

	observability.ClassifierProcessed.WithLabelValues(string(retry)).Inc()

	if retry != domain.RetryLow && w.fresh != nil {
		select {
		case w.fresh <- item.ID:
			observability.LLMFreshQueueDepth.Set(float64(len(w.fresh)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Low-bucket items skip the LLM stage, so their rule pass runs here.
	if retry == domain.RetryLow && w.rules != nil {
		if err := w.rules.Apply(ctx, item.ID); err != nil {
			return fmt.Errorf("rules after classification %s: %w", item.ID, err)
		}
	}

	w.logger.Debug().Str(logFieldItem, item.ID).Str("retry_priority", string(retry)).Msg("item classified")

	return nil
}

// evaluate runs embedding + model; any unavailability maps to the unknown
// bucket without failing the worker. The vector is returned even when the
// model is unavailable so the search index stays coherent.
func (w *Worker) evaluate(ctx context.Context, item *domain.Item) (*Output, []float32, domain.RetryPriority) {
	res, err := w.embedder.EmbedRetrieval(ctx, item.Title, item.Content)
	if err != nil {
		w.logger.Warn().Err(err).Str(logFieldItem, item.ID).Msg("retrieval embedding unavailable")

		return nil, nil, domain.RetryUnknown
	}

	output, ok := w.model.Classify(res.Vector)
	if !ok {
		return nil, res.Vector, domain.RetryUnknown
	}

	return &output, res.Vector, output.RetryPriority()
}
