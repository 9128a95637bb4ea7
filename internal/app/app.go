// Package app wires the service components and exposes the run modes:
//
//   - Serve mode: scheduler, ingestion pipeline, classifier, LLM worker,
//     rule engine, housekeeping and the health server, all in one process
//   - Fetch mode: scheduler + connectors + ingestion only; --once forces one
//     poll of every enabled channel and exits
//   - Worker mode: classifier, LLM worker, rules and housekeeping over the
//     existing store, no fetching
//   - Briefing mode: render the priority digest to stdout, then exit
//   - Migrate mode: apply pending migrations, then exit
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/analyze"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/classify"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/connectors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/embeddings"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/llm"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/dedup"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/export/briefing"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/housekeeping"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/ingest"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/config"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/rules"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/scheduler"
	db "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

const (
	apiKeyMock       = "mock"
	fetchDrainPeriod = 2 * time.Second
)

// App holds the application dependencies and provides the run modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates an App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{cfg: cfg, database: database, logger: logger}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunServe runs the full pipeline until the context is canceled.
func (a *App) RunServe(ctx context.Context) error {
	a.logger.Info().Msg("starting serve mode")

	sched, classifier, analyzer, sweeper := a.buildPipeline(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return classifier.Run(ctx) })
	g.Go(func() error { return analyzer.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

// RunFetch runs scheduler + connectors + ingestion without the processing
// workers. Fetched items pass the full dedup pipeline and land in the store;
// classification and analysis happen in a worker- or serve-mode process,
// whose database poll picks them up. With once set, every enabled channel is
// polled immediately and the process exits.
func (a *App) RunFetch(ctx context.Context, once bool) error {
	a.logger.Info().Bool("once", once).Msg("starting fetch mode")

	registry := connectors.DefaultRegistry(a.newHTTPClient(), a.logger)
	pipeline := a.newPipeline()

	sched := scheduler.New(a.database, registry, pipeline, a.schedulerConfig(), a.logger)

	if once {
		if err := sched.TriggerAll(ctx); err != nil {
			return fmt.Errorf("fetch: %w", err)
		}

		// Give dispatches time to register before waiting them out.
		drainCtx, cancel := context.WithTimeout(ctx, fetchDrainPeriod)
		defer cancel()
		<-drainCtx.Done()

		sched.WaitIdle()
		drainQueue(pipeline.Queue())
		a.logger.Info().Msg("fetch complete")

		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })
	// No classifier in this mode; keep the bounded queue from back-pressuring
	// ingestion. The DB poll of a worker-mode process covers the items.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pipeline.Queue():
			}
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	return nil
}

// RunWorker runs classifier, LLM worker, rules and housekeeping over the
// existing store, without fetching. The classifier has no in-process queue
// here and relies on its database poll.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Msg("starting worker mode")

	embedder := a.newEmbeddingClient()
	llmClient := a.newLLMClient()
	engine := rules.NewEngine(a.database, llmClient, a.logger)

	model := a.newModel(ctx)

	fresh := make(chan string, a.cfg.LLMFreshQueue)

	classifier := classify.NewWorker(a.database, embedder, model, nil, fresh,
		a.classifierConfig(), a.logger)
	classifier.SetRules(engine)

	analyzer := analyze.NewWorker(a.database, llmClient, engine, fresh, a.analyzeConfig(), a.logger)

	sweeper := housekeeping.New(a.database, a.housekeepingConfig(), a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return classifier.Run(ctx) })
	g.Go(func() error { return analyzer.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	return nil
}

func drainQueue(q <-chan string) {
	for {
		select {
		case <-q:
		default:
			return
		}
	}
}

// RunBriefing renders the current briefing to stdout.
func (a *App) RunBriefing(ctx context.Context, minPriority string, hoursBack int) error {
	loc, err := time.LoadLocation(a.cfg.BriefingTimezone)
	if err != nil {
		return fmt.Errorf("briefing timezone: %w", err)
	}

	exporter := briefing.New(a.database, a.logger)

	b, err := exporter.Build(ctx, briefing.Options{
		MinPriority: domain.Priority(minPriority),
		HoursBack:   hoursBack,
		Location:    loc,
		FromAddress: a.cfg.BriefingFromAddress,
	})
	if err != nil {
		return fmt.Errorf("briefing: %w", err)
	}

	if b.Empty() {
		a.logger.Info().Msg("briefing empty")

		return nil
	}

	_, err = fmt.Fprint(os.Stdout, b.Text)

	return err
}

// buildPipeline wires the serve-mode components.
func (a *App) buildPipeline(ctx context.Context) (*scheduler.Scheduler, *classify.Worker, *analyze.Worker, *housekeeping.Sweeper) {
	registry := connectors.DefaultRegistry(a.newHTTPClient(), a.logger)
	embedder := a.newEmbeddingClient()
	llmClient := a.newLLMClient()
	pipeline := a.newPipelineWith(embedder)

	model := a.newModel(ctx)

	engine := rules.NewEngine(a.database, llmClient, a.logger)

	fresh := make(chan string, a.cfg.LLMFreshQueue)

	classifier := classify.NewWorker(a.database, embedder, model, pipeline.Queue(), fresh,
		a.classifierConfig(), a.logger)
	classifier.SetRules(engine)

	analyzer := analyze.NewWorker(a.database, llmClient, engine, fresh, a.analyzeConfig(), a.logger)

	sched := scheduler.New(a.database, registry, pipeline, a.schedulerConfig(), a.logger)

	sweeper := housekeeping.New(a.database, a.housekeepingConfig(), a.logger)

	return sched, classifier, analyzer, sweeper
}

func (a *App) newPipeline() *ingest.Pipeline {
	return a.newPipelineWith(a.newEmbeddingClient())
}

func (a *App) newPipelineWith(embedder embeddings.Client) *ingest.Pipeline {
	detector := dedup.NewDetector(a.database, embedder, dedup.Config{
		TitleThreshold:      a.cfg.TitleSimThreshold,
		ParaphraseThreshold: float64(a.cfg.ParaphraseThreshold),
		TitleWindow:         time.Duration(a.cfg.TitleSimWindowDays) * 24 * time.Hour,
	}, a.logger)

	return ingest.New(a.database, detector, a.cfg.ClassifierQueueSize, a.logger)
}

// newModel loads the prototype centroids and applies the configured score
// cuts. A failed load leaves the classifier in unknown mode until reload.
func (a *App) newModel(ctx context.Context) *classify.Model {
	model := classify.NewModel()
	model.SetThresholds(float64(a.cfg.RelevantThreshold), float64(a.cfg.IrrelevantThreshold))

	if err := model.Load(ctx, a.database); err != nil {
		a.logger.Warn().Err(err).Msg("prototype load failed, classifier starts in unknown mode")
	}

	return model
}

func (a *App) classifierConfig() classify.Config {
	return classify.Config{
		Poll:       a.cfg.ClassifierPoll,
		ErrorLatch: a.cfg.ClassifierErrorLatch,
	}
}

func (a *App) analyzeConfig() analyze.Config {
	return analyze.Config{
		Poll:         a.cfg.LLMPoll,
		Timeout:      a.cfg.LLMTimeout,
		BacklogBatch: a.cfg.LLMBacklogBatch,
		Cooldown:     a.cfg.LLMCooldown,
		Temperature:  a.cfg.LLMTemperature,
		MaxTokens:    a.cfg.LLMMaxTokens,
		ErrorLatch:   a.cfg.LLMErrorLatch,
	}
}

func (a *App) housekeepingConfig() housekeeping.Config {
	return housekeeping.Config{
		SweepHour: a.cfg.HousekeepingHour,
		Defaults: domain.HousekeepingConfig{
			RetentionDays: map[domain.Priority]int{
				domain.PriorityHigh:   a.cfg.RetentionHighDays,
				domain.PriorityMedium: a.cfg.RetentionMediumDays,
				domain.PriorityLow:    a.cfg.RetentionLowDays,
				domain.PriorityNone:   a.cfg.RetentionNoneDays,
			},
			AutoPurge:      a.cfg.AutoPurgeEnabled,
			ExcludeStarred: a.cfg.PurgeExcludeStarred,
		},
	}
}

func (a *App) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		Tick: a.cfg.SchedulerTick,
		Caps: map[scheduler.Category]int{
			scheduler.CategoryFeed:     a.cfg.FeedConcurrency,
			scheduler.CategoryHTML:     a.cfg.HTMLConcurrency,
			scheduler.CategorySocial:   a.cfg.SocialConcurrency,
			scheduler.CategoryDocument: a.cfg.DocConcurrency,
		},
		Deadlines: map[scheduler.Category]time.Duration{
			scheduler.CategoryFeed:     a.cfg.FeedFetchTimeout,
			scheduler.CategoryHTML:     a.cfg.HTMLFetchTimeout,
			scheduler.CategorySocial:   a.cfg.SocialFetchTimeout,
			scheduler.CategoryDocument: a.cfg.DocFetchTimeout,
		},
	}
}

func (a *App) newHTTPClient() *http.Client {
	return connectors.NewHTTPClient(a.cfg.FeedFetchTimeout, a.cfg.FetchUserAgent)
}

// newLLMClient builds the provider chain: local model first, hosted fallback
// when configured, mock only when explicitly selected.
func (a *App) newLLMClient() llm.Client {
	if a.cfg.LLMLocalAPIKey == apiKeyMock {
		return llm.NewChain([]llm.Provider{llm.NewMock()}, llm.DefaultCircuitBreakerConfig(), a.logger)
	}

	providers := []llm.Provider{
		llm.NewOpenAICompatible(llm.ProviderLocal, a.cfg.LLMLocalBaseURL, a.cfg.LLMLocalAPIKey,
			a.cfg.LLMLocalModel, a.cfg.LLMRateLimitRPS, llm.PriorityPrimary),
	}

	if a.cfg.LLMHostedBaseURL != "" && a.cfg.LLMHostedAPIKey != "" {
		providers = append(providers,
			llm.NewOpenAICompatible(llm.ProviderHosted, a.cfg.LLMHostedBaseURL, a.cfg.LLMHostedAPIKey,
				a.cfg.LLMHostedModel, a.cfg.LLMRateLimitRPS, llm.PriorityFallback))
	}

	return llm.NewChain(providers, llm.DefaultCircuitBreakerConfig(), a.logger)
}

// newEmbeddingClient builds one endpoint per semantic space. The spaces are
// served by different models and must not share an endpoint.
func (a *App) newEmbeddingClient() embeddings.Client {
	if a.cfg.EmbedAPIKey == apiKeyMock {
		mock := []embeddings.Provider{embeddings.NewMock()}

		return embeddings.NewTwoSpaceClient(
			embeddings.NewEndpoint("retrieval", mock, embeddings.DefaultCircuitBreakerConfig(), a.logger),
			embeddings.NewEndpoint("paraphrase", mock, embeddings.DefaultCircuitBreakerConfig(), a.logger),
		)
	}

	retrieval := embeddings.NewEndpoint("retrieval", []embeddings.Provider{
		embeddings.NewOpenAICompatible(a.cfg.EmbedRetrievalBaseURL, a.cfg.EmbedAPIKey,
			a.cfg.EmbedRetrievalModel, a.cfg.EmbedRateLimitRPS, a.cfg.EmbedTimeout, embeddings.PriorityPrimary),
	}, embeddings.DefaultCircuitBreakerConfig(), a.logger)

	paraphrase := embeddings.NewEndpoint("paraphrase", []embeddings.Provider{
		embeddings.NewOpenAICompatible(a.cfg.EmbedParaphraseBaseURL, a.cfg.EmbedAPIKey,
			a.cfg.EmbedParaphraseModel, a.cfg.EmbedRateLimitRPS, a.cfg.EmbedTimeout, embeddings.PriorityPrimary),
	}, embeddings.DefaultCircuitBreakerConfig(), a.logger)

	return embeddings.NewTwoSpaceClient(retrieval, paraphrase)
}
