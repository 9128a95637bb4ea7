package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_fetches_total",
		Help: "Total channel fetches by connector kind and status",
	}, []string{"kind", "status"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsagent_fetch_duration_seconds",
		Help:    "Duration of channel fetches",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	ItemsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_items_ingested_total",
		Help: "Items accepted by the ingestion pipeline, by outcome",
	}, []string{"outcome"})

	DedupeDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_dedupe_drops_total",
		Help: "Items detected as duplicates, by dedup stage",
	}, []string{"stage"})

	ClassifierQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsagent_classifier_queue_depth",
		Help: "Current depth of the classifier input queue",
	})

	ClassifierProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_classifier_processed_total",
		Help: "Items classified, by retry-priority bucket",
	}, []string{"bucket"})

	LLMFreshQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsagent_llm_fresh_queue_depth",
		Help: "Current depth of the LLM fresh queue",
	})

	LLMBacklogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsagent_llm_backlog_size",
		Help: "Items pending LLM analysis in the database backlog",
	})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsagent_llm_request_duration_seconds",
		Help:    "Duration of LLM completions",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	LLMAnalyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_llm_analyses_total",
		Help: "LLM analyses by provider and status",
	}, []string{"provider", "status"})

	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_embedding_requests_total",
		Help: "Embedding requests by semantic space and status",
	}, []string{"space", "status"})

	RulesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_rules_applied_total",
		Help: "Rule matches by rule kind",
	}, []string{"kind"})

	ItemsPurged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_items_purged_total",
		Help: "Items removed by the housekeeping sweep, by priority",
	}, []string{"priority"})

	WorkerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "newsagent_worker_state",
		Help: "Worker state (1 = running, 0.5 = paused, 0 = stopped, -1 = latched)",
	}, []string{"worker"})
)
