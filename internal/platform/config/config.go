// Package config loads the service configuration from the environment.
// A single Config record is created at startup and handed to component
// constructors; nothing reads the environment after Load returns.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the news agent.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Scheduler
	SchedulerTick      time.Duration `env:"SCHEDULER_TICK" envDefault:"1m"`
	FeedConcurrency    int           `env:"FEED_CONCURRENCY" envDefault:"8"`
	HTMLConcurrency    int           `env:"HTML_CONCURRENCY" envDefault:"4"`
	SocialConcurrency  int           `env:"SOCIAL_CONCURRENCY" envDefault:"2"`
	DocConcurrency     int           `env:"DOC_CONCURRENCY" envDefault:"2"`
	FeedFetchTimeout   time.Duration `env:"FEED_FETCH_TIMEOUT" envDefault:"60s"`
	HTMLFetchTimeout   time.Duration `env:"HTML_FETCH_TIMEOUT" envDefault:"60s"`
	SocialFetchTimeout time.Duration `env:"SOCIAL_FETCH_TIMEOUT" envDefault:"300s"`
	DocFetchTimeout    time.Duration `env:"DOC_FETCH_TIMEOUT" envDefault:"120s"`
	FetchUserAgent     string        `env:"FETCH_USER_AGENT" envDefault:"liga-newsagent/1.0"`

	// Ingestion and dedup
	ClassifierQueueSize int     `env:"CLASSIFIER_QUEUE_SIZE" envDefault:"10000"`
	TitleSimThreshold   float64 `env:"TITLE_SIM_THRESHOLD" envDefault:"0.85"`
	TitleSimWindowDays  int     `env:"TITLE_SIM_WINDOW_DAYS" envDefault:"7"`
	ParaphraseThreshold float32 `env:"PARAPHRASE_THRESHOLD" envDefault:"0.75"`

	// Classifier worker
	ClassifierErrorLatch int           `env:"CLASSIFIER_ERROR_LATCH" envDefault:"10"`
	ClassifierPoll       time.Duration `env:"CLASSIFIER_POLL" envDefault:"5s"`
	RelevantThreshold    float32       `env:"RELEVANT_THRESHOLD" envDefault:"0.65"`
	IrrelevantThreshold  float32       `env:"IRRELEVANT_THRESHOLD" envDefault:"0.35"`

	// LLM worker
	LLMErrorLatch    int           `env:"LLM_ERROR_LATCH" envDefault:"10"`
	LLMPoll          time.Duration `env:"LLM_POLL" envDefault:"5s"`
	LLMBacklogBatch  int           `env:"LLM_BACKLOG_BATCH" envDefault:"50"`
	LLMFreshQueue    int           `env:"LLM_FRESH_QUEUE_SIZE" envDefault:"1000"`
	LLMTemperature   float32       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	LLMMaxTokens     int           `env:"LLM_MAX_TOKENS" envDefault:"1200"`
	LLMCooldown      time.Duration `env:"LLM_COOLDOWN" envDefault:"30s"`
	LLMTimeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	LLMLocalBaseURL  string        `env:"LLM_LOCAL_BASE_URL" envDefault:"http://localhost:11434/v1"`
	LLMLocalModel    string        `env:"LLM_LOCAL_MODEL" envDefault:"qwen2.5:14b"`
	LLMLocalAPIKey   string        `env:"LLM_LOCAL_API_KEY" envDefault:"local"`
	LLMHostedBaseURL string        `env:"LLM_HOSTED_BASE_URL"`
	LLMHostedModel   string        `env:"LLM_HOSTED_MODEL" envDefault:"gpt-4o-mini"`
	LLMHostedAPIKey  string        `env:"LLM_HOSTED_API_KEY"`
	LLMRateLimitRPS  float64       `env:"LLM_RATE_LIMIT_RPS" envDefault:"1"`

	// Embedding services. Retrieval and paraphrase are different semantic
	// spaces served by separate endpoints; they are never interchangeable.
	EmbedRetrievalBaseURL  string        `env:"EMBED_RETRIEVAL_BASE_URL" envDefault:"http://localhost:8091/v1"`
	EmbedRetrievalModel    string        `env:"EMBED_RETRIEVAL_MODEL" envDefault:"multilingual-e5-base"`
	EmbedParaphraseBaseURL string        `env:"EMBED_PARAPHRASE_BASE_URL" envDefault:"http://localhost:8092/v1"`
	EmbedParaphraseModel   string        `env:"EMBED_PARAPHRASE_MODEL" envDefault:"paraphrase-multilingual-mpnet-base-v2"`
	EmbedAPIKey            string        `env:"EMBED_API_KEY" envDefault:"local"`
	EmbedTimeout           time.Duration `env:"EMBED_TIMEOUT" envDefault:"30s"`
	EmbedRateLimitRPS      float64       `env:"EMBED_RATE_LIMIT_RPS" envDefault:"5"`

	// Housekeeping
	HousekeepingHour    int  `env:"HOUSEKEEPING_HOUR" envDefault:"3"`
	RetentionHighDays   int  `env:"RETENTION_HIGH_DAYS" envDefault:"365"`
	RetentionMediumDays int  `env:"RETENTION_MEDIUM_DAYS" envDefault:"180"`
	RetentionLowDays    int  `env:"RETENTION_LOW_DAYS" envDefault:"90"`
	RetentionNoneDays   int  `env:"RETENTION_NONE_DAYS" envDefault:"30"`
	AutoPurgeEnabled    bool `env:"AUTO_PURGE_ENABLED" envDefault:"true"`
	PurgeExcludeStarred bool `env:"PURGE_EXCLUDE_STARRED" envDefault:"true"`

	// Briefing export
	BriefingFromAddress string `env:"BRIEFING_FROM_ADDRESS" envDefault:"newsagent@liga-hessen.example"`
	BriefingTimezone    string `env:"BRIEFING_TIMEZONE" envDefault:"Europe/Berlin"`
}

// Load reads the configuration from the environment, honoring an optional
// .env file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
