// Package setup builds the runtime components of the ingestion pipeline from
// environment configuration. It is shared by every binary under cmd/.
package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/storage"
	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/ai"
	"github.com/OFFIS-RIT/newsgraph/pkg/ai/anthropic"
	oai "github.com/OFFIS-RIT/newsgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/newsgraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/newsgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/newsgraph/pkg/extract"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger/console"
	"github.com/OFFIS-RIT/newsgraph/pkg/normalize"
	"github.com/OFFIS-RIT/newsgraph/pkg/retry"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"
	"github.com/OFFIS-RIT/newsgraph/pkg/store/memory"
	"github.com/OFFIS-RIT/newsgraph/pkg/store/neo4j"
	pgxstore "github.com/OFFIS-RIT/newsgraph/pkg/store/pgx"
	"github.com/OFFIS-RIT/newsgraph/pkg/validate"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Debug     bool
	LogFormat string

	AIAdapter             string
	ChatURL               string
	ChatKey               string
	ExtractModel          string
	MaxConcurrentRequests int
	RequestsPerSecond     float64
	MaxInputTokens        int
	TokenEncoder          string

	DatabaseURL string

	GraphStore string
	Neo4j      neo4j.NewParams

	CheckpointBackend string
	CheckpointPath    string
	CheckpointName    string
	S3                storage.S3Params
	RedisURL          string

	BatchSize        int
	BatchWait        time.Duration
	Parallel         int
	ParallelUpserts  int
	Retry            retry.Policy
	DedupeThreshold  float64
	MinBodyLength    int
	ProgressInterval time.Duration

	Port string
}

// LoadConfig reads the configuration from the environment. Call
// util.LoadEnv first to pick up a .env file.
func LoadConfig() Config {
	def := retry.DefaultPolicy()
	return Config{
		Debug:     util.GetEnvBool("DEBUG", false),
		LogFormat: util.GetEnvString("LOG_FORMAT", "text"),

		AIAdapter:             util.GetEnvString("AI_ADAPTER", "openai"),
		ChatURL:               util.GetEnv("AI_CHAT_URL"),
		ChatKey:               util.GetEnv("AI_CHAT_KEY"),
		ExtractModel:          util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		MaxConcurrentRequests: util.GetEnvInt("AI_MAX_CONCURRENT_REQUESTS", 4),
		RequestsPerSecond:     util.GetEnvFloat("AI_REQUESTS_PER_SECOND", 0),
		MaxInputTokens:        util.GetEnvInt("EXTRACT_MAX_INPUT_TOKENS", 6000),
		TokenEncoder:          util.GetEnvString("TOKEN_ENCODER", "o200k_base"),

		DatabaseURL: util.GetEnv("DATABASE_URL"),

		GraphStore: util.GetEnvString("GRAPH_STORE", "postgres"),
		Neo4j: neo4j.NewParams{
			URI:      util.GetEnvString("NEO4J_URI", "neo4j://localhost:7687"),
			User:     util.GetEnvString("NEO4J_USER", "neo4j"),
			Password: util.GetEnv("NEO4J_PASSWORD"),
			Database: util.GetEnv("NEO4J_DATABASE"),
		},

		CheckpointBackend: util.GetEnvString("CHECKPOINT_BACKEND", "file"),
		CheckpointPath:    util.GetEnvString("CHECKPOINT_PATH", "data/checkpoint.json"),
		CheckpointName:    util.GetEnvString("CHECKPOINT_NAME", "default"),
		S3: storage.S3Params{
			Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnvString("AWS_BUCKET", "newsgraph"),
			Prefix:    "checkpoints",
		},
		RedisURL: util.GetEnvString("REDIS_URL", "redis://localhost:6379/0"),

		BatchSize:       util.GetEnvInt("BATCH_SIZE", 16),
		BatchWait:       util.GetEnvDuration("BATCH_WAIT", 2*time.Second),
		Parallel:        util.GetEnvInt("PARALLEL_EXTRACTIONS", 4),
		ParallelUpserts: util.GetEnvInt("PARALLEL_UPSERTS", 4),
		Retry: retry.Policy{
			MaxAttempts: util.GetEnvInt("RETRY_MAX_ATTEMPTS", def.MaxAttempts),
			BaseDelay:   util.GetEnvDuration("RETRY_BASE_DELAY", def.BaseDelay),
			MaxDelay:    util.GetEnvDuration("RETRY_MAX_DELAY", def.MaxDelay),
			Jitter:      util.GetEnvFloat("RETRY_JITTER", def.Jitter),
		},
		DedupeThreshold:  util.GetEnvFloat("DEDUPE_THRESHOLD", normalize.DefaultThreshold),
		MinBodyLength:    util.GetEnvInt("MIN_BODY_LENGTH", validate.DefaultMinBodyLength),
		ProgressInterval: util.GetEnvDuration("PROGRESS_INTERVAL", 30*time.Second),

		Port: util.GetEnvString("PORT", "8080"),
	}
}

// InitLogger installs the console logger.
func InitLogger(cfg Config) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
	}))
}

func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return pool, nil
}

// NewAIClient selects the provider named by AI_ADAPTER.
func NewAIClient(cfg Config) (ai.GraphAIClient, error) {
	switch cfg.AIAdapter {
	case "ollama":
		return oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ExtractionModel:       cfg.ExtractModel,
			BaseURL:               cfg.ChatURL,
			ApiKey:                cfg.ChatKey,
			TokenEncoder:          cfg.TokenEncoder,
			MaxConcurrentRequests: int64(cfg.MaxConcurrentRequests),
		})
	case "anthropic":
		return anthropic.NewGraphAnthropicClient(anthropic.NewGraphAnthropicClientParams{
			ExtractionModel: cfg.ExtractModel,
			BaseURL:         cfg.ChatURL,
			ApiKey:          cfg.ChatKey,
		})
	case "openai", "":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ExtractionModel: cfg.ExtractModel,
			ChatURL:         cfg.ChatURL,
			ChatKey:         cfg.ChatKey,
		})
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", cfg.AIAdapter)
	}
}

func NewExtractor(cfg Config, client ai.GraphAIClient) (*extract.Extractor, error) {
	return extract.NewExtractor(extract.NewExtractorParams{
		Client:            client,
		Model:             cfg.ExtractModel,
		TokenEncoder:      cfg.TokenEncoder,
		MaxInputTokens:    cfg.MaxInputTokens,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.MaxConcurrentRequests,
	})
}

// NewGraphStore opens the backend named by GRAPH_STORE. pool is required for
// the postgres store only.
func NewGraphStore(ctx context.Context, cfg Config, pool *pgxpool.Pool) (store.GraphStore, error) {
	switch cfg.GraphStore {
	case "postgres", "":
		if pool == nil {
			return nil, errors.New("postgres graph store needs DATABASE_URL")
		}
		return pgxstore.NewGraphDBStorageWithConnection(pool), nil
	case "neo4j":
		s, err := neo4j.New(ctx, cfg.Neo4j)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	case "memory":
		logger.Warn("[Setup] Using in-memory graph store, nothing will be persisted")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown GRAPH_STORE %q", cfg.GraphStore)
	}
}

// NewCheckpointBackend opens the backend named by CHECKPOINT_BACKEND. pool is
// required for the postgres backend only.
func NewCheckpointBackend(ctx context.Context, cfg Config, pool *pgxpool.Pool) (checkpoint.Backend, error) {
	switch cfg.CheckpointBackend {
	case "file", "":
		return checkpoint.NewFileBackend(cfg.CheckpointPath), nil
	case "postgres":
		if pool == nil {
			return nil, errors.New("postgres checkpoint backend needs DATABASE_URL")
		}
		return checkpoint.NewPostgresBackend(pool, cfg.CheckpointName), nil
	case "s3":
		bucket, err := storage.NewBucket(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewObjectBackend(bucket, cfg.CheckpointName+".json"), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return checkpoint.NewRedisBackend(redis.NewClient(opts), "newsgraph:checkpoint:"+cfg.CheckpointName), nil
	case "memory":
		return checkpoint.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown CHECKPOINT_BACKEND %q", cfg.CheckpointBackend)
	}
}

// NeedsPool reports whether any configured component talks to Postgres.
func (c Config) NeedsPool() bool {
	return c.GraphStore == "postgres" || c.GraphStore == "" || c.CheckpointBackend == "postgres"
}
