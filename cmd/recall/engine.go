package recall

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/recall"
	"github.com/soundprediction/recall/pkg/access"
	"github.com/soundprediction/recall/pkg/alert"
	"github.com/soundprediction/recall/pkg/config"
	"github.com/soundprediction/recall/pkg/embedder"
	"github.com/soundprediction/recall/pkg/entrystore"
	"github.com/soundprediction/recall/pkg/extract"
	"github.com/soundprediction/recall/pkg/graphstore"
	"github.com/soundprediction/recall/pkg/logger"
	"github.com/soundprediction/recall/pkg/metrics"
	"github.com/soundprediction/recall/pkg/semindex"
	"github.com/soundprediction/recall/pkg/telemetry"
)

// runtimeEnv bundles the engine with everything that needs tearing down when
// a command finishes.
type runtimeEnv struct {
	engine    *recall.Engine
	entries   entrystore.Store
	logger    *slog.Logger
	telemetry *telemetry.ParquetHandler
}

func (env *runtimeEnv) close(ctx context.Context) {
	if err := env.engine.Close(ctx); err != nil {
		env.logger.Warn("graph store close failed", "error", err)
	}
	if err := env.entries.Close(); err != nil {
		env.logger.Warn("entry store close failed", "error", err)
	}
	if env.telemetry != nil {
		if err := env.telemetry.Flush(); err != nil {
			env.logger.Warn("telemetry flush failed", "error", err)
		}
	}
}

// buildRuntime assembles the full engine from configuration.
func buildRuntime(cfg *config.Config) (*runtimeEnv, error) {
	log, parquetHandler, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}

	entries, err := buildEntryStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry store: %w", err)
	}

	emb := buildEmbedder(cfg, log)
	graph := buildGraph(cfg, emb, log)
	filter, err := buildFilter(cfg, log)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go serveMetrics(cfg.Metrics.Listen, m, log)
	}

	engine, err := recall.New(entries, semindex.NewIndex(entries, emb, log), &recall.Options{
		Graph:  graph,
		Filter: filter,
		Config: &recall.Config{
			DefaultLimit:       cfg.Retrieval.DefaultLimit,
			UseGraph:           cfg.Graph.Enabled,
			MinSimilarity:      cfg.Retrieval.MinSimilarity,
			DuplicateThreshold: cfg.Retrieval.DuplicateThreshold,
			Weights: semindex.Weights{
				Semantic:  cfg.Retrieval.SemanticWeight,
				Recency:   cfg.Retrieval.RecencyWeight,
				Frequency: cfg.Retrieval.FrequencyWeight,
			},
			BackendTimeout: time.Duration(cfg.Retrieval.TimeoutSeconds) * time.Second,
		},
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}

	return &runtimeEnv{
		engine:    engine,
		entries:   entries,
		logger:    log,
		telemetry: parquetHandler,
	}, nil
}

func buildLogger(cfg *config.Config) (*slog.Logger, *telemetry.ParquetHandler, error) {
	colorHandler := logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	})
	if cfg.Telemetry.ParquetPath == "" {
		return slog.New(colorHandler), nil, nil
	}

	parquetHandler, err := telemetry.NewParquetHandler(colorHandler, cfg.Telemetry.ParquetPath)
	if err != nil {
		// telemetry is best effort
		log := slog.New(colorHandler)
		log.Warn("failed to initialize telemetry, continuing without it", "error", err)
		return log, nil, nil
	}
	return slog.New(parquetHandler), parquetHandler, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildEntryStore(cfg *config.Config) (entrystore.Store, error) {
	switch cfg.Entries.Store {
	case "badger":
		return entrystore.NewBadgerStore(cfg.Entries.Path)
	case "memory", "":
		return entrystore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported entry store: %s", cfg.Entries.Store)
	}
}

func buildEmbedder(cfg *config.Config, log *slog.Logger) embedder.Client {
	embedderConfig := embedder.Config{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
	}

	var client embedder.Client
	switch cfg.Embedding.Provider {
	case "openai":
		if cfg.Embedding.APIKey == "" {
			log.Warn("openai embedding provider selected without api key, using keyword mode")
			return nil
		}
		client = embedder.NewOpenAIClient(embedderConfig)
	case "local":
		local, err := embedder.NewLocalClient(embedderConfig)
		if err != nil {
			log.Warn("local embedding model unavailable, using keyword mode", "error", err)
			return nil
		}
		client = local
	case "none", "":
		return nil
	default:
		log.Warn("unsupported embedding provider, using keyword mode", "provider", cfg.Embedding.Provider)
		return nil
	}

	if cfg.CircuitBreaker.Enabled {
		client = embedder.WithBreaker(client, embedder.BreakerSettings{
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         time.Duration(cfg.CircuitBreaker.Interval) * time.Second,
			Timeout:          time.Duration(cfg.CircuitBreaker.Timeout) * time.Second,
			ReadyToTripRatio: cfg.CircuitBreaker.ReadyToTripRatio,
		})
	}
	return client
}

func buildExtractor(cfg *config.Config, log *slog.Logger) extract.Extractor {
	switch cfg.Extraction.Backend {
	case "gliner":
		ex, err := extract.NewGlinerExtractor(cfg.Extraction.Model)
		if err != nil {
			log.Warn("gliner extractor unavailable, storing documents without entities", "error", err)
			return extract.Noop{}
		}
		return ex
	case "rustbert":
		ex, err := extract.NewRustBertExtractor()
		if err != nil {
			log.Warn("rustbert extractor unavailable, storing documents without entities", "error", err)
			return extract.Noop{}
		}
		return ex
	case "prose", "":
		return extract.NewProseExtractor()
	case "none":
		return extract.Noop{}
	default:
		log.Warn("unsupported extraction backend, storing documents without entities", "backend", cfg.Extraction.Backend)
		return extract.Noop{}
	}
}

func buildGraph(cfg *config.Config, emb embedder.Client, log *slog.Logger) recall.GraphStore {
	if !cfg.Graph.Enabled {
		return nil
	}

	var driver graphstore.Driver
	var err error
	switch cfg.Graph.Driver {
	case "neo4j":
		driver, err = graphstore.NewNeo4jDriver(cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
	case "ladybug":
		driver, err = graphstore.NewLadybugDriver(graphstore.LadybugConfig{DBPath: cfg.Graph.URI})
	case "memory", "":
		driver = graphstore.NewMemoryDriver()
	default:
		log.Warn("unsupported graph driver, graph tier disabled", "driver", cfg.Graph.Driver)
		return nil
	}
	if err != nil {
		log.Warn("graph backend unavailable, graph tier disabled", "driver", cfg.Graph.Driver, "error", err)
		return nil
	}

	if cfg.CircuitBreaker.Enabled {
		ratio := cfg.CircuitBreaker.ReadyToTripRatio
		alerter := buildAlerter(cfg)
		driver = graphstore.WithBreaker(driver, &gobreaker.Settings{
			Name:        "graph",
			MaxRequests: cfg.CircuitBreaker.MaxRequests,
			Interval:    time.Duration(cfg.CircuitBreaker.Interval) * time.Second,
			Timeout:     time.Duration(cfg.CircuitBreaker.Timeout) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < 3 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
				if to == gobreaker.StateOpen {
					if err := alerter.Alert(
						"recall: graph backend circuit open",
						fmt.Sprintf("breaker %q opened; graph tier disabled until the backend recovers", name),
					); err != nil {
						log.Warn("failed to send alert", "error", err)
					}
				}
			},
		})
	}

	return graphstore.NewStore(driver, buildExtractor(cfg, log), emb, &graphstore.Options{
		Timeout: time.Duration(cfg.Graph.TimeoutSeconds) * time.Second,
		Logger:  log,
	})
}

func buildAlerter(cfg *config.Config) alert.Alerter {
	if !cfg.Alert.Enabled {
		return &alert.NoOpAlerter{}
	}
	return alert.NewEmailAlerter(cfg.Alert)
}

func buildFilter(cfg *config.Config, log *slog.Logger) (recall.AccessFilter, error) {
	if cfg.Access.RulesPath == "" {
		return nil, nil
	}
	rules, err := access.NewYAMLRuleStore(cfg.Access.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load access rules: %w", err)
	}
	return access.NewFilter(rules, cfg.Access.AllowUnknownConsumers, log), nil
}

func serveMetrics(listen string, m *metrics.Metrics, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	log.Info("metrics listening", "addr", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Warn("metrics listener stopped", "error", err)
	}
}
