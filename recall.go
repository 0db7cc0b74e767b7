package recall

import (
	"errors"
	"log/slog"
	"time"

	"github.com/soundprediction/recall/pkg/entrystore"
	"github.com/soundprediction/recall/pkg/metrics"
	"github.com/soundprediction/recall/pkg/semindex"
)

// Result reasons surfaced in retrieval metadata.
const (
	ReasonAccessDenied = "access_denied"
)

// ErrMissingEntryStore is returned when New is called without a store.
var ErrMissingEntryStore = errors.New("entry store is required")

// DefaultBackendTimeout bounds each retrieval tier's backend calls.
const DefaultBackendTimeout = 5 * time.Second

// Config tunes the engine's ranking behavior.
type Config struct {
	// DefaultLimit applies when a request does not set one.
	DefaultLimit int
	// UseGraph enables the knowledge graph tier.
	UseGraph bool
	// MinSimilarity passed to the semantic index; zero selects the mode
	// default.
	MinSimilarity float64
	// DuplicateThreshold is the cosine similarity above which two entries
	// count as duplicates.
	DuplicateThreshold float64
	// Weights blend the hybrid score.
	Weights semindex.Weights
	// BackendTimeout bounds a single tier's backend calls. A tier that
	// exceeds it is treated as unavailable and the next tier serves.
	BackendTimeout time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() *Config {
	return &Config{
		DefaultLimit:       10,
		UseGraph:           true,
		DuplicateThreshold: 0.92,
		Weights:            semindex.DefaultWeights,
		BackendTimeout:     DefaultBackendTimeout,
	}
}

// Engine orchestrates tiered retrieval over the entry store, knowledge graph,
// and semantic index, with per-consumer access filtering.
type Engine struct {
	entries entrystore.Store
	graph   GraphStore
	index   SemanticIndex
	filter  AccessFilter
	config  *Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Options carries the optional collaborators for New.
type Options struct {
	Graph   GraphStore
	Filter  AccessFilter
	Config  *Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// New creates an Engine. The entry store and semantic index are required;
// everything else degrades gracefully when absent.
func New(entries entrystore.Store, index SemanticIndex, opts *Options) (*Engine, error) {
	if entries == nil {
		return nil, ErrMissingEntryStore
	}
	if index == nil {
		return nil, errors.New("semantic index is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = 0.92
	}
	if cfg.Weights == (semindex.Weights{}) {
		cfg.Weights = semindex.DefaultWeights
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = DefaultBackendTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		entries: entries,
		graph:   opts.Graph,
		index:   index,
		filter:  opts.Filter,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Entries exposes the underlying entry store.
func (e *Engine) Entries() entrystore.Store { return e.entries }

// Graph exposes the knowledge graph store, which may be nil.
func (e *Engine) Graph() GraphStore { return e.graph }
