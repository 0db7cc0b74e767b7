// Package telemetry persists retrieval event logs to Parquet files so slow
// queries and tier fallbacks can be analyzed offline.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

type contextKey string

const (
	contextKeyConsumerID contextKey = "consumer_id"
	contextKeyTier       contextKey = "tier"
)

// WithConsumerID tags the context so telemetry records carry the consumer.
func WithConsumerID(ctx context.Context, consumerID string) context.Context {
	return context.WithValue(ctx, contextKeyConsumerID, consumerID)
}

// WithTier tags the context with the retrieval tier that served the request.
func WithTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, contextKeyTier, tier)
}

// EventRecord is a single log entry in Parquet storage.
type EventRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp"`
	Level      string    `parquet:"level"`
	Message    string    `parquet:"message"`
	ConsumerID string    `parquet:"consumer_id"`
	Tier       string    `parquet:"tier"`
	SourceFile string    `parquet:"source_file"`
	LineNumber int       `parquet:"line_number"`
	Attributes string    `parquet:"attributes"` // JSON string
}

// ParquetHandler is a slog.Handler that buffers warn-and-above records and
// writes them to Parquet files in batches.
type ParquetHandler struct {
	next      slog.Handler
	outputDir string
	minLevel  slog.Level
	mu        sync.Mutex
	buffer    []EventRecord
	batchSize int
}

// NewParquetHandler creates a ParquetHandler that forwards every record to
// next and additionally persists records at warn level or above.
func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	h := &ParquetHandler{
		next:      next,
		outputDir: outputDir,
		minLevel:  slog.LevelWarn,
		batchSize: 100,
		buffer:    make([]EventRecord, 0, 100),
	}
	return h, nil
}

// Enabled implements slog.Handler.
func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always pass to next handler first
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level < h.minLevel {
		return nil
	}

	var consumerID, tier string
	if v, ok := ctx.Value(contextKeyConsumerID).(string); ok {
		consumerID = v
	}
	if v, ok := ctx.Value(contextKeyTier).(string); ok {
		tier = v
	}

	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	record := EventRecord{
		ID:         uuid.New().String(),
		Timestamp:  r.Time.UTC(),
		Level:      r.Level.String(),
		Message:    r.Message,
		ConsumerID: consumerID,
		Tier:       tier,
		SourceFile: f.File,
		LineNumber: f.Line,
		Attributes: string(attrsJSON),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buffer = append(h.buffer, record)
	if len(h.buffer) >= h.batchSize {
		return h.flush()
	}
	return nil
}

// Flush writes any buffered records out immediately.
func (h *ParquetHandler) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flush()
}

// flush writes the current buffer to a new Parquet file. Caller must hold the
// lock.
func (h *ParquetHandler) flush() error {
	if len(h.buffer) == 0 {
		return nil
	}

	filename := fmt.Sprintf("retrieval_events_%s_%d.parquet", time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(h.outputDir, filename)

	if err := parquet.WriteFile(path, h.buffer); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write telemetry parquet file: %v\n", err)
		return err
	}

	h.buffer = h.buffer[:0]
	return nil
}

// WithAttrs implements slog.Handler. Child handlers batch independently.
func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithAttrs(attrs),
		outputDir: h.outputDir,
		minLevel:  h.minLevel,
		batchSize: h.batchSize,
		buffer:    make([]EventRecord, 0, h.batchSize),
	}
}

// WithGroup implements slog.Handler.
func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{
		next:      h.next.WithGroup(name),
		outputDir: h.outputDir,
		minLevel:  h.minLevel,
		batchSize: h.batchSize,
		buffer:    make([]EventRecord, 0, h.batchSize),
	}
}
