package recall

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/recall/pkg/config"
	"github.com/soundprediction/recall/pkg/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and knowledge graph statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	env, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer env.close(ctx)

	count, err := env.entries.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Entries stored: %d\n", count)

	stats, err := env.engine.GraphStatistics(ctx)
	if err != nil {
		if errors.Is(err, types.ErrBackendUnavailable) {
			fmt.Println("Knowledge graph: disabled")
			return nil
		}
		return err
	}
	fmt.Printf("Graph documents: %d\n", stats.Documents)
	fmt.Printf("Graph entities: %d\n", stats.Entities)
	fmt.Printf("Graph relationships: %d\n", stats.Relationships)
	return nil
}
