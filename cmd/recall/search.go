package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/recall"
	"github.com/soundprediction/recall/pkg/config"
	"github.com/soundprediction/recall/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Retrieve context entries relevant to a query",
	Long: `Retrieve the stored entries most relevant to a query.

The query runs through the tier state machine: knowledge graph first,
semantic similarity second, keyword overlap as the fallback. Pass an empty
query ("") to list the most recent entries instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	searchLimit  int
	searchTypes  []string
	searchTags   []string
	searchMaxAge int
	searchAsJSON bool
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum entries to return")
	searchCmd.Flags().StringSliceVar(&searchTypes, "types", nil, "restrict to entry types")
	searchCmd.Flags().StringSliceVar(&searchTags, "tags", nil, "require all of these tags")
	searchCmd.Flags().IntVar(&searchMaxAge, "max-age-days", 0, "ignore entries older than this (0 = no limit)")
	searchCmd.Flags().BoolVar(&searchAsJSON, "json", false, "emit results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	entryTypes, err := parseEntryTypes(searchTypes)
	if err != nil {
		return err
	}
	consumerID, _ := cmd.Flags().GetString("consumer")

	result, err := env.engine.GetRelevantContext(ctx, recall.Request{
		ConsumerID: consumerID,
		Query:      args[0],
		Limit:      searchLimit,
		Types:      entryTypes,
		Tags:       searchTags,
		MaxAgeDays: searchMaxAge,
	})
	if err != nil {
		return err
	}

	if searchAsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Metadata.Reason != "" {
		fmt.Printf("No results (%s)\n", result.Metadata.Reason)
		return nil
	}
	fmt.Printf("Served by %s tier in %s (%d retrieved, %d returned)\n",
		result.Metadata.ServedBy, result.Metadata.Elapsed.Round(time.Microsecond),
		result.Metadata.Stages.Retrieved, result.Metadata.Stages.Returned)
	for i, entry := range result.Entries {
		fmt.Printf("%2d. %.3f %s\n", i+1, entry.RelevanceScore, recall.FormatEntry(entry))
	}
	return nil
}

func parseEntryTypes(names []string) ([]types.EntryType, error) {
	var out []types.EntryType
	for _, name := range names {
		t, err := types.ParseEntryType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
