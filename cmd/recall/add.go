package recall

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soundprediction/recall/pkg/config"
	"github.com/soundprediction/recall/pkg/types"
)

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Store a context entry",
	Long: `Store a context entry in the memory store.

The entry is immediately retrievable. With --graph the content is also
indexed into the knowledge graph: entities and relationships are extracted
and linked so graph-tier retrieval can anchor on them.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var (
	addID     string
	addType   string
	addSource string
	addTags   []string
	addGraph  bool
)

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addID, "id", "", "entry id (default: random)")
	addCmd.Flags().StringVar(&addType, "type", "text", "entry type (text, file, event, preference, note)")
	addCmd.Flags().StringVar(&addSource, "source", "cli", "where the entry came from")
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "tags for filtering")
	addCmd.Flags().BoolVar(&addGraph, "graph", false, "also index into the knowledge graph")
}

func runAdd(cmd *cobra.Command, args []string) error {
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

	entryType, err := types.ParseEntryType(addType)
	if err != nil {
		return err
	}

	id := addID
	if id == "" {
		id = uuid.New().String()
	}

	entry := &types.ContextEntry{
		ID:      id,
		Content: strings.TrimSpace(args[0]),
		Type:    entryType,
		Source:  addSource,
		Tags:    addTags,
	}
	if err := env.engine.AddEntry(ctx, entry, addGraph); err != nil {
		return err
	}

	fmt.Printf("Stored entry %s (%s)\n", entry.ID, entry.Type)
	if addGraph {
		if stats, err := env.engine.GraphStatistics(ctx); err == nil {
			fmt.Printf("Graph now holds %d documents, %d entities, %d relationships\n",
				stats.Documents, stats.Entities, stats.Relationships)
		}
	}
	return nil
}
