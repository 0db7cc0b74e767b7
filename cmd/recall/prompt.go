package recall

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/recall/pkg/config"
)

var promptCmd = &cobra.Command{
	Use:   "prompt [text]",
	Short: "Render budgeted context for a prompt",
	Long: `Retrieve context relevant to a prompt and render it as a
character-budgeted block ready to prepend to a model request. Entries are
added in rank order; an entry that would exceed the budget is dropped whole,
never truncated.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrompt,
}

var promptMaxChars int

func init() {
	rootCmd.AddCommand(promptCmd)

	promptCmd.Flags().IntVar(&promptMaxChars, "max-chars", 2000, "character budget for the context block")
}

func runPrompt(cmd *cobra.Command, args []string) error {
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

	consumerID, _ := cmd.Flags().GetString("consumer")
	pc, err := env.engine.GetContextForPrompt(ctx, consumerID, args[0], promptMaxChars)
	if err != nil {
		return err
	}

	fmt.Println(pc.FormattedContext)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n(%d entries, %d context chars of %d budget)\n",
		pc.EntriesUsed, pc.TotalLength, promptMaxChars)
	return nil
}
