package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/prompts"
)

var promptsDir string

func newPromptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect prompt definitions",
		Long: `List the prompt definitions that a run would use.

Files that fail to load are reported by "prompts validate"; a run simply
skips them.`,
		RunE: promptsListE,
	}

	cmd.PersistentFlags().StringVar(&promptsDir, "dir", "", "Prompt definition directory (overrides PROMPTS_DIR)")
	cmd.AddCommand(newPromptsValidateCommand())

	return cmd
}

func newPromptsValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every prompt file and fail if any would be skipped",
		Args:  cobra.NoArgs,
		RunE:  promptsValidateE,
	}
}

func resolvePromptStore() (*prompts.Store, error) {
	if promptsDir != "" {
		return prompts.NewStore(promptsDir), nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return prompts.NewStore(cfg.Prompts.Dir), nil
}

func promptsListE(cmd *cobra.Command, args []string) error {
	store, err := resolvePromptStore()
	if err != nil {
		return err
	}
	defs, _, err := store.Validate()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(defs) == 0 {
		fmt.Fprintf(out, "No prompt definitions in %s\n", store.Dir())
		return nil
	}
	fmt.Fprintf(out, "  %-20s %-4s %-28s %-7s %s\n", "ID", "Ver", "Name", "Schema", "File")
	for _, d := range defs {
		schema := "-"
		if d.Schema != nil {
			schema = "yes"
		}
		fmt.Fprintf(out, "  %-20s v%-3d %-28s %-7s %s\n", clip(d.ID, 20), d.Version, clip(d.Name, 28), schema, filepath.Base(d.Source))
	}
	return nil
}

func promptsValidateE(cmd *cobra.Command, args []string) error {
	store, err := resolvePromptStore()
	if err != nil {
		return err
	}
	defs, skipped, err := store.Validate()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, derr := range skipped {
		fmt.Fprintf(out, "✗ %v\n", derr)
	}
	fmt.Fprintf(out, "%d valid, %d skipped in %s\n", len(defs), len(skipped), store.Dir())
	if len(skipped) > 0 {
		return fmt.Errorf("%d prompt file(s) failed validation", len(skipped))
	}
	return nil
}
