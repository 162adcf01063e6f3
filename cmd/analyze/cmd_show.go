package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/db"
	"github.com/stockscope/backend/internal/services"
)

var (
	showJSON      bool
	showRationale bool
)

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showE,
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Print the run as JSON")
	cmd.Flags().BoolVar(&showRationale, "rationale", false, "Include each prompt's rationale")

	return cmd
}

func showE(cmd *cobra.Command, args []string) error {
	runID, err := uuid.Parse(strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("opening results database: %w", err)
	}
	defer db.Close(gdb)

	run, err := services.NewRunStore(gdb).GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showJSON {
		return writeJSON(out, run)
	}
	printRun(out, run)
	if showRationale {
		for _, r := range run.Results {
			fmt.Fprintf(out, "\n[%s v%d]\n%s\n", r.PromptID, r.PromptVersion, r.Rationale)
		}
	}
	return nil
}
