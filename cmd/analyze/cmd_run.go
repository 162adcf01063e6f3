package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stockscope/backend/internal/models"
)

var (
	runPromptsDir  string
	runConcurrency int
	runJSON        bool
	runStrict      bool
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <ticker> [ticker...]",
		Short: "Analyse one or more tickers",
		Long: `Run each ticker through every loaded prompt definition and store the results.

Tickers are processed one after another; prompts within a run are sent to the
model concurrently. A prompt whose response cannot be parsed is stored as a
degraded result and does not fail the run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runE,
	}

	cmd.Flags().StringVar(&runPromptsDir, "prompts-dir", "", "Prompt definition directory (overrides PROMPTS_DIR)")
	cmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Model calls in flight per run (overrides ANALYSIS_CONCURRENCY)")
	cmd.Flags().BoolVar(&runJSON, "json", false, "Print runs as JSON")
	cmd.Flags().BoolVar(&runStrict, "strict", false, "Exit non-zero when any prompt result is degraded")

	return cmd
}

func runE(cmd *cobra.Command, args []string) error {
	p, err := openPipeline(runPromptsDir, runConcurrency)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	var completed []*models.Run
	for _, ticker := range args {
		run, err := p.analysis.Analyze(cmd.Context(), ticker)
		if err != nil {
			return fmt.Errorf("analysing %q: %w", ticker, err)
		}
		completed = append(completed, run)
		if !runJSON {
			printRun(out, run)
		}
	}

	if runJSON {
		if err := writeJSON(out, completed); err != nil {
			return err
		}
	}

	if runStrict {
		for _, run := range completed {
			if run.DegradedCount > 0 {
				return &DegradedRunError{Ticker: run.Ticker, Degraded: run.DegradedCount, Total: run.PromptCount}
			}
		}
	}
	return nil
}

func printRun(w io.Writer, run *models.Run) {
	fmt.Fprintf(w, "\n%s  run %s  (%s)\n", run.Ticker, run.RunID, run.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  %-24s %-4s %5s  %-5s %12s  %s\n", "Prompt", "Ver", "Score", "Rate", "Target", "Flags")
	for _, r := range run.Results {
		name := r.PromptName
		if name == "" {
			name = r.PromptID
		}
		marker := " "
		if r.Degraded {
			marker = "⚠"
		}
		fmt.Fprintf(w, "%s %-24s v%-3d %5d  %-5s %12s  %s\n",
			marker, clip(name, 24), r.PromptVersion, r.Score, r.Rating, money(r.TargetBuyPrice), strings.Join(r.Flags, ","))
	}
	fmt.Fprintf(w, "  Overall: %s  avg %.1f  target %s  (%d prompts, %d degraded)\n",
		run.OverallRating, run.AverageScore, money(run.OverallTargetPrice), run.PromptCount, run.DegradedCount)
}

func money(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", v)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
