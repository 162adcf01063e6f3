package main

import (
	"github.com/spf13/cobra"
	"github.com/stockscope/backend/internal/logger"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Stockscope - run prompt-driven stock analyses from the terminal",
		Long: `Stockscope runs a ticker through every prompt definition in the prompt
directory, scores each model response, and stores the run in the results database.

Configuration comes from the same environment variables (or .env file) as the
web server: DATABASE_URL, PROMPTS_DIR, OPENAI_API_KEY and friends.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := zapcore.WarnLevel
		if *debugLogging {
			level = zapcore.DebugLevel
		}
		logger.ConfigureCLI(level)
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPromptsCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
