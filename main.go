package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genesis/internal/app"
	"genesis/internal/config"
	"genesis/internal/logging"
	"genesis/internal/styles"
	"genesis/internal/ui"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Terminal chat with an agent that draws on two canvases",
	Long: `genesis is a terminal chat client. Replies stream into the chat while
the agent sends longer material (documents, code, media) to a main canvas
and an optional left canvas.

Run without arguments to start the interactive interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Verbose: verbose})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <user config dir>/genesis/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of conversations to show")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	styles.InitTheme()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("genesis started",
		zap.String("transport", a.Bus.TransportName()),
		zap.String("model", a.Agent.Model()),
		zap.String("user", cfg.User),
	)

	runErr := ui.Run(ctx, ui.Deps{
		Bus:       a.Bus,
		Chat:      a.Chat,
		Main:      a.Main,
		Left:      a.Left,
		Sessions:  a.Sessions,
		Agent:     a.Agent,
		Models:    cfg.ModelChoices(),
		Transport: a.Bus.TransportName(),
		Log:       logger,
	})
	if err := a.Close(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}
