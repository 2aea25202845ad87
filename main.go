package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sunday-assistant/bootstrap"
	"sunday-assistant/config"
	"sunday-assistant/logging"
	"sunday-assistant/status"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var (
		configPath string
		modelPath  string
		replayDir  string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "sunday",
		Short: "Sunday - a voice assistant for the yoga companion app",
		Long: `Sunday listens for its wake word, then turns the next spoken command into an
action: opening a section of the companion web app, answering, or shutting down.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()

			cfg, err := config.Load(fs, configPath)
			if err != nil {
				return err
			}

			if modelPath != "" {
				cfg.STT.ModelPath = modelPath
			}
			if replayDir != "" {
				cfg.Audio.ReplayDir = replayDir
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			logger, err := logging.New(&logging.Config{
				Level:   cfg.Log.Level,
				File:    cfg.Log.File,
				Console: cfg.Log.Console,
				FileSys: fs,
			})
			if err != nil {
				return err
			}
			defer logger.Close()

			return run(cmd.Context(), cfg, fs, logger.Logger)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default ./sunday.yaml or ~/.sunday/config.yaml)")
	rootCmd.Flags().StringVarP(&modelPath, "model", "m", "", "model file for whisper")
	rootCmd.Flags().StringVar(&replayDir, "replay", "", "directory of WAV recordings to use instead of the microphone")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, fs afero.Fs, logger zerolog.Logger) error {
	services, err := bootstrap.Build(bootstrap.Options{
		Config:  cfg,
		FileSys: fs,
		Logger:  logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		reportStartupFailure(cfg, fs, logger, err)
		return err
	}

	runErr := services.Run(ctx)

	if err := services.Close(); err != nil {
		logger.Warn().Err(err).Msg("shutdown incomplete")
	}

	if runErr != nil {
		return runErr
	}

	logger.Info().Msg("stopped")
	return nil
}

func reportStartupFailure(cfg *config.Config, fs afero.Fs, logger zerolog.Logger, cause error) {
	reporter, err := status.New(&status.Config{
		FileSys:        fs,
		StatusPath:     cfg.Status.Path,
		TranscriptPath: cfg.Status.TranscriptPath,
		Logger:         logger,
	})
	if err != nil {
		return
	}

	reporter.Transcript(status.SpeakerSystem, fmt.Sprintf("Startup failed: %v", cause))
	reporter.Report(status.StateStopped, "", "")
}
