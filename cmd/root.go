package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"reelsmith/internal/app"
	"reelsmith/pkg/config"
)

const defaultUser = "local"

var (
	verbose    bool
	configPath string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:   "reelsmith",
	Short: "Produce short narrated videos from storyboards",
	Long: `Reelsmith turns a storyboard of narrated segments into a finished short video:
images and voices per segment, still or animated clips, and a final cut with music
sized for the target platform.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&userID, "user", defaultUser, "User the generated files belong to")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogger("text")
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func setupLogger(format string) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadService reads the configuration and wires the pipeline. Local commands
// may reference files anywhere on disk; the server may not.
func loadService(ctx context.Context, local bool) (*app.BuildResult, error) {
	cfg, err := config.LoadFrom(ctx, configPath)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Logging.Format)

	if local {
		cfg.Storage.AllowExternal = true
	}
	return app.BuildService(ctx, cfg, verbose)
}
