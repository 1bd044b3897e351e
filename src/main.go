package main

import (
	// stdlib
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// internal
	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/rpath"

	// external
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

const (
	default_cfg_path string = "../cfg/config.default.toml"
)

// state shared by the subcommands, filled in by the root's pre-run
type app struct {
	cfg_path string
	cfg      *config.ConfigFile
	logger   *slog.Logger
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "kinematics",
		Short:         "Pose keypoint tracking and kinematic analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipConfig(cmd) {
				return nil
			}
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfg_path := default_cfg_path
	if exe_dir, err := rpath.ExecutableDir(); err == nil {
		cfg_path = rpath.Convert(exe_dir, default_cfg_path)
	} else {
		slog.Warn("Can't find the executable's location", "error", err)
	}
	root.PersistentFlags().StringVarP(&a.cfg_path, "config", "c", cfg_path, "Path to config file")

	root.AddCommand(newAnalyzeCommand(a))
	root.AddCommand(newLiveCommand(a))
	root.AddCommand(newConfigCommand(a))
	return root
}

func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skip_config"] == "true" {
			return true
		}
	}
	return false
}

func (a *app) load() error {
	cfg, err := config.Unmarshal(a.cfg_path)
	if err != nil {
		return fmt.Errorf("Config file not loaded: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Config file %s is invalid: %w", a.cfg_path, err)
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Logging.Level)
	a.logger.Debug("Config loaded", "path", a.cfg_path)
	return nil
}

func newLogger(level string) *slog.Logger {
	var log_level slog.Level

	switch config.LoggingLevel(level) {
	case config.LoggingLevelDebug:
		log_level = slog.LevelDebug
	case config.LoggingLevelInfo:
		log_level = slog.LevelInfo
	case config.LoggingLevelWarn:
		log_level = slog.LevelWarn
	case config.LoggingLevelError:
		log_level = slog.LevelError
	default:
		slog.Warn(
			"No valid logging level provided. Defaulting to LevelError",
			"provided value", level)
		log_level = slog.LevelError
	}

	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      log_level,
		TimeFormat: time.RFC3339,
		AddSource:  true, // change to false on release version
	}))
}

func control(ctx context.Context, parent_logger *slog.Logger) error {
	logger := parent_logger.With("coroutine", "control")
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGINT)
	defer signal.Stop(interrupt)

	select {
	case <-ctx.Done():
		logger.Info("Control cancelled by context")
		return context.Canceled
	case <-interrupt:
		logger.Info("Cancelled by user")
		return ERR_INTERRUPTED_BY_USER
	}
}
