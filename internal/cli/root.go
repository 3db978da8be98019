// Package cli defines the command-line interface for stacksync.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stacksync/internal/config"
	"github.com/codex-k8s/stacksync/internal/logging"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	Env        string
	LogLevel   logging.Level
	// AWS holds connection overrides that take precedence over stacksync.yaml.
	AWS config.AWSConfig
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: config.DefaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stacksync",
		Short:         "stacksync deploys asset buckets and a CloudFormation stack",
		Long:          "stacksync mirrors local asset directories into S3 and reconciles a CloudFormation stack declared in stacksync.yaml. Re-running it with unchanged inputs changes nothing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyBaseEnv(cmd, opts); err != nil {
				return err
			}
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(cmd.ErrOrStderr(), level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigPath, "Path to stacksync.yaml configuration file")
	cmd.PersistentFlags().StringVar(&opts.Env, "env", "", "Environment name (e.g. dev, staging, prod)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.AWS.Region, "region", "", "AWS region override")
	cmd.PersistentFlags().StringVar(&opts.AWS.Profile, "profile", "", "AWS shared config profile override")
	cmd.PersistentFlags().StringVar(&opts.AWS.Endpoint, "endpoint", "", "Custom AWS endpoint URL (e.g. LocalStack)")

	cmd.AddCommand(
		newDeployCommand(opts),
		newSyncCommand(opts),
		newRenderCommand(opts),
		newStatusCommand(opts),
		newDestroyCommand(opts),
		newDoctorCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
