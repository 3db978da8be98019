package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stacksync/internal/engine"
	"github.com/codex-k8s/stacksync/internal/objectsync"
	"github.com/codex-k8s/stacksync/internal/stack"
)

// deployFlags are shared by deploy and sync.
type deployFlags struct {
	onlyAssets  string
	skipNames   string
	skipAssets  bool
	skipStack   bool
	waitTimeout string
}

// applyDeployEnv fills deploy flags from STACKSYNC_* variables unless the flag was set.
func (f *deployFlags) applyDeployEnv(cmd *cobra.Command) error {
	var vars deployEnv
	if err := parseEnv(&vars); err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("only-assets") && envPresent("STACKSYNC_ONLY_ASSETS") {
		f.onlyAssets = vars.OnlyAssets
	}
	if !flags.Changed("skip-asset-names") && envPresent("STACKSYNC_SKIP_ASSET_NAMES") {
		f.skipNames = vars.SkipAssetNames
	}
	if flags.Lookup("skip-assets") != nil && !flags.Changed("skip-assets") && envPresent("STACKSYNC_SKIP_ASSETS") {
		f.skipAssets = vars.SkipAssets
	}
	if flags.Lookup("skip-stack") != nil && !flags.Changed("skip-stack") && envPresent("STACKSYNC_SKIP_STACK") {
		f.skipStack = vars.SkipStack
	}
	if flags.Lookup("wait-timeout") != nil && !flags.Changed("wait-timeout") && envPresent("STACKSYNC_WAIT_TIMEOUT") {
		f.waitTimeout = vars.WaitTimeout
	}
	return nil
}

// newDeployCommand creates the "deploy" subcommand that syncs assets and reconciles the stack.
func newDeployCommand(opts *Options) *cobra.Command {
	var flags deployFlags

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Synchronize assets and reconcile the CloudFormation stack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			if err := flags.applyDeployEnv(cmd); err != nil {
				return err
			}
			waitTimeout, err := resolveWaitTimeout(flags.waitTimeout, cmd.Flags().Changed("wait-timeout") || envPresent("STACKSYNC_WAIT_TIMEOUT"))
			if err != nil {
				return err
			}

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			logger.Debug("config loaded", "path", opts.ConfigPath, "vars", tctx.UserVars.Keys())
			eng, _, err := newEngineFromConfig(cmd.Context(), logger, opts, cfg)
			if err != nil {
				return err
			}

			logger.Info("deploying", "project", cfg.Project, "env", opts.Env)
			res, err := eng.Deploy(cmd.Context(), cfg, tctx, engine.DeployOptions{
				Assets: engine.SyncOptions{
					Only:   parseNameSet(flags.onlyAssets),
					Skip:   parseNameSet(flags.skipNames),
					OnFile: assetFileLogger(logger),
				},
				SkipAssets:  flags.skipAssets,
				SkipStack:   flags.skipStack,
				WaitTimeout: waitTimeout,
				OnEvent:     stackEventLogger(logger),
			})
			if err != nil {
				logDeployFailure(logger, err)
				return err
			}

			if err := writeGitHubOutputs(res); err != nil {
				return err
			}
			if res.Stack != nil {
				return printOutputs(cmd.OutOrStdout(), res.Stack.Outputs)
			}
			return nil
		},
	}

	addAssetFilterFlags(cmd, &flags.onlyAssets, &flags.skipNames, "Deploy", "Skip")
	cmd.Flags().BoolVar(&flags.skipAssets, "skip-assets", false, "Do not synchronize assets")
	cmd.Flags().BoolVar(&flags.skipStack, "skip-stack", false, "Do not reconcile the stack")
	cmd.Flags().StringVar(&flags.waitTimeout, "wait-timeout", "", "Override create/update/delete wait timeouts (e.g. 15m)")
	addVarsFlags(cmd)

	return cmd
}

// newSyncCommand creates the "sync" subcommand that only synchronizes assets.
func newSyncCommand(opts *Options) *cobra.Command {
	var flags deployFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize assets into their buckets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			if err := flags.applyDeployEnv(cmd); err != nil {
				return err
			}

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			eng, _, err := newEngineFromConfig(cmd.Context(), logger, opts, cfg)
			if err != nil {
				return err
			}

			res, err := eng.Deploy(cmd.Context(), cfg, tctx, engine.DeployOptions{
				Assets: engine.SyncOptions{
					Only:   parseNameSet(flags.onlyAssets),
					Skip:   parseNameSet(flags.skipNames),
					OnFile: assetFileLogger(logger),
				},
				SkipStack: true,
			})
			if err != nil {
				logDeployFailure(logger, err)
				return err
			}
			return writeGitHubOutputs(res)
		},
	}

	addAssetFilterFlags(cmd, &flags.onlyAssets, &flags.skipNames, "Sync", "Skip")
	addVarsFlags(cmd)

	return cmd
}

// logDeployFailure adds a hint for failures the user can act on.
func logDeployFailure(logger *slog.Logger, err error) {
	switch {
	case stack.IsTimeout(err):
		logger.Warn("stack did not settle in time; the operation continues remotely, raise --wait-timeout or stack.timeouts")
	case stack.IsUnexpectedStatus(err):
		logger.Warn("stack is not in a successful state; inspect it with stacksync status")
	case objectsync.IsIntegrityError(err):
		logger.Warn("stored object does not match the local file; check for proxies or SSE-KMS rewriting ETags")
	}
}
