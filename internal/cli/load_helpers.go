package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stacksync/internal/awsclient"
	"github.com/codex-k8s/stacksync/internal/config"
	"github.com/codex-k8s/stacksync/internal/engine"
	"github.com/codex-k8s/stacksync/internal/env"
)

func parseInlineVarsAndFiles(cmd *cobra.Command) (env.Vars, []string, error) {
	var fromEnv varsEnv
	if err := parseEnv(&fromEnv); err != nil {
		return nil, nil, err
	}

	raw := cmd.Flag("vars").Value.String()
	if !cmd.Flags().Changed("vars") && envPresent("STACKSYNC_VARS") {
		raw = fromEnv.Vars
	}
	inlineVars, err := env.ParseInlineVars(raw)
	if err != nil {
		return nil, nil, err
	}

	varFile := cmd.Flag("var-file").Value.String()
	if !cmd.Flags().Changed("var-file") && envPresent("STACKSYNC_VAR_FILE") {
		varFile = fromEnv.VarFile
	}
	var varFiles []string
	if varFile != "" {
		varFiles = append(varFiles, varFile)
	}
	return inlineVars, varFiles, nil
}

func loadDeployConfigFromCmd(opts *Options, cmd *cobra.Command) (*config.DeployConfig, config.TemplateContext, error) {
	inlineVars, varFiles, err := parseInlineVarsAndFiles(cmd)
	if err != nil {
		return nil, config.TemplateContext{}, err
	}

	loadOpts := config.LoadOptions{
		Env:      opts.Env,
		UserVars: inlineVars,
		VarFiles: varFiles,
	}
	return config.LoadDeployConfig(opts.ConfigPath, loadOpts)
}

// resolveAWS returns the AWS settings of the selected environment with CLI overrides applied.
func resolveAWS(opts *Options, cfg *config.DeployConfig) (config.AWSConfig, error) {
	settings, err := config.ResolveEnvironment(cfg, opts.Env)
	if err != nil {
		return config.AWSConfig{}, err
	}
	if opts.AWS.Region != "" {
		settings.Region = opts.AWS.Region
	}
	if opts.AWS.Profile != "" {
		settings.Profile = opts.AWS.Profile
	}
	if opts.AWS.Endpoint != "" {
		settings.Endpoint = opts.AWS.Endpoint
	}
	return settings, nil
}

// newEngineFromConfig builds AWS clients for the selected environment and wraps them in an Engine.
func newEngineFromConfig(ctx context.Context, logger *slog.Logger, opts *Options, cfg *config.DeployConfig) (*engine.Engine, *awsclient.Clients, error) {
	settings, err := resolveAWS(opts, cfg)
	if err != nil {
		return nil, nil, err
	}
	clients, err := awsclient.Load(ctx, settings)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("aws clients ready", "region", clients.Config.Region, "profile", settings.Profile, "endpoint", settings.Endpoint)
	return engine.NewEngine(clients.S3, clients.CloudFormation, logger), clients, nil
}

func addVarsFlags(cmd *cobra.Command) {
	cmd.Flags().String("vars", "", "Additional variables in k=v,k2=v2 format")
	cmd.Flags().String("var-file", "", "Path to YAML/ENV file with additional variables")
}

func addAssetFilterFlags(cmd *cobra.Command, onlyAssets, skipAssets *string, actionOnly, actionSkip string) {
	cmd.Flags().StringVar(onlyAssets, "only-assets", "", fmt.Sprintf("%s only selected assets (comma-separated names)", actionOnly))
	cmd.Flags().StringVar(skipAssets, "skip-asset-names", "", fmt.Sprintf("%s selected assets (comma-separated names)", actionSkip))
}

// parseNameSet splits a comma-separated list into a lower-cased set. Empty input yields nil.
func parseNameSet(raw string) map[string]struct{} {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if name := strings.ToLower(strings.TrimSpace(part)); name != "" {
			out[name] = struct{}{}
		}
	}
	return out
}
