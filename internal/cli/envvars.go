package cli

import (
	"os"
	"strings"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

// baseEnv defines root CLI defaults sourced from STACKSYNC_* env vars.
type baseEnv struct {
	// ConfigPath is the stacksync.yaml path from STACKSYNC_CONFIG.
	ConfigPath string `env:"STACKSYNC_CONFIG"`
	// Env is the environment name from STACKSYNC_ENV.
	Env string `env:"STACKSYNC_ENV"`
	// LogLevel is the logging level from STACKSYNC_LOG_LEVEL.
	LogLevel string `env:"STACKSYNC_LOG_LEVEL"`
	// Region is the AWS region override from STACKSYNC_REGION.
	Region string `env:"STACKSYNC_REGION"`
	// Profile is the AWS profile override from STACKSYNC_PROFILE.
	Profile string `env:"STACKSYNC_PROFILE"`
	// Endpoint is the custom endpoint from STACKSYNC_ENDPOINT.
	Endpoint string `env:"STACKSYNC_ENDPOINT"`
}

// varsEnv describes inline vars and var files passed via env.
type varsEnv struct {
	// Vars is a k=v,k2=v2 list from STACKSYNC_VARS.
	Vars string `env:"STACKSYNC_VARS"`
	// VarFile is a YAML/ENV path from STACKSYNC_VAR_FILE.
	VarFile string `env:"STACKSYNC_VAR_FILE"`
}

// deployEnv captures STACKSYNC_* inputs for deploy and sync.
type deployEnv struct {
	// WaitTimeout overrides stack wait timeouts from STACKSYNC_WAIT_TIMEOUT.
	WaitTimeout string `env:"STACKSYNC_WAIT_TIMEOUT"`
	// OnlyAssets filters assets from STACKSYNC_ONLY_ASSETS.
	OnlyAssets string `env:"STACKSYNC_ONLY_ASSETS"`
	// SkipAssetNames filters assets from STACKSYNC_SKIP_ASSET_NAMES.
	SkipAssetNames string `env:"STACKSYNC_SKIP_ASSET_NAMES"`
	// SkipAssets disables asset sync from STACKSYNC_SKIP_ASSETS.
	SkipAssets bool `env:"STACKSYNC_SKIP_ASSETS"`
	// SkipStack disables stack reconciliation from STACKSYNC_SKIP_STACK.
	SkipStack bool `env:"STACKSYNC_SKIP_STACK"`
}

// parseEnv fills target from STACKSYNC_* env vars via caarlos0/env.
func parseEnv(target any) error {
	return envparse.Parse(target)
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

// applyBaseEnv fills global options from STACKSYNC_* variables unless the flag was set.
func applyBaseEnv(cmd *cobra.Command, opts *Options) error {
	var vars baseEnv
	if err := parseEnv(&vars); err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("config") && envPresent("STACKSYNC_CONFIG") {
		opts.ConfigPath = vars.ConfigPath
	}
	if !flags.Changed("env") && envPresent("STACKSYNC_ENV") {
		opts.Env = vars.Env
	}
	if !flags.Changed("log-level") && envPresent("STACKSYNC_LOG_LEVEL") {
		if err := flags.Set("log-level", vars.LogLevel); err != nil {
			return err
		}
	}
	if !flags.Changed("region") && envPresent("STACKSYNC_REGION") {
		opts.AWS.Region = vars.Region
	}
	if !flags.Changed("profile") && envPresent("STACKSYNC_PROFILE") {
		opts.AWS.Profile = vars.Profile
	}
	if !flags.Changed("endpoint") && envPresent("STACKSYNC_ENDPOINT") {
		opts.AWS.Endpoint = vars.Endpoint
	}
	return nil
}
