package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDestroyCommand creates the "destroy" subcommand that deletes the stack of an environment.
func newDestroyCommand(opts *Options) *cobra.Command {
	var waitTimeout string

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the CloudFormation stack declared in stacksync.yaml",
		Long:  "Delete the stack and wait until the deletion completes. Asset buckets and their objects are left untouched.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("destroy deletes the stack; pass --yes to confirm")
			}
			timeout, err := resolveWaitTimeout(waitTimeout, cmd.Flags().Changed("wait-timeout"))
			if err != nil {
				return err
			}

			cfg, _, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			eng, _, err := newEngineFromConfig(cmd.Context(), logger, opts, cfg)
			if err != nil {
				return err
			}

			logger.Info("deleting stack", "stack", cfg.Stack.Name, "env", opts.Env)
			existed, err := eng.Destroy(cmd.Context(), cfg, timeout, stackEventLogger(logger))
			if err != nil {
				return err
			}
			if !existed {
				logger.Info("nothing to delete", "stack", cfg.Stack.Name)
			}
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm the deletion")
	cmd.Flags().StringVar(&waitTimeout, "wait-timeout", "", "Override the delete wait timeout (e.g. 15m)")
	addVarsFlags(cmd)

	return cmd
}
