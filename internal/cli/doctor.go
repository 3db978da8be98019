package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// newDoctorCommand creates the "doctor" subcommand that runs environment preflight checks.
func newDoctorCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check AWS credentials, asset buckets and the stack template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			eng, clients, err := newEngineFromConfig(cmd.Context(), logger, opts, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			deps := doctorDeps{
				identity:  clients.STS,
				buckets:   clients.S3,
				templates: clients.CloudFormation,
				engine:    eng,
			}
			if err := runDoctorChecks(ctx, logger, deps, cfg, tctx); err != nil {
				return err
			}

			logger.Info("doctor checks completed successfully", "env", opts.Env)
			return nil
		},
	}

	addVarsFlags(cmd)

	return cmd
}
