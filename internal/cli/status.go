package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stacksync/internal/ghoutput"
)

// newStatusCommand creates the "status" subcommand that shows the stack status and outputs.
func newStatusCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stack status and outputs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, _, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}
			eng, _, err := newEngineFromConfig(cmd.Context(), logger, opts, cfg)
			if err != nil {
				return err
			}

			desc, err := eng.Status(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s: %s\n", desc.Name, desc.Status.String()); err != nil {
				return err
			}
			if desc.Reason != "" {
				if _, err := fmt.Fprintf(out, "reason: %s\n", desc.Reason); err != nil {
					return err
				}
			}
			if err := printOutputs(out, desc.Outputs); err != nil {
				return err
			}

			values := map[string]string{
				"stacksync_stack_name":   desc.Name,
				"stacksync_stack_status": desc.Status.String(),
			}
			for k, v := range desc.Outputs {
				values[k] = v
			}
			return ghoutput.Write(values)
		},
	}

	addVarsFlags(cmd)

	return cmd
}
