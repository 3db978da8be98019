package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/stacksync/internal/engine"
)

// newRenderCommand creates the "render" subcommand that prints the stack template.
func newRenderCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the stack template from stacksync.yaml",
		Long:  "Render the stack template as deploy would send it. Asset helpers are resolved against the current remote object versions, which requires AWS access; pass --offline to skip them.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}

			offline, _ := cmd.Flags().GetBool("offline")
			if !offline {
				eng, _, err := newEngineFromConfig(cmd.Context(), logger, opts, cfg)
				if err != nil {
					return err
				}
				if tctx, err = eng.AssetContext(cmd.Context(), cfg, tctx); err != nil {
					return err
				}
			}

			rendered, err := engine.RenderStackTemplate(cfg, tctx)
			if err != nil {
				return err
			}

			outputDir := cmd.Flag("output").Value.String()
			if outputDir == "" {
				_, writeErr := cmd.OutOrStdout().Write(rendered)
				return writeErr
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output directory %q: %w", outputDir, err)
			}

			outPath := filepath.Join(outputDir, filepath.Base(cfg.Stack.Template))
			if err := os.WriteFile(outPath, rendered, 0o644); err != nil {
				return fmt.Errorf("write rendered template to %q: %w", outPath, err)
			}

			logger.Info("rendered stack template", "path", outPath)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output directory for the rendered template (if empty, prints to stdout)")
	cmd.Flags().Bool("offline", false, "Do not contact AWS; asset helpers stay unresolved")
	addVarsFlags(cmd)

	return cmd
}
