package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newUpdateCmd() *cobra.Command {
	var (
		templateFile  string
		parameters    []string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "update <stack>",
		Short: "Update an existing stack with a new template",
		Long: `Update an existing stack with a new template or new parameters.

Changed resources are updated in place when their provider allows it and
replaced otherwise. Added resources are created; removed resources are
deleted. If the update fails, the previous template is reapplied unless
the stack was created with --disable-rollback.

Examples:
  kilnctl update web -t stack.yaml
  kilnctl update web -t stack.yaml -p flavor=xlarge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := context.Background()

			tmpl, err := loadTemplateFile(templateFile)
			if err != nil {
				return err
			}
			params, err := parseParameters(parameters)
			if err != nil {
				return err
			}

			mgr, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state manager: %w", err)
			}

			s, err := restoreStack(ctx, mgr, viper.GetString("tenant"), name)
			if err != nil {
				return err
			}

			fmt.Printf("[update] Updating stack %q...\n", name)

			if err := s.Update(ctx, tmpl, params); err != nil {
				return fmt.Errorf("stack update failed: %w", err)
			}

			fmt.Printf("[success] Stack %q updated\n", name)
			printOutputs(s.Outputs())
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "Template file (required)")
	cmd.Flags().StringArrayVarP(&parameters, "parameter", "p", nil, "Template parameter (key=value)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}
