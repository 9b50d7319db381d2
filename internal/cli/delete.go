package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDeleteCmd() *cobra.Command {
	var (
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:     "delete <stack>",
		Aliases: []string{"rm"},
		Short:   "Delete a stack and its resources",
		Long: `Delete a stack and its resources.

Resources are deleted in reverse dependency order. Resources with a
retain or snapshot deletion policy leave their physical resource in
place. The stack's state record is removed once deletion completes.

Examples:
  kilnctl delete web`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := context.Background()

			mgr, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state manager: %w", err)
			}

			tenant := viper.GetString("tenant")
			s, err := restoreStack(ctx, mgr, tenant, name)
			if err != nil {
				return err
			}

			fmt.Printf("[delete] Deleting stack %q...\n", name)

			if err := s.Delete(ctx); err != nil {
				return fmt.Errorf("stack deletion failed: %w", err)
			}

			if err := mgr.DeleteStack(ctx, tenant, name); err != nil {
				return fmt.Errorf("failed to remove stack state: %w", err)
			}

			fmt.Printf("[success] Stack %q deleted\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
