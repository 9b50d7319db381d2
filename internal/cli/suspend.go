package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSuspendCmd() *cobra.Command {
	var (
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "suspend <stack>",
		Short: "Suspend a stack's resources",
		Long: `Suspend a stack's resources without destroying them.

Resources are paused in reverse dependency order so nothing depends on
an already suspended resource. Reverse with 'kilnctl resume'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := context.Background()

			mgr, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state manager: %w", err)
			}

			s, err := restoreStack(ctx, mgr, viper.GetString("tenant"), name)
			if err != nil {
				return err
			}

			fmt.Printf("[suspend] Suspending stack %q...\n", name)

			if err := s.Suspend(ctx); err != nil {
				return fmt.Errorf("stack suspend failed: %w", err)
			}

			fmt.Printf("[success] Stack %q suspended\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
