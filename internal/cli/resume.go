package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newResumeCmd() *cobra.Command {
	var (
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "resume <stack>",
		Short: "Resume a suspended stack",
		Long: `Resume a suspended stack.

Resources are resumed in dependency order, so a resource comes back
only after everything it depends on is running again.`,
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

			fmt.Printf("[resume] Resuming stack %q...\n", name)

			if err := s.Resume(ctx); err != nil {
				return fmt.Errorf("stack resume failed: %w", err)
			}

			fmt.Printf("[success] Stack %q resumed\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
