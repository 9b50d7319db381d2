package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newOutputsCmd() *cobra.Command {
	var (
		outputFormat  string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "outputs <stack> [output]",
		Short: "Show a stack's resolved outputs",
		Long: `Show the resolved output values from the stack's last completed
action. With an output name, prints only that value.

Examples:
  kilnctl outputs web
  kilnctl outputs web endpoint_url`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := context.Background()

			mgr, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state manager: %w", err)
			}

			record, err := mgr.GetStack(ctx, viper.GetString("tenant"), name)
			if err != nil {
				return fmt.Errorf("failed to load stack %q: %w", name, err)
			}

			if len(args) == 2 {
				value, ok := record.Outputs[args[1]]
				if !ok {
					return fmt.Errorf("stack %q has no output %q", name, args[1])
				}
				fmt.Printf("%v\n", value)
				return nil
			}

			if outputFormat == "json" {
				data, err := json.MarshalIndent(record.Outputs, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			printOutputs(record.Outputs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format (json)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
