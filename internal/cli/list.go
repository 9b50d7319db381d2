package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newListCmd() *cobra.Command {
	var (
		outputFormat  string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stacks",
		Long: `List the tenant's stacks with their current state.

Examples:
  kilnctl list
  kilnctl list --tenant acme -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			mgr, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state manager: %w", err)
			}

			tenant := viper.GetString("tenant")
			stacks, err := mgr.ListStacks(ctx, tenant)
			if err != nil {
				return fmt.Errorf("failed to list stacks: %w", err)
			}

			switch outputFormat {
			case "json":
				data, err := json.MarshalIndent(stacks, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				fmt.Println(string(data))
			case "yaml":
				data, err := yaml.Marshal(stacks)
				if err != nil {
					return fmt.Errorf("failed to marshal YAML: %w", err)
				}
				fmt.Print(string(data))
			default:
				if len(stacks) == 0 {
					fmt.Printf("No stacks found for tenant %q.\n", tenant)
					return nil
				}
				fmt.Printf("%-30s %-20s %-25s\n", "NAME", "STATUS", "UPDATED")
				fmt.Println(strings.Repeat("-", 77))
				for _, ref := range stacks {
					fmt.Printf("%-30s %-20s %-25s\n",
						ref.Name,
						ref.Action+"_"+ref.Status,
						ref.UpdatedAt.Format(time.RFC3339))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format (json, yaml)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
