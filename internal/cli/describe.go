package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kiln-io/kiln/pkg/state/types"
	"github.com/kiln-io/kiln/pkg/template"
)

func newDescribeCmd() *cobra.Command {
	var (
		outputFormat  string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:     "describe <stack>",
		Aliases: []string{"get", "show"},
		Short:   "Show a stack's state, resources and outputs",
		Long: `Show a stack's state, its resources and its outputs.

Hidden parameter values are redacted in the output.

Examples:
  kilnctl describe web
  kilnctl describe web -o json`,
		Args: cobra.ExactArgs(1),
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

			redactParameters(record)

			switch outputFormat {
			case "json":
				data, err := json.MarshalIndent(record, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				fmt.Println(string(data))
			case "yaml":
				data, err := yaml.Marshal(record)
				if err != nil {
					return fmt.Errorf("failed to marshal YAML: %w", err)
				}
				fmt.Print(string(data))
			default:
				printStackRecord(record)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format (json, yaml)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}

// redactParameters replaces hidden parameter values in the record using the
// template's schemas. State keeps real values; display never shows them.
func redactParameters(record *types.StackRecord) {
	tmpl, err := template.NewLoader().LoadFromBytes(record.Template.Body, record.Name)
	if err != nil {
		return
	}
	for name, schema := range tmpl.ParameterSchemas() {
		if schema.Hidden {
			if _, ok := record.Parameters[name]; ok {
				record.Parameters[name] = "******"
			}
		}
	}
}

func printStackRecord(record *types.StackRecord) {
	fmt.Printf("Stack:    %s\n", record.Name)
	fmt.Printf("Tenant:   %s\n", record.Tenant)
	fmt.Printf("ID:       %s\n", record.ID)
	fmt.Printf("Status:   %s_%s\n", record.Action, record.Status)
	if record.StatusReason != "" {
		fmt.Printf("Reason:   %s\n", record.StatusReason)
	}
	fmt.Printf("Created:  %s\n", record.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", record.UpdatedAt.Format(time.RFC3339))

	if len(record.Parameters) > 0 {
		fmt.Println("\nParameters:")
		for _, name := range sortedKeys(record.Parameters) {
			fmt.Printf("  %s: %v\n", name, record.Parameters[name])
		}
	}

	if len(record.Resources) > 0 {
		fmt.Println("\nResources:")
		names := make([]string, 0, len(record.Resources))
		for name := range record.Resources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			res := record.Resources[name]
			fmt.Printf("  %-25s %-25s %-20s %s\n", name, res.Type, res.Action+"_"+res.Status, res.PhysicalID)
		}
	}

	if len(record.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, name := range sortedKeys(record.Outputs) {
			fmt.Printf("  %s: %v\n", name, record.Outputs[name])
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
