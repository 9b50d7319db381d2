package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiln-io/kiln/pkg/stack"
)

func newCreateCmd() *cobra.Command {
	var (
		templateFile    string
		parameters      []string
		timeoutMinutes  int
		disableRollback bool
		backendType     string
		backendConfig   []string
	)

	cmd := &cobra.Command{
		Use:   "create <stack>",
		Short: "Create a new stack from a template",
		Long: `Create a new stack from a template.

Resources are provisioned concurrently in dependency order. If any
resource fails, the resources created so far are rolled back unless
--disable-rollback is set.

Examples:
  kilnctl create web -t stack.yaml
  kilnctl create web -t stack.yaml -p flavor=large -p replicas=3
  kilnctl create web -t stack.yaml --timeout 30 --disable-rollback`,
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

			tenant := viper.GetString("tenant")
			if existing, err := mgr.GetStack(ctx, tenant, name); err == nil && existing != nil {
				return fmt.Errorf("stack %q already exists in state %s_%s", name, existing.Action, existing.Status)
			}

			s, err := stack.New(stack.Options{
				Tenant:          tenant,
				Name:            name,
				Template:        tmpl,
				Parameters:      params,
				Manager:         mgr,
				Region:          viper.GetString("region"),
				Timeout:         time.Duration(timeoutMinutes) * time.Minute,
				DisableRollback: disableRollback,
			})
			if err != nil {
				return err
			}

			fmt.Printf("[create] Creating stack %q (%d resources)...\n", name, len(s.ResourceNames()))

			if err := s.Create(ctx); err != nil {
				return fmt.Errorf("stack creation failed: %w", err)
			}

			fmt.Printf("[success] Stack %q created\n", name)
			printOutputs(s.Outputs())
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "Template file (required)")
	cmd.Flags().StringArrayVarP(&parameters, "parameter", "p", nil, "Template parameter (key=value)")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 60, "Timeout for the operation in minutes")
	cmd.Flags().BoolVar(&disableRollback, "disable-rollback", false, "Leave a failed stack in place for inspection")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

func printOutputs(outputs map[string]interface{}) {
	if len(outputs) == 0 {
		return
	}
	fmt.Println("Outputs:")
	for name, value := range outputs {
		fmt.Printf("  %s: %v\n", name, value)
	}
}
