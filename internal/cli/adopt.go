package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiln-io/kiln/pkg/stack"
)

func newAdoptCmd() *cobra.Command {
	var (
		templateFile   string
		parameters     []string
		resources      []string
		timeoutMinutes int
		backendType    string
		backendConfig  []string
	)

	cmd := &cobra.Command{
		Use:   "adopt <stack>",
		Short: "Create a stack around pre-existing resources",
		Long: `Create a stack that takes ownership of pre-existing physical
resources instead of provisioning them.

Each --resource flag maps a template resource name to the physical id of
an existing resource. Template resources without a mapping are created
normally.

Examples:
  kilnctl adopt web -t stack.yaml -r database=db-7f3a -r cache=redis-19`,
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

			physicalIDs := make(map[string]string, len(resources))
			for _, pair := range resources {
				parts := strings.SplitN(pair, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid resource mapping %q, expected name=physical-id", pair)
				}
				physicalIDs[parts[0]] = parts[1]
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
				Tenant:     tenant,
				Name:       name,
				Template:   tmpl,
				Parameters: params,
				Manager:    mgr,
				Region:     viper.GetString("region"),
				Timeout:    time.Duration(timeoutMinutes) * time.Minute,
			})
			if err != nil {
				return err
			}

			fmt.Printf("[adopt] Adopting %d resource(s) into stack %q...\n", len(physicalIDs), name)

			if err := s.Adopt(ctx, physicalIDs); err != nil {
				return fmt.Errorf("stack adoption failed: %w", err)
			}

			fmt.Printf("[success] Stack %q adopted\n", name)
			printOutputs(s.Outputs())
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "Template file (required)")
	cmd.Flags().StringArrayVarP(&parameters, "parameter", "p", nil, "Template parameter (key=value)")
	cmd.Flags().StringArrayVarP(&resources, "resource", "r", nil, "Adopted resource mapping (name=physical-id)")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 60, "Timeout for the operation in minutes")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}
