package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEventsCmd() *cobra.Command {
	var (
		outputFormat  string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "events <stack>",
		Short: "Show a stack's event log",
		Long: `Show the event log of a stack: every state transition of the stack
and its resources, oldest first.

Examples:
  kilnctl events web
  kilnctl events web -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := context.Background()

			mgr, err := createStateManagerWithConfig(backendType, backendConfig)
			if err != nil {
				return fmt.Errorf("failed to create state manager: %w", err)
			}

			events, err := mgr.ListEvents(ctx, viper.GetString("tenant"), name)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			if outputFormat == "json" {
				data, err := json.MarshalIndent(events, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(events) == 0 {
				fmt.Printf("No events recorded for stack %q.\n", name)
				return nil
			}
			for _, event := range events {
				subject := event.Resource
				if subject == "" {
					subject = name
				}
				line := fmt.Sprintf("%s  %-25s %s_%s",
					event.Timestamp.Format(time.RFC3339), subject, event.Action, event.Status)
				if event.Reason != "" {
					line += "  " + event.Reason
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format (json)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}
