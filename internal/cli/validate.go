package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <template>",
		Short: "Validate a template file",
		Long: `Validate a template file without touching any stack.

Parses the template, checks its structure and prints the declared
parameters and resources.

Examples:
  kilnctl validate stack.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := loadTemplateFile(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Template %s is valid (%s dialect, version %s)\n", args[0], tmpl.Dialect(), tmpl.Version())
			if tmpl.Description() != "" {
				fmt.Printf("Description: %s\n", tmpl.Description())
			}

			schemas := tmpl.ParameterSchemas()
			if len(schemas) > 0 {
				fmt.Println("\nParameters:")
				names := make([]string, 0, len(schemas))
				for name := range schemas {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					schema := schemas[name]
					line := fmt.Sprintf("  %s (%s)", name, schema.Type)
					if schema.HasDefault {
						if schema.Hidden {
							line += " default: ******"
						} else {
							line += fmt.Sprintf(" default: %v", schema.Default)
						}
					}
					fmt.Println(line)
				}
			}

			resources := tmpl.ResourceDefinitions()
			if len(resources) > 0 {
				fmt.Println("\nResources:")
				names := make([]string, 0, len(resources))
				for name := range resources {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("  %-25s %s\n", name, resources[name].Type)
				}
			}

			return nil
		},
	}

	return cmd
}
