// Package cli implements the kilnctl CLI commands.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import state backends to register them via init()
	_ "github.com/kiln-io/kiln/pkg/state/backend/azurerm"
	_ "github.com/kiln-io/kiln/pkg/state/backend/gcs"
	_ "github.com/kiln-io/kiln/pkg/state/backend/local"
	_ "github.com/kiln-io/kiln/pkg/state/backend/s3"

	// Import builtin resource providers to register them via init()
	_ "github.com/kiln-io/kiln/pkg/resource/builtin"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kilnctl",
	Short: "Orchestrate stacks of resources from declarative templates",
	Long: `kilnctl drives stacks of resources through their lifecycle.

A stack is described by a template: parameters, resources with their
dependencies, and outputs. kilnctl creates, updates, suspends, resumes
and deletes stacks, resolving intrinsic functions and ordering resource
operations along the dependency graph.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kiln/config.yaml)")
	rootCmd.PersistentFlags().String("tenant", "default", "Tenant the stacks belong to")
	rootCmd.PersistentFlags().String("region", "", "Region fed into the kiln.region pseudo parameter")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Bind to viper
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
	_ = viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))
	viper.SetEnvPrefix("KILN")
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newSuspendCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newAdoptCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDescribeCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newOutputsCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.kiln")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}
