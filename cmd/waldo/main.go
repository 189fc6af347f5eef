package main

import (
	"os"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/go-go-golems/waldo/cmd/waldo/cmds"
	"github.com/go-go-golems/waldo/pkg/config"
	"github.com/go-go-golems/waldo/pkg/doc"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "waldo",
	Short: "waldo is a retrieval-augmented voice agent for wellness questions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLoggerFromViper()
	},
	SilenceUsage: true,
}

func main() {
	if _, err := config.LoadDotEnv(config.DotEnvFile, config.ExpectedKey); err != nil {
		log.Warn().Err(err).Msg("Could not load environment file")
	}

	err := clay.InitViper(config.EnvPrefix, rootCmd)
	cobra.CheckErr(err)
	// settings keys are nested, clay only knows the flat logging ones
	err = config.InitViper(viper.GetViper())
	cobra.CheckErr(err)

	helpSystem := help.NewHelpSystem()
	err = doc.AddDocToHelpSystem(helpSystem)
	cobra.CheckErr(err)
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	rootCmd.AddCommand(
		cmds.NewAgentCommand(),
		cmds.NewServeCommand(),
		cmds.NewIndexCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
