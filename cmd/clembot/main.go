package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sherzod-hakimov/clm-pol-gen/cmd/clembot/cmds"
	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"

	// Backend packages register themselves into the default catalog.
	_ "github.com/sherzod-hakimov/clm-pol-gen/pkg/backends/alephalpha"
	_ "github.com/sherzod-hakimov/clm-pol-gen/pkg/backends/anthropic"
	_ "github.com/sherzod-hakimov/clm-pol-gen/pkg/backends/mistral"
	_ "github.com/sherzod-hakimov/clm-pol-gen/pkg/backends/openai"
	_ "github.com/sherzod-hakimov/clm-pol-gen/pkg/backends/slurk"
)

var rootCmd = &cobra.Command{
	Use:   "clembot",
	Short: "clembot resolves model names to generation backends and runs them",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger once --log-level has been parsed
		if err := initLogger(viper.GetString("log-level")); err != nil {
			return err
		}
		if keys := viper.GetString("keys"); keys != "" {
			return os.Setenv("CLEM_KEY_FILE", keys)
		}
		return nil
	},
}

func initLogger(level string) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("registry", "model_registry.json", "path to the model registry file (json or yaml)")
	rootCmd.PersistentFlags().String("keys", backends.DefaultCredentialsFile, "path to the credentials key file")

	viper.SetEnvPrefix("CLEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	rootCmd.AddCommand(cmds.NewModelsCommand())
	rootCmd.AddCommand(cmds.NewChatCommand())
	rootCmd.AddCommand(cmds.NewSlurkRoomCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
