// Package cmd assembles the hydrolabel command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oceanlabs/hydrolabel-go/cmd/inspect"
	"github.com/oceanlabs/hydrolabel-go/cmd/migrate"
	"github.com/oceanlabs/hydrolabel-go/cmd/serve"
	"github.com/oceanlabs/hydrolabel-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hydrolabel",
		Short: "Hydrolabel CLI",
		Long:  "Backend for browsing, labeling and verifying marine acoustic spectrograms",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		inspect.Command(settings),
		migrate.Command(settings),
	)

	return rootCmd
}

// setupFlags binds global command line flags to viper keys so they override
// config file and environment values.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	cmd.PersistentFlags().StringVar(&settings.Server.Host, "host", settings.Server.Host, "Interface the HTTP server binds to")
	cmd.PersistentFlags().IntVarP(&settings.Server.Port, "port", "p", settings.Server.Port, "Port the HTTP server listens on")

	_ = viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("server.host", cmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", cmd.PersistentFlags().Lookup("port"))
}
