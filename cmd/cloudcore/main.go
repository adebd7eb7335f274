package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fivetwenty-io/cloudcore/cmd/cloudcore/commands"
	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cloudcore",
	Short: "Cloud identity and service endpoint CLI",
	Long: `A command-line interface for authenticating against a Rackspace-compatible
identity service and calling the services in its catalog.

Credentials are stored per profile; tokens are cached and refreshed
transparently.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "profile file (default $HOME/.cloudcore/config.yml)")
	flags.StringP("identity", "i", "", "profile name (default the current profile)")
	flags.StringP("region", "r", "", "region, overriding the profile and the user's default")
	flags.StringP("output", "o", constants.FormatTable, "output format: table, json or yaml")
	flags.BoolP("verbose", "v", false, "log identity and HTTP traffic to stderr")

	for _, name := range []string{"config", "identity", "region", "output", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		commands.NewVersionCommand(version, commit, date),
		commands.NewLoginCommand(),
		commands.NewTokenCommand(),
		commands.NewConfigCommand(),
		commands.NewCatalogCommand(),
		commands.NewEndpointCommand(),
		commands.NewImpersonateCommand(),
		commands.NewRequestCommand(),
		commands.NewVolumeCommand(),
		commands.NewServerCommand(),
	)
}

func initConfig() {
	cfgFile := viper.GetString("config")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".cloudcore")

		err = os.MkdirAll(configDir, constants.ConfigDirPerm)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CLOUDCORE")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err == nil && viper.GetBool("verbose") {
		_, _ = fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
