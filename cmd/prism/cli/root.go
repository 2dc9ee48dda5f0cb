package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prismkeys/prism/internal/config"
)

var (
	cfgFile    string
	devMode    bool
	appVersion string // set in Execute, used by serve and mcp
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prism",
		Short: "Discord-gated, time-limited access keys",
		Long: `Prism issues time-limited access keys through Discord slash commands and
answers whether a key is usable through a small HTTP API.

24-hour keys are bound to the member who requested them. Month, year and
lifetime keys are minted by allowlisted issuers and may be handed to anyone.
A sweeper deactivates keys once they expire, and VIP members can follow it
all on the dashboard API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./prism.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.prism)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newCooldownCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	v := viper.GetViper()
	config.Configure(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("prism")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.prism")
	}
	v.ReadInConfig() // Ignore error - config file is optional
}
