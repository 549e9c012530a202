package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	agentCmd "github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/agent"
	ingestCmd "github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/ingest"
	migrateCmd "github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/migrate"
	responderCmd "github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/responder"
	"github.com/mpapenbr/simracecenter-agent-go/version"
)

const envPrefix = "SRA"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "sra",
	Short:   "Race state ingestion and chat responder for Sim RaceCenter",
	Long:    ``,
	Version: version.FullVersion,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.sra.yml)")

	// add commands here
	rootCmd.AddCommand(ingestCmd.NewIngestCmd())
	rootCmd.AddCommand(responderCmd.NewResponderCmd())
	rootCmd.AddCommand(agentCmd.NewAgentCmd())
	rootCmd.AddCommand(migrateCmd.NewMigrateCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".sra" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sra")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindCommand(rootCmd, viper.GetViper())
}

func bindCommand(cmd *cobra.Command, v *viper.Viper) {
	bindFlags(cmd, v)
	for _, sub := range cmd.Commands() {
		bindCommand(sub, v)
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// --nats-url is read from SRA_NATS_URL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, flagValue(v.Get(f.Name))); err != nil {
			fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
		}
	})
}

// flagValue renders a config value the way pflag parses it. Yaml lists become
// comma separated values for slice flags.
func flagValue(val any) string {
	list, ok := val.([]any)
	if !ok {
		return fmt.Sprintf("%v", val)
	}
	parts := make([]string, 0, len(list))
	for _, p := range list {
		parts = append(parts, fmt.Sprintf("%v", p))
	}
	return strings.Join(parts, ",")
}
