// Package commands implements the fileshare command line: the server
// (start, init) and a client for every protocol command.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "fileshare",
	Short: "fileshare - line-oriented TCP file sharing",
	Long: `fileshare serves one directory tree over a small line-oriented TCP
protocol and ships a client for every protocol command.

Server:
  fileshare init                 write a sample configuration file
  fileshare start                run the server

Client:
  fileshare put|get|rm|ls|mkdir|rmdir --addr host:port ...

Every configuration value can be overridden with FILESHARE_<SECTION>_<KEY>,
e.g. FILESHARE_LOGGING_LEVEL=DEBUG fileshare start.

Use "fileshare [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/fileshare/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	for _, c := range remoteCommands() {
		rootCmd.AddCommand(c)
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
