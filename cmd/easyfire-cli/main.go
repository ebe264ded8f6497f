// Easyfire-cli is the companion utility for the easyfire bridge.
//
// It finds bridges over mDNS, shows a live dashboard of a bridge's sensor
// stream, dumps frames straight from the controller, decodes captured byte
// streams offline, and runs a controller simulator for testing without
// hardware.
//
// Usage:
//
//	easyfire-cli [command] [flags]
//
// See 'easyfire-cli --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/easyfire/internal/logging"
	"github.com/muurk/easyfire/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "easyfire-cli",
	Short: "KWB Easyfire bridge utility",
	Long: `A utility for the easyfire bridge and the KWB Easyfire byte stream.

Discover bridges on the network, watch their sensor stream in a terminal
dashboard, dump frames directly from the controller, decode captures
offline, and simulate a controller for testing.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeTo(logLevel, "stderr")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level for stderr (debug, info, warn, error; default silent)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("easyfire-cli %s\n", version.Full())
	},
}
