// Vbusreader reads measurements from RESOL solar controllers over VBUS.
//
// It connects through a LAN adapter, a serial port or standard input,
// decodes the broadcast packets against JSON or YAML device specifications
// and prints the values as JSON. The serve command polls periodically and
// publishes each reading to a web dashboard.
//
// Usage:
//
//	vbusreader [command] [flags]
//
// Running without a command performs a single read.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/vbusreader/internal/logging"
)

// Set at build time via -ldflags "-X main.version=v1.2.3 -X main.commit=abc123".
var (
	version = ""
	commit  = ""
)

func init() {
	if version != "" {
		return
	}
	version = "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && commit == "" {
				commit = s.Value
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vbusreader",
	Short: "Read RESOL VBUS solar controllers",
	Long: `Reads the measurement broadcast of RESOL solar thermal controllers
(DeltaSol and compatibles) over VBUS and prints decoded values as JSON.

The bus is reached through a VBUS/LAN adapter, a serial VBUS interface or
a byte stream on standard input. Device and packet layouts come from the
specification files named in the config.

If no command is specified, a single read is performed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRead,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Version = version

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vbusreader %s (commit: %s)\n", version, commit)
	},
}
