package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/ans/cmd/ansd/commands"
)

var rootCmd = &cobra.Command{
	Use:          "ansd",
	Short:        "Agent Name Service registry",
	Long:         `Run the Agent Name Service registry and manage agent keys and signed registration payloads.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.KeygenCmd)
	rootCmd.AddCommand(commands.SignCmd)
	rootCmd.AddCommand(commands.FingerprintCmd)
	rootCmd.AddCommand(commands.WatchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
