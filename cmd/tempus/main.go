// The tempus command bundles small utilities for working with tempus
// simulations.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tempus",
	Short: "Tempus CLI tool runs demo simulations and inspects recordings.",
	Long: `Tempus CLI tool can perform common tasks related to developing ` +
		`simulations with tempus. Currently, it supports running a demo ` +
		`scenario and listing the tables of a recording database.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
