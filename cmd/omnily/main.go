// Omnily — multi-tenant wallet and team-permission server for retail loyalty programs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "omnily",
	Short: "Omnily — wallet ledger and staff permission server for retail organizations.",
	Long: `Omnily runs the wallet ledger and staff permission backend for a retail
organization: customer wallets with an append-only transaction ledger, role-based
staff permissions with per-staff overrides, and a full audit trail, exposed over
an authenticated HTTP API.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, seedCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
