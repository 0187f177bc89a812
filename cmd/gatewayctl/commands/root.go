// Package commands implements the gatewayctl CLI: a read-only diagnostics
// client for a running storage-gateway instance's admin endpoints.
package commands

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// serverURL is populated from the --server persistent flag in
// PersistentPreRunE; it and httpClient are shared by every subcommand.
var (
	serverURL  string
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "Diagnostics client for a storage-gateway instance",
	Long: `gatewayctl talks to a running storage-gateway's admin endpoints
(/healthz, /readyz, /debug/cache/stats) to report liveness, readiness, and
edge-cache diagnostics.

Use "gatewayctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ = cmd.Flags().GetString("server")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Gateway base URL")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(objectCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show gatewayctl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("gatewayctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}
