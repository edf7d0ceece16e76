// Package cmd holds the portal command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Multi-tenant client/vendor operations portal",
	Long: `portal serves the client/vendor operations API: sessions kept in step with
the identity provider, dual-role contexts, the case lifecycle, scoped ledger
reads and relationship management.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx, which is cancelled on SIGINT
// and SIGTERM.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
