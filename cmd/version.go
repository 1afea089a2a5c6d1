// cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vitovidale/clip-processor-service/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "clip-processor %s (%s)\n", config.Version, config.GitCommit)
	},
}
