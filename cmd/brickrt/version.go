package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/brickrt"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of brickrt",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "brickrt version %s\n", strings.TrimSpace(brickrt.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
