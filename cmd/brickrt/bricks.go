package main

import (
	"context"

	"github.com/aretw0/brickrt/internal/cli"
	"github.com/spf13/cobra"
)

var bricksCmd = &cobra.Command{
	Use:   "bricks",
	Short: "List registered bricks",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := cli.NewEnv(context.Background(), configFromFlags(cmd))
		if err != nil {
			return err
		}
		defer env.Close(context.Background())

		filter, _ := cmd.Flags().GetString("filter")
		jsonMode, _ := cmd.Flags().GetBool("json")
		return cli.ListBricks(cmd.OutOrStdout(), env.Registry, filter, jsonMode)
	},
}

func init() {
	rootCmd.AddCommand(bricksCmd)
	bricksCmd.Flags().String("filter", "", "Glob over brick ids, e.g. '@brickrt/*'")
	bricksCmd.Flags().Bool("json", false, "Print as JSON")
}
