package main

import (
	"context"

	"github.com/aretw0/brickrt/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph FILE",
	Short: "Export the pipeline visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of a definition's pipeline, nested pipelines included.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := cli.NewEnv(context.Background(), configFromFlags(cmd))
		if err != nil {
			return err
		}
		defer env.Close(context.Background())
		return cli.Graph(cmd.Context(), cmd.OutOrStdout(), args[0], env.Registry)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
