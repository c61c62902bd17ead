package main

import (
	"context"
	"os"

	"github.com/aretw0/brickrt/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run a pipeline definition",
	Long: `Parses, validates and runs a definition file. A pipeline ending in a
renderer is run headless by default and its payload printed to the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{Config: configFromFlags(cmd), Path: args[0]}
		opts.Input, _ = cmd.Flags().GetString("input")
		opts.Options, _ = cmd.Flags().GetString("options")
		opts.RunID, _ = cmd.Flags().GetString("run-id")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Graph, _ = cmd.Flags().GetBool("graph")
		opts.Watch, _ = cmd.Flags().GetBool("watch")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		return cli.Run(ctx, opts, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("input", "", "JSON value bound as @input")
	runCmd.Flags().String("options", "", "JSON object bound as @options")
	runCmd.Flags().String("run-id", "", "Run id (random by default)")
	runCmd.Flags().Bool("headless", true, "Hand renderer args back instead of running the renderer")
	runCmd.Flags().Bool("json", false, "Print the result as JSON")
	runCmd.Flags().Bool("graph", false, "Print a Mermaid graph of the run")
	runCmd.Flags().BoolP("watch", "w", false, "Re-run whenever the file changes")
}
