package main

import (
	"context"

	"github.com/aretw0/brickrt/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve page frames over HTTP",
	Long: `Exposes a tab's frames as a messenger endpoint. Other runtimes started
with --remote forward page bricks here. Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.ServeOptions{Config: configFromFlags(cmd)}
		opts.Addr, _ = cmd.Flags().GetString("addr")
		opts.TabID, _ = cmd.Flags().GetInt("tab")
		opts.Frames, _ = cmd.Flags().GetInt("frames")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		return cli.Serve(ctx, opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Int("tab", 1, "Tab id of the served frames")
	serveCmd.Flags().Int("frames", 1, "Number of frames in the tab")
}
