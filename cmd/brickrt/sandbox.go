package main

import (
	"context"
	"os"

	"github.com/aretw0/brickrt/internal/cli"
	"github.com/aretw0/brickrt/pkg/sandbox"
	"github.com/spf13/cobra"
)

var sandboxCmd = &cobra.Command{
	Use:    "sandbox",
	Short:  "Serve the template sandbox on stdin/stdout",
	Long:   `Answers line-delimited JSON render requests. Started by --sandbox=process.`,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		return sandbox.Serve(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(sandboxCmd)
}
