package main

import (
	"context"
	"fmt"

	"github.com/aretw0/brickrt/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check a definition without running it",
	Long:  `Reports unknown bricks, misplaced renderers, malformed expressions and invalid output keys.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := cli.NewEnv(context.Background(), configFromFlags(cmd))
		if err != nil {
			return err
		}
		defer env.Close(context.Background())

		if err := cli.Validate(cmd.Context(), args[0], env.Registry); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Definition is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
