package main

import (
	"fmt"
	"os"

	"github.com/aretw0/brickrt/internal/cli"
	"github.com/spf13/cobra"
)

// stateKeyEnv supplies --state-key without putting the key on the command line.
const stateKeyEnv = "BRICKRT_STATE_KEY"

var rootCmd = &cobra.Command{
	Use:   "brickrt",
	Short: "brickrt runs brick pipelines",
	Long: `brickrt executes pipelines of bricks: small typed units of behavior whose
arguments are templates and variables rendered against the outputs of earlier steps.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug logging on stderr")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.String("bricks", "bricks.yaml", "File listing external process bricks")
	flags.String("redis", "", "Redis URL for page state (e.g. redis://localhost:6379/0)")
	flags.String("state-key", "", "Hex AES-256 key encrypting page state values (or $"+stateKeyEnv+")")
	flags.StringSlice("redact", nil, "Regex of state keys masked in debug change logs")
	flags.StringSlice("policy", nil, "Additional Rego policy files")
	flags.String("sandbox", cli.SandboxWorker, "Template sandbox: 'worker' or 'process'")
	flags.String("otlp-endpoint", "", "OTLP/gRPC collector for spans")
	flags.String("remote", "", "Messenger server URL; page bricks are forwarded there")
}

// configFromFlags reads the persistent flags shared by every engine command.
func configFromFlags(cmd *cobra.Command) cli.Config {
	flags := cmd.Flags()
	var cfg cli.Config
	cfg.Debug, _ = flags.GetBool("debug")
	cfg.LogJSON, _ = flags.GetBool("log-json")
	cfg.BricksFile, _ = flags.GetString("bricks")
	cfg.RedisURL, _ = flags.GetString("redis")
	cfg.StateKey, _ = flags.GetString("state-key")
	if cfg.StateKey == "" {
		cfg.StateKey = os.Getenv(stateKeyEnv)
	}
	cfg.Redact, _ = flags.GetStringSlice("redact")
	cfg.PolicyFiles, _ = flags.GetStringSlice("policy")
	cfg.Sandbox, _ = flags.GetString("sandbox")
	cfg.OTLPEndpoint, _ = flags.GetString("otlp-endpoint")
	cfg.Remote, _ = flags.GetString("remote")
	return cfg
}
