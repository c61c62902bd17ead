package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aretw0/brickrt"
	"github.com/aretw0/brickrt/internal/cli"
	"github.com/aretw0/brickrt/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [DIR]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes bricks, and the definitions found in DIR, as MCP tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFromFlags(cmd)
		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		env, err := cli.NewEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close(context.Background())

		srvOpts := []mcp.Option{mcp.WithVersion(brickrt.Version), mcp.WithLogger(env.Logger)}
		var srv *mcp.Server
		if len(args) > 0 {
			library, err := cli.LoadLibrary(ctx, args[0], env.Registry, filepath.Clean(cfg.BricksFile))
			if err != nil {
				env.Logger.Warn("Some definitions were skipped", "dir", args[0], "err", err)
			}
			srv = mcp.NewServer(env.Engine, library, srvOpts...)
		} else {
			srv = mcp.NewServer(env.Engine, nil, srvOpts...)
		}

		transport, _ := cmd.Flags().GetString("transport")
		switch transport {
		case "stdio":
			// Keep stray log output off the JSON-RPC stream.
			log.SetOutput(os.Stderr)
			env.Logger.Info("Starting MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			addr, _ := cmd.Flags().GetString("addr")
			baseURL, _ := cmd.Flags().GetString("base-url")
			return srv.ServeSSE(ctx, addr, baseURL)
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "http://localhost:8081", "Public base URL (only for SSE)")
}
