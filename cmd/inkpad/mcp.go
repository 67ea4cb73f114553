package main

import (
	"github.com/kuitang/inkpad/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(c *cli) *cobra.Command {
	var (
		useHTTP bool
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the notebook to agents over MCP",
		Long: `Serve note and chat tools over the Model Context Protocol. By default the
server speaks stdio; with --http it serves Streamable HTTP at /mcp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, true, func(a *app) error {
				a.cfg.PrintStartupSummary(cmd.ErrOrStderr())
				if !useHTTP {
					return mcp.NewServer(a.ws, version).RunStdio(ctx)
				}
				server := mcp.NewServer(a.ws, version, mcp.WithRateLimit(a.cfg.RateLimitConfig()))
				defer server.Close()
				if addr == "" {
					addr = a.cfg.MCPListenAddr
				}
				return server.ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().BoolVar(&useHTTP, "http", false, "Serve Streamable HTTP instead of stdio")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default MCP_LISTEN_ADDR or :8080)")
	return cmd
}
