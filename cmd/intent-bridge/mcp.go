package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chopstar001/chat-intent-bridge/internal/conf"
	"github.com/chopstar001/chat-intent-bridge/mcpserver"
)

func (c *cli) newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the classification tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, c.cfg)
		},
	}
}

func runMCP(ctx context.Context, cfg *conf.Config) error {
	app, err := newCore(cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	log.Info().Str("component", "mcp").Bool("oracle", app.repos.Oracle != nil).Msg("serving on stdio")
	return mcpserver.NewServer(app.intent, version).Run(ctx)
}
