package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chopstar001/chat-intent-bridge/internal/api"
	"github.com/chopstar001/chat-intent-bridge/internal/conf"
	"github.com/chopstar001/chat-intent-bridge/internal/infra/feishu"
	"github.com/chopstar001/chat-intent-bridge/internal/server"
	"github.com/chopstar001/chat-intent-bridge/internal/service"
)

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Listen to Feishu chats and log a decision for every logical message",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), c.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *conf.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)

	// The bot's own name is the fallback identity for prompts and @mentions
	if info, err := feishuClient.FetchBotInfo(ctx); err != nil {
		log.Warn().Str("component", "serve").Err(err).Msg("failed to fetch bot info")
	} else if cfg.BotName == "" {
		cfg.BotName = info.AppName
	}

	app, err := newCore(cfg, feishuClient)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Str("component", "serve").Err(err).Msg("close failed")
		}
	}()

	app.intent.SetDecisionCallback(logDecision)

	log.Info().
		Str("component", "serve").
		Str("bot_name", cfg.BotName).
		Bool("oracle", app.repos.Oracle != nil).
		Str("history_source", cfg.HistorySource).
		Str("transcript", cfg.Transcript.DBPath).
		Msg("starting")

	sweeper := service.NewSweeper(app.uc, app.repos.Transcript, app.clock, service.SweeperConfig{
		TranscriptRetention: time.Duration(cfg.Transcript.RetentionDays) * 24 * time.Hour,
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := server.NewFeishuServer(feishuClient, app.intent, app.repos.Roster, app.clock)

	g, gctx := errgroup.WithContext(ctx)

	// The websocket client does not return on cancellation, so only its
	// failure is waited on
	feishuErr := make(chan error, 1)
	go func() { feishuErr <- srv.Run(gctx) }()
	g.Go(func() error {
		select {
		case err := <-feishuErr:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	if cfg.HTTPAddr != "" {
		apiServer := api.NewServer(app.intent, app.repos.History, cfg.HTTPAddr)
		g.Go(func() error { return apiServer.Run(gctx) })
	}

	err = g.Wait()
	log.Info().Str("component", "serve").Msg("shutting down")
	return err
}

// logDecision reports a decision. Sending replies is left to downstream consumers.
func logDecision(ctx context.Context, d service.Decision) {
	log.Info().
		Str("component", "decision").
		Str("chat_id", d.Message.ChatID).
		Str("user_id", d.Message.UserID).
		Str("message_id", d.Message.ID).
		Int("fragments", d.Message.FragmentCount).
		Bool("question", d.Result.IsQuestion).
		Float64("confidence", d.Result.Confidence).
		Str("action", string(d.Result.Action)).
		Str("source", string(d.Result.Source)).
		Bool("mentioned", d.Mentioned).
		Bool("engage", d.Result.ShouldEngage()).
		Bool("suggest_summary", d.SuggestSummary).
		Msg(truncate(d.Message.Text, 80))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
