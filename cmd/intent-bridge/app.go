package main

import (
	"github.com/chopstar001/chat-intent-bridge/internal/biz"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
	"github.com/chopstar001/chat-intent-bridge/internal/conf"
	"github.com/chopstar001/chat-intent-bridge/internal/data"
	"github.com/chopstar001/chat-intent-bridge/internal/infra/feishu"
	"github.com/chopstar001/chat-intent-bridge/internal/service"
)

// core is the transport-independent part of the application
type core struct {
	clock  clock.Clock
	repos  *data.Repositories
	uc     *biz.Usecases
	intent *service.IntentService
}

// newCore wires repositories, usecases and the intent service.
// feishuClient may be nil for commands that do not talk to Feishu.
func newCore(cfg *conf.Config, feishuClient *feishu.Client) (*core, error) {
	clk := clock.Real()

	repos, err := data.NewRepositories(cfg, feishuClient, clk)
	if err != nil {
		return nil, err
	}

	uc := biz.NewUsecases(clk, usecaseOptions(cfg), repos.Oracle, repos.Roster)
	intent := service.NewIntentService(clk, uc, repos.History, repos.Transcript, service.IntentOptions{
		Coalescer:    cfg.ToCoalescerConfig(),
		HistoryFetch: cfg.HistoryFetch(),
		Progressive:  cfg.Progressive,
	})

	return &core{clock: clk, repos: repos, uc: uc, intent: intent}, nil
}

func usecaseOptions(cfg *conf.Config) biz.Options {
	opts := biz.DefaultOptions()
	opts.ConversationTimeout = cfg.ConversationTimeout()
	opts.Cache = cfg.ToCacheConfig()
	opts.Group = cfg.ToGroupContextConfig()
	opts.Prefilter = cfg.ToPrefilterConfig()
	opts.Prompts = cfg.ToPromptConfig()
	return opts
}

// Close flushes pending fragments and releases the repositories
func (c *core) Close() error {
	c.intent.Shutdown()
	return c.repos.Close()
}
