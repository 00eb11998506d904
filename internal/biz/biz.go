package biz

import (
	"time"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

// Options gathers the configuration of every usecase
type Options struct {
	ConversationTimeout time.Duration
	Cache               usecase.CacheConfig
	Group               usecase.GroupContextConfig
	Prefilter           usecase.PrefilterConfig
	Prompts             usecase.PromptConfig
	Classifier          usecase.ClassifierConfig
}

// DefaultOptions returns defaults for every usecase
func DefaultOptions() Options {
	return Options{
		ConversationTimeout: usecase.DefaultConversationTimeout,
		Cache:               usecase.DefaultCacheConfig(),
		Group:               usecase.DefaultGroupContextConfig(),
		Prefilter:           usecase.DefaultPrefilterConfig(),
		Prompts:             usecase.DefaultPromptConfig(),
		Classifier:          usecase.DefaultClassifierConfig(),
	}
}

// Usecases contains all usecases
type Usecases struct {
	Tracker    *usecase.ConversationTracker
	Cache      *usecase.AnalysisCache
	Group      *usecase.GroupContextStore
	Classifier *usecase.Classifier
}

// NewUsecases wires the classification pipeline. oracle and roster may be nil.
func NewUsecases(clk clock.Clock, opts Options, oracle repo.OracleRepo, roster repo.RosterRepo) *Usecases {
	tracker := usecase.NewConversationTracker(clk, opts.ConversationTimeout)
	cache := usecase.NewAnalysisCache(clk, opts.Cache)
	group := usecase.NewGroupContextStore(clk, opts.Group, oracle)

	classifier := usecase.NewClassifier(
		oracle,
		roster,
		tracker,
		cache,
		group,
		usecase.NewPrefilter(opts.Prefilter),
		usecase.NewPromptBuilder(opts.Prompts),
		opts.Classifier,
	)

	return &Usecases{
		Tracker:    tracker,
		Cache:      cache,
		Group:      group,
		Classifier: classifier,
	}
}
