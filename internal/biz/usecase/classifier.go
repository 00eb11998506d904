package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
)

// ClassifierConfig contains classification pipeline configuration
type ClassifierConfig struct {
	Stage1Timeout    time.Duration // Yes/no check, single attempt
	Stage2Timeout    time.Duration // Per attempt
	Stage2MaxTimeout time.Duration
	Stage2MaxTokens  int
	Retry            RetryConfig
}

// DefaultClassifierConfig returns default classifier configuration
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Stage1Timeout:    3 * time.Second,
		Stage2Timeout:    20 * time.Second,
		Stage2MaxTimeout: 60 * time.Second,
		Stage2MaxTokens:  400,
		Retry:            DefaultRetryConfig(),
	}
}

// ClassifyRequest is one logical message to classify. A nil History means
// no history was supplied; a nil Roster is fetched from the roster provider.
type ClassifyRequest struct {
	Text    string
	ChatID  string
	UserID  string
	History []domain.Message
	Roster  map[string]domain.Participant
}

// Classifier runs the pre-filter, Stage 1 and Stage 2 over logical messages
type Classifier struct {
	oracle     repo.OracleRepo
	rosterRepo repo.RosterRepo
	tracker    *ConversationTracker
	cache      *AnalysisCache
	group      *GroupContextStore
	prefilter  *Prefilter
	prompts    *PromptBuilder
	config     ClassifierConfig
}

// NewClassifier creates a new classifier. oracle and rosterRepo may be nil:
// without an oracle Stage 1 is purely lexical and Stage 2 always falls back.
func NewClassifier(
	oracle repo.OracleRepo,
	rosterRepo repo.RosterRepo,
	tracker *ConversationTracker,
	cache *AnalysisCache,
	group *GroupContextStore,
	prefilter *Prefilter,
	prompts *PromptBuilder,
	config ClassifierConfig,
) *Classifier {
	return &Classifier{
		oracle:     oracle,
		rosterRepo: rosterRepo,
		tracker:    tracker,
		cache:      cache,
		group:      group,
		prefilter:  prefilter,
		prompts:    prompts,
		config:     config,
	}
}

// Classify runs pre-filter, similarity, cache, Stage 1 and Stage 2 in that order.
// It never fails: errors resolve to deterministic results.
func (c *Classifier) Classify(ctx context.Context, req ClassifyRequest) (result domain.ClassificationResult) {
	defer c.guard(req, &result)

	if r, done := c.screen(req); done {
		return r
	}
	if r, ok := c.lookup(req); ok {
		return r
	}
	if likely, source := c.stage1(ctx, req.Text); !likely {
		return NotQuestionResult(source)
	}
	return c.stage2(ctx, req)
}

// ClassifyProgressively runs the cheap checks first and only consults
// similarity, cache and Stage 2 when Stage 1 says "likely question"
func (c *Classifier) ClassifyProgressively(ctx context.Context, req ClassifyRequest) (result domain.ClassificationResult) {
	defer c.guard(req, &result)

	if r, done := c.screen(req); done {
		return r
	}
	if likely, source := c.stage1(ctx, req.Text); !likely {
		return NotQuestionResult(source)
	}
	if r, ok := c.lookup(req); ok {
		return r
	}
	return c.stage2(ctx, req)
}

// guard converts a panic anywhere in the pipeline into the fallback result
// and records the outcome
func (c *Classifier) guard(req ClassifyRequest, result *domain.ClassificationResult) {
	if r := recover(); r != nil {
		log.Error().
			Str("component", "classifier").
			Str("chat_id", req.ChatID).
			Interface("panic", r).
			Msg("classification panicked, using fallback")
		*result = FallbackResult(c.tracker.IsActive(req.ChatID))
	}
	classificationsTotal.WithLabelValues(string(result.Source)).Inc()
	log.Debug().
		Str("component", "classifier").
		Str("chat_id", req.ChatID).
		Str("user_id", req.UserID).
		Str("source", string(result.Source)).
		Bool("is_question", result.IsQuestion).
		Str("action", string(result.Action)).
		Float64("confidence", result.Confidence).
		Msg("classified")
}

// screen handles contract violations and the pre-filter
func (c *Classifier) screen(req ClassifyRequest) (domain.ClassificationResult, bool) {
	if strings.TrimSpace(req.ChatID) == "" {
		return InvalidResult("missing chat id"), true
	}
	if reason := c.prefilter.Check(req.Text, req.Roster); reason != "" {
		return SkipResult(reason), true
	}
	return domain.ClassificationResult{}, false
}

// lookup reuses a similar question from the chat's window, then the cache.
// The cache is only consulted when no history was supplied.
func (c *Classifier) lookup(req ClassifyRequest) (domain.ClassificationResult, bool) {
	if r, score, ok := c.group.FindSimilar(req.ChatID, req.Text); ok {
		log.Debug().Str("component", "classifier").Str("chat_id", req.ChatID).Float64("score", score).Msg("similar question reused")
		r.Source = domain.SourceSimilarity
		return r, true
	}
	if req.History == nil {
		if r, ok := c.cache.Get(CacheKey(req.Text)); ok {
			r.Source = domain.SourceCache
			return r, true
		}
	}
	return domain.ClassificationResult{}, false
}

// stage1 reports whether text is likely a question and which check decided
func (c *Classifier) stage1(ctx context.Context, text string) (bool, domain.Source) {
	if LooksLikeQuestion(text) {
		return true, domain.SourceHeuristic
	}
	if c.oracle == nil {
		return false, domain.SourceHeuristic
	}

	system, user := c.prompts.Stage1(text)
	resp, err := c.oracle.Invoke(ctx, system, user, repo.InvokeOptions{
		Timeout:   c.config.Stage1Timeout,
		Retries:   0,
		MaxTokens: 5,
	})
	if err != nil {
		oracleCallsTotal.WithLabelValues("stage1", "error").Inc()
		log.Warn().Str("component", "classifier").Err(err).Msg("stage1 check failed, using lexical result")
		return false, domain.SourceHeuristic
	}

	likely := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp)), "YES")
	if likely {
		oracleCallsTotal.WithLabelValues("stage1", "yes").Inc()
	} else {
		oracleCallsTotal.WithLabelValues("stage1", "no").Inc()
	}
	return likely, domain.SourceStage1
}

// stage2 asks the oracle for a full classification with bounded retries
func (c *Classifier) stage2(ctx context.Context, req ClassifyRequest) domain.ClassificationResult {
	if c.oracle == nil {
		return FallbackResult(c.tracker.IsActive(req.ChatID))
	}

	roster := req.Roster
	if roster == nil && c.rosterRepo != nil {
		fetched, err := c.rosterRepo.GetRoster(ctx, req.ChatID)
		if err != nil {
			log.Warn().Str("component", "classifier").Str("chat_id", req.ChatID).Err(err).Msg("roster unavailable")
		} else {
			roster = fetched
		}
	}

	system, user := c.prompts.Stage2(req.Text, req.History, roster, c.tracker.Signals(req.ChatID))

	var parsed domain.ClassificationResult
	var strategy string
	res := RetryWithBackoff(ctx, c.config.Retry, "classifier", func(attempt int) error {
		raw, err := c.oracle.Invoke(ctx, system, user, repo.InvokeOptions{
			Timeout:    c.config.Stage2Timeout,
			MaxTimeout: c.config.Stage2MaxTimeout,
			Retries:    0,
			MaxTokens:  c.config.Stage2MaxTokens,
		})
		if err != nil {
			oracleCallsTotal.WithLabelValues("stage2", "error").Inc()
			return err
		}
		r, s, err := ParseClassification(raw)
		if err != nil {
			oracleCallsTotal.WithLabelValues("stage2", "invalid").Inc()
			return err
		}
		oracleCallsTotal.WithLabelValues("stage2", "ok").Inc()
		parsed, strategy = r, s
		return nil
	})

	if !res.Success {
		log.Warn().
			Str("component", "classifier").
			Str("chat_id", req.ChatID).
			Int("attempts", res.Attempts).
			Err(res.LastError).
			Msg("stage2 exhausted, using fallback")
		return FallbackResult(c.tracker.IsActive(req.ChatID))
	}

	if strategy != RepairDirect {
		log.Debug().Str("component", "classifier").Str("strategy", strategy).Msg("classifier output repaired")
	}

	// History-bearing results are context specific and stay out of the cache.
	// They still enter the group window, which is not history scoped.
	if req.History == nil {
		c.cache.Set(CacheKey(req.Text), parsed)
	}
	c.group.RecordQuestion(req.ChatID, req.Text, parsed)
	return parsed
}
