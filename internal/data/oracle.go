package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
)

// OracleOptions configures the OpenAI-compatible oracle
type OracleOptions struct {
	APIKey            string
	BaseURL           string // Empty uses the OpenAI endpoint
	Model             string
	Temperature       float32
	DefaultMaxTokens  int
	DefaultTimeout    time.Duration
	RequestsPerSecond float64 // Zero disables rate limiting
	Burst             int
}

// ErrNoChoices is returned when the completion carries no message
var ErrNoChoices = errors.New("no response choices")

// OracleRepo invokes an OpenAI-compatible chat completion endpoint
type OracleRepo struct {
	client  *openai.Client
	limiter *rate.Limiter
	opts    OracleOptions
}

var _ repo.OracleRepo = (*OracleRepo)(nil)

// NewOracleRepo creates an oracle, or returns nil when no API key is configured
func NewOracleRepo(opts OracleOptions) *OracleRepo {
	if opts.APIKey == "" {
		return nil
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.DefaultMaxTokens <= 0 {
		opts.DefaultMaxTokens = 300
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &OracleRepo{
		client:  openai.NewClientWithConfig(config),
		limiter: limiter,
		opts:    opts,
	}
}

// Invoke sends one system/user exchange and returns the completion text.
// Retries counts additional attempts after a transport error.
func (r *OracleRepo) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts repo.InvokeOptions) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	if opts.MaxTimeout > 0 && timeout > opts.MaxTimeout {
		timeout = opts.MaxTimeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.opts.DefaultMaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model: r.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: r.opts.Temperature,
		MaxTokens:   maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		content, err := r.complete(ctx, req, timeout)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Debug().Str("component", "oracle").Int("attempt", attempt+1).Err(err).Msg("completion failed")
	}
	return "", lastErr
}

func (r *OracleRepo) complete(ctx context.Context, req openai.ChatCompletionRequest, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
