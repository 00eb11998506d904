package repo

import (
	"context"
	"time"
)

// InvokeOptions controls a single oracle invocation
type InvokeOptions struct {
	Timeout    time.Duration // Per-attempt timeout
	MaxTimeout time.Duration // Upper bound on Timeout, zero means no bound
	Retries    int           // Transport-level retries; the classifier passes 0 and retries itself
	MaxTokens  int           // Zero uses the client default
}

// OracleRepo is the language-model interface used by the classifier.
// It returns the raw completion text; interpretation is the caller's job.
type OracleRepo interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string, opts InvokeOptions) (string, error)
}
