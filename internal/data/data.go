package data

import (
	"github.com/chopstar001/chat-intent-bridge/internal/biz/repo"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
	"github.com/chopstar001/chat-intent-bridge/internal/conf"
	"github.com/chopstar001/chat-intent-bridge/internal/infra/feishu"
)

// Repositories contains all repositories. Oracle, History and Roster may be
// nil when the backing service is not configured.
type Repositories struct {
	Oracle     repo.OracleRepo
	History    repo.HistoryRepo
	Roster     repo.RosterRepo
	Transcript repo.TranscriptRepo
}

// NewRepositories creates all repositories. feishuClient may be nil, in
// which case history comes from the transcript and no roster is available.
func NewRepositories(cfg *conf.Config, feishuClient *feishu.Client, clk clock.Clock) (*Repositories, error) {
	transcript, err := NewTranscriptRepo(cfg.Transcript.DBPath)
	if err != nil {
		return nil, err
	}

	repos := &Repositories{Transcript: transcript, History: transcript}

	// Keep the interface nil rather than holding a nil *OracleRepo
	if oracle := NewOracleRepo(OracleOptions{
		APIKey:            cfg.Oracle.APIKey,
		BaseURL:           cfg.Oracle.BaseURL,
		Model:             cfg.Oracle.Model,
		RequestsPerSecond: cfg.Oracle.RequestsPerSecond,
		Burst:             cfg.Oracle.Burst,
	}); oracle != nil {
		repos.Oracle = oracle
	}

	if feishuClient != nil {
		feishuRepo := NewFeishuRepo(feishuClient, clk)
		repos.Roster = feishuRepo
		if cfg.HistorySource == conf.HistorySourceFeishu {
			repos.History = feishuRepo
		}
	}
	return repos, nil
}

// Close releases resources held by the repositories
func (r *Repositories) Close() error {
	if r.Transcript != nil {
		return r.Transcript.Close()
	}
	return nil
}
