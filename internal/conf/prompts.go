package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Classifier ClassifierPrompts `yaml:"classifier"`
	Summary    SummaryPrompts    `yaml:"summary"`
	History    HistoryConfig     `yaml:"history"`
}

// ClassifierPrompts contains Stage 1 and Stage 2 prompts
type ClassifierPrompts struct {
	Stage1SystemPrompt string `yaml:"stage1_system_prompt"`
	Stage2SystemPrompt string `yaml:"stage2_system_prompt"`
	HistoryMarker      string `yaml:"history_marker"`
	CurrentMarker      string `yaml:"current_marker"`
	RosterHeader       string `yaml:"roster_header"`
	SignalsHeader      string `yaml:"signals_header"`
}

// SummaryPrompts contains the conversation summary prompt
type SummaryPrompts struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// HistoryConfig contains history truncation settings
type HistoryConfig struct {
	MaxTurns int `yaml:"max_turns"` // Turns included in Stage 2 prompts
	Fetch    int `yaml:"fetch"`     // Turns fetched from the history source per message
}

// DefaultPromptsConfig returns the built-in prompts
func DefaultPromptsConfig() *PromptsConfig {
	d := usecase.DefaultPromptConfig()
	return &PromptsConfig{
		Classifier: ClassifierPrompts{
			Stage1SystemPrompt: d.Stage1SystemPrompt,
			Stage2SystemPrompt: d.Stage2SystemPrompt,
			HistoryMarker:      d.HistoryMarker,
			CurrentMarker:      d.CurrentMarker,
			RosterHeader:       d.RosterHeader,
			SignalsHeader:      d.SignalsHeader,
		},
		Summary: SummaryPrompts{
			SystemPrompt: usecase.DefaultSummaryPrompt,
		},
		History: HistoryConfig{
			MaxTurns: d.MaxHistoryTurns,
			Fetch:    20,
		},
	}
}

// LoadPromptsConfig loads prompts from YAML. An empty path searches the
// usual locations and falls back to the built-in prompts.
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/chat-intent-bridge/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data, loadedPath = b, p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("prompts file %s not readable", configPath)
		}
		log.Debug().Str("component", "config").Msg("no prompts.yaml found, using defaults")
		return DefaultPromptsConfig(), nil
	}

	log.Info().Str("component", "config").Str("path", loadedPath).Msg("loading prompts")
	return ParsePromptsConfig(data)
}

// ParsePromptsConfig decodes YAML prompts and fills empty fields with defaults
func ParsePromptsConfig(data []byte) (*PromptsConfig, error) {
	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}
	config.fillDefaults()
	return &config, nil
}

func (c *PromptsConfig) fillDefaults() {
	d := DefaultPromptsConfig()

	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&c.Classifier.Stage1SystemPrompt, d.Classifier.Stage1SystemPrompt)
	fill(&c.Classifier.Stage2SystemPrompt, d.Classifier.Stage2SystemPrompt)
	fill(&c.Classifier.HistoryMarker, d.Classifier.HistoryMarker)
	fill(&c.Classifier.CurrentMarker, d.Classifier.CurrentMarker)
	fill(&c.Classifier.RosterHeader, d.Classifier.RosterHeader)
	fill(&c.Classifier.SignalsHeader, d.Classifier.SignalsHeader)
	fill(&c.Summary.SystemPrompt, d.Summary.SystemPrompt)

	if c.History.MaxTurns <= 0 {
		c.History.MaxTurns = d.History.MaxTurns
	}
	if c.History.Fetch <= 0 {
		c.History.Fetch = d.History.Fetch
	}
}
