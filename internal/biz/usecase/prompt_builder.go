package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
)

// PromptConfig contains classifier prompt configuration
type PromptConfig struct {
	Stage1SystemPrompt string // Must demand a bare YES or NO
	Stage2SystemPrompt string // Supports {{bot_name}} and {{schema}}
	HistoryMarker      string
	CurrentMarker      string
	RosterHeader       string
	SignalsHeader      string
	BotName            string
	MaxHistoryTurns    int
}

// DefaultPromptConfig returns the default prompt configuration
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		Stage1SystemPrompt: `You decide whether a group chat message is a question or a request for help.
Reply only "YES" or "NO", no explanations.`,
		Stage2SystemPrompt: `You classify group chat messages for the assistant "{{bot_name}}".
Decide whether the current message is a question, who it is directed at, how sensitive it is,
what kind of knowledge answering it needs, and how the assistant should act:
- answer: the assistant is clearly being asked and should reply
- offer: the assistant could help and may offer to
- silent: the assistant should stay out of it
- continue: the message continues an exchange the assistant is already part of

Respond with a single JSON object matching this schema and nothing else:
{{schema}}`,
		HistoryMarker:   "## Recent messages",
		CurrentMarker:   "## Current message",
		RosterHeader:    "## Participants",
		SignalsHeader:   "## Conversation state",
		BotName:         "assistant",
		MaxHistoryTurns: 5,
	}
}

var (
	schemaOnce sync.Once
	schemaText string
)

// ClassificationSchema returns the JSON schema of ClassificationResult
func ClassificationSchema() string {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
		}
		schema := reflector.Reflect(&domain.ClassificationResult{})
		schema.Version = ""
		b, err := json.Marshal(schema)
		if err != nil {
			schemaText = `{"type":"object"}`
			return
		}
		schemaText = string(b)
	})
	return schemaText
}

// PromptBuilder renders classifier prompts
type PromptBuilder struct {
	config PromptConfig
}

// NewPromptBuilder creates a new prompt builder, filling unset fields from DefaultPromptConfig
func NewPromptBuilder(config PromptConfig) *PromptBuilder {
	d := DefaultPromptConfig()
	if config.Stage1SystemPrompt == "" {
		config.Stage1SystemPrompt = d.Stage1SystemPrompt
	}
	if config.Stage2SystemPrompt == "" {
		config.Stage2SystemPrompt = d.Stage2SystemPrompt
	}
	if config.HistoryMarker == "" {
		config.HistoryMarker = d.HistoryMarker
	}
	if config.CurrentMarker == "" {
		config.CurrentMarker = d.CurrentMarker
	}
	if config.RosterHeader == "" {
		config.RosterHeader = d.RosterHeader
	}
	if config.SignalsHeader == "" {
		config.SignalsHeader = d.SignalsHeader
	}
	if config.BotName == "" {
		config.BotName = d.BotName
	}
	if config.MaxHistoryTurns <= 0 {
		config.MaxHistoryTurns = d.MaxHistoryTurns
	}
	return &PromptBuilder{config: config}
}

// Stage1 returns the system and user prompts for the yes/no check
func (b *PromptBuilder) Stage1(text string) (string, string) {
	return b.config.Stage1SystemPrompt, text
}

// Stage2 returns the system and user prompts for full classification
func (b *PromptBuilder) Stage2(
	text string,
	history []domain.Message,
	roster map[string]domain.Participant,
	signals domain.ConversationSignals,
) (string, string) {
	system := strings.ReplaceAll(b.config.Stage2SystemPrompt, "{{bot_name}}", b.config.BotName)
	system = strings.ReplaceAll(system, "{{schema}}", ClassificationSchema())

	var parts []string
	if turns := domain.LastTurns(history, b.config.MaxHistoryTurns); len(turns) > 0 {
		parts = append(parts, b.formatHistory(turns))
	}
	if len(roster) > 0 {
		parts = append(parts, b.formatRoster(roster))
	}
	parts = append(parts, b.formatSignals(signals))
	parts = append(parts, fmt.Sprintf("%s\n%s", b.config.CurrentMarker, text))

	return system, strings.Join(parts, "\n\n")
}

func (b *PromptBuilder) formatHistory(messages []domain.Message) string {
	var sb strings.Builder
	sb.WriteString(b.config.HistoryMarker)
	sb.WriteString("\n")
	for _, m := range messages {
		name := m.Speaker()
		if m.Role == domain.RoleAssistant {
			name = b.config.BotName + " (assistant)"
		}
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", name, m.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *PromptBuilder) formatRoster(roster map[string]domain.Participant) string {
	ids := make([]string, 0, len(roster))
	for id := range roster {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(b.config.RosterHeader)
	for _, id := range ids {
		p := roster[id]
		if p.UserID == "" {
			p.UserID = id
		}
		sb.WriteString("\n- ")
		sb.WriteString(p.FormatDisplay())
	}
	return sb.String()
}

func (b *PromptBuilder) formatSignals(s domain.ConversationSignals) string {
	since := "never"
	if s.SecondsSinceBotReply >= 0 {
		since = fmt.Sprintf("%ds ago", s.SecondsSinceBotReply)
	}
	return fmt.Sprintf("%s\n- assistant engaged: %t\n- last assistant reply: %s\n- messages seen: %d\n- assistant mentions: %d",
		b.config.SignalsHeader, s.Active, since, s.MessageCount, s.MentionCount)
}
