package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
)

// IntentAPI is the subset of the intent service exposed as tools
type IntentAPI interface {
	Classify(ctx context.Context, req usecase.ClassifyRequest) domain.ClassificationResult
	ClassifyProgressively(ctx context.Context, req usecase.ClassifyRequest) domain.ClassificationResult
	UpdateConversation(chatID, userID string, isBotReply, mentioned bool)
	IsConversationActive(chatID string) bool
	ConversationState(chatID string) domain.ConversationState
	ShouldSuggestSummary(chatID string, messageCount int) bool
	MessageCount(ctx context.Context, chatID string) int
	BuildSummary(ctx context.Context, chatID string, force bool) (string, error)
}

// IntentMCPServer provides MCP tools for message classification
type IntentMCPServer struct {
	server *mcp.Server
	intent IntentAPI
}

// NewServer creates a new intent MCP server
func NewServer(intent IntentAPI, version string) *IntentMCPServer {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "chat-intent",
		Version: version,
	}, nil)

	s := &IntentMCPServer{server: server, intent: intent}
	s.registerTools()
	return s
}

// registerTools registers all intent-related MCP tools
func (s *IntentMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "classify_message",
		Description: "Decide whether a chat message is a question and whether the assistant should answer, offer help or stay silent.",
	}, s.handleClassify)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "classify_message_fast",
		Description: "Like classify_message, but settles obvious non-questions with local checks before consulting the model.",
	}, s.handleClassifyFast)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "conversation_state",
		Description: "Report whether the assistant is currently engaged in a chat, with message and mention counts.",
	}, s.handleConversationState)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "record_activity",
		Description: "Record a user message or an assistant reply in a chat so engagement tracking stays current.",
	}, s.handleRecordActivity)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat_summary",
		Description: "Summarize a chat's recent discussion. Reuses a fresh summary unless force is set.",
	}, s.handleSummary)
}

// HistoryTurn is one prior message supplied by the caller
type HistoryTurn struct {
	Sender    string `json:"sender,omitempty" jsonschema:"Display name of the sender"`
	Content   string `json:"content" jsonschema:"Message text"`
	Assistant bool   `json:"assistant,omitempty" jsonschema:"True when the assistant wrote this turn"`
}

// ClassifyInput is the input for the classify tools
type ClassifyInput struct {
	Text    string        `json:"text" jsonschema:"The logical message to classify"`
	ChatID  string        `json:"chat_id" jsonschema:"Chat the message belongs to"`
	UserID  string        `json:"user_id,omitempty" jsonschema:"Author of the message"`
	History []HistoryTurn `json:"history,omitempty" jsonschema:"Prior turns, oldest first"`
}

// ClassifyOutput mirrors the classification result
type ClassifyOutput struct {
	IsQuestion     bool     `json:"is_question"`
	Confidence     float64  `json:"confidence"`
	Targets        []string `json:"targets"`
	Sensitivity    string   `json:"sensitivity"`
	KnowledgeScope string   `json:"knowledge_scope"`
	Action         string   `json:"action"`
	NeedsRetrieval bool     `json:"needs_retrieval"`
	Rationale      string   `json:"rationale,omitempty"`
	Source         string   `json:"source"`
}

func (s *IntentMCPServer) handleClassify(ctx context.Context, req *mcp.CallToolRequest, input ClassifyInput) (*mcp.CallToolResult, ClassifyOutput, error) {
	creq, err := toClassifyRequest(input)
	if err != nil {
		return nil, ClassifyOutput{}, err
	}
	return nil, toClassifyOutput(s.intent.Classify(ctx, creq)), nil
}

func (s *IntentMCPServer) handleClassifyFast(ctx context.Context, req *mcp.CallToolRequest, input ClassifyInput) (*mcp.CallToolResult, ClassifyOutput, error) {
	creq, err := toClassifyRequest(input)
	if err != nil {
		return nil, ClassifyOutput{}, err
	}
	return nil, toClassifyOutput(s.intent.ClassifyProgressively(ctx, creq)), nil
}

func toClassifyRequest(input ClassifyInput) (usecase.ClassifyRequest, error) {
	if strings.TrimSpace(input.Text) == "" {
		return usecase.ClassifyRequest{}, fmt.Errorf("text is required")
	}
	if strings.TrimSpace(input.ChatID) == "" {
		return usecase.ClassifyRequest{}, fmt.Errorf("chat_id is required")
	}
	req := usecase.ClassifyRequest{
		Text:   input.Text,
		ChatID: input.ChatID,
		UserID: input.UserID,
	}
	for i, turn := range input.History {
		role := domain.RoleUser
		if turn.Assistant {
			role = domain.RoleAssistant
		}
		req.History = append(req.History, domain.Message{
			ID:         fmt.Sprintf("history-%d", i),
			ChatID:     input.ChatID,
			Role:       role,
			SenderName: turn.Sender,
			Content:    turn.Content,
		})
	}
	return req, nil
}

func toClassifyOutput(r domain.ClassificationResult) ClassifyOutput {
	targets := r.Targets
	if targets == nil {
		targets = []string{}
	}
	return ClassifyOutput{
		IsQuestion:     r.IsQuestion,
		Confidence:     r.Confidence,
		Targets:        targets,
		Sensitivity:    string(r.Sensitivity),
		KnowledgeScope: string(r.KnowledgeScope),
		Action:         string(r.Action),
		NeedsRetrieval: r.NeedsRetrieval,
		Rationale:      r.Rationale,
		Source:         string(r.Source),
	}
}

// ChatInput names a chat
type ChatInput struct {
	ChatID string `json:"chat_id" jsonschema:"The chat to inspect"`
}

// ConversationStateOutput reports engagement for a chat
type ConversationStateOutput struct {
	Active             bool     `json:"active"`
	MessageCount       int      `json:"message_count"`
	MentionCount       int      `json:"mention_count"`
	RecentParticipants []string `json:"recent_participants"`
	SuggestSummary     bool     `json:"suggest_summary"`
}

func (s *IntentMCPServer) handleConversationState(ctx context.Context, req *mcp.CallToolRequest, input ChatInput) (*mcp.CallToolResult, ConversationStateOutput, error) {
	if input.ChatID == "" {
		return nil, ConversationStateOutput{}, fmt.Errorf("chat_id is required")
	}
	state := s.intent.ConversationState(input.ChatID)
	participants := state.RecentParticipants
	if participants == nil {
		participants = []string{}
	}
	return nil, ConversationStateOutput{
		Active:             s.intent.IsConversationActive(input.ChatID),
		MessageCount:       state.MessageCount,
		MentionCount:       state.MentionCount,
		RecentParticipants: participants,
		SuggestSummary:     s.intent.ShouldSuggestSummary(input.ChatID, s.intent.MessageCount(ctx, input.ChatID)),
	}, nil
}

// RecordActivityInput describes one message or reply
type RecordActivityInput struct {
	ChatID     string `json:"chat_id" jsonschema:"The chat the activity happened in"`
	UserID     string `json:"user_id,omitempty" jsonschema:"Author of a user message"`
	IsBotReply bool   `json:"is_bot_reply,omitempty" jsonschema:"True when the assistant replied"`
	Mentioned  bool   `json:"mentioned,omitempty" jsonschema:"True when the message mentioned the assistant"`
}

// RecordActivityOutput reports the engagement after the update
type RecordActivityOutput struct {
	Active bool `json:"active"`
}

func (s *IntentMCPServer) handleRecordActivity(ctx context.Context, req *mcp.CallToolRequest, input RecordActivityInput) (*mcp.CallToolResult, RecordActivityOutput, error) {
	if input.ChatID == "" {
		return nil, RecordActivityOutput{}, fmt.Errorf("chat_id is required")
	}
	s.intent.UpdateConversation(input.ChatID, input.UserID, input.IsBotReply, input.Mentioned)
	return nil, RecordActivityOutput{Active: s.intent.IsConversationActive(input.ChatID)}, nil
}

// SummaryInput requests a chat summary
type SummaryInput struct {
	ChatID string `json:"chat_id" jsonschema:"The chat to summarize"`
	Force  bool   `json:"force,omitempty" jsonschema:"Rebuild even when a fresh summary exists"`
}

// SummaryOutput contains the summary text
type SummaryOutput struct {
	Summary string `json:"summary"`
}

func (s *IntentMCPServer) handleSummary(ctx context.Context, req *mcp.CallToolRequest, input SummaryInput) (*mcp.CallToolResult, SummaryOutput, error) {
	if input.ChatID == "" {
		return nil, SummaryOutput{}, fmt.Errorf("chat_id is required")
	}
	text, err := s.intent.BuildSummary(ctx, input.ChatID, input.Force)
	if err != nil {
		log.Warn().Str("component", "mcp").Str("chat_id", input.ChatID).Err(err).Msg("summary failed")
		return nil, SummaryOutput{}, err
	}
	return nil, SummaryOutput{Summary: text}, nil
}

// Run starts the MCP server with stdio transport
func (s *IntentMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GetServer returns the underlying MCP server
func (s *IntentMCPServer) GetServer() *mcp.Server {
	return s.server
}
