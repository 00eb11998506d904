package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog/log"
)

// Message represents a received Feishu message
type Message struct {
	ChatID      string
	MsgID       string
	MsgType     string // text, post
	ChatType    string // p2p (private), group
	Content     string // Text content with mention placeholders resolved
	Sender      *Sender
	Mentions    []string // Mentioned open IDs (including bot)
	MentionsBot bool
	CreateTime  int64 // Milliseconds since epoch
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// IsBot reports whether the sender is an application
func (s *Sender) IsBot() bool {
	return s != nil && (s.SenderType == "app" || s.SenderType == "bot")
}

// ChatMember represents a member in a chat
type ChatMember struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

// HistoryMessage represents a message from chat history
type HistoryMessage struct {
	MsgID      string `json:"message_id"`
	MsgType    string `json:"msg_type"`
	Content    string `json:"content"`
	CreateTime string `json:"create_time"`
	Sender     *Sender
}

// BotInfo identifies the application account the client runs as
type BotInfo struct {
	OpenID  string `json:"open_id"`
	AppName string `json:"app_name"`
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler

	mu  sync.RWMutex
	bot BotInfo
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Bot returns the bot identity learned at startup
func (c *Client) Bot() BotInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bot
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	if _, err := c.FetchBotInfo(ctx); err != nil {
		log.Warn().Str("component", "feishu").Err(err).Msg("failed to fetch bot info, mention detection disabled")
	}

	// The SDK acks after the handler returns, so hand off immediately
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	log.Info().Str("component", "feishu").Msg("starting websocket connection")
	return c.wsCli.Start(ctx)
}

// FetchBotInfo loads the bot's own open_id and name
func (c *Client) FetchBotInfo(ctx context.Context) (BotInfo, error) {
	resp, err := c.larkCli.Get(ctx, "/open-apis/bot/v3/info", nil, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return BotInfo{}, fmt.Errorf("get bot info: %w", err)
	}

	var result struct {
		Code int     `json:"code"`
		Msg  string  `json:"msg"`
		Bot  BotInfo `json:"bot"`
	}
	if err := json.Unmarshal(resp.RawBody, &result); err != nil {
		return BotInfo{}, fmt.Errorf("decode bot info: %w", err)
	}
	if result.Code != 0 {
		return BotInfo{}, fmt.Errorf("bot info API error: %s", result.Msg)
	}

	c.mu.Lock()
	c.bot = result.Bot
	c.mu.Unlock()

	log.Info().Str("component", "feishu").Str("open_id", result.Bot.OpenID).Str("name", result.Bot.AppName).Msg("bot identity loaded")
	return result.Bot, nil
}

func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if msg := c.convertEvent(event); msg != nil && c.onMessage != nil {
		c.onMessage(msg)
	}
}

// convertEvent turns a receive event into a Message, or nil for
// events that carry no usable text
func (c *Client) convertEvent(event *larkim.P2MessageReceiveV1) *Message {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	rawMsg := event.Event.Message

	msg := &Message{
		ChatID:   deref(rawMsg.ChatId),
		MsgID:    deref(rawMsg.MessageId),
		MsgType:  deref(rawMsg.MessageType),
		ChatType: deref(rawMsg.ChatType),
	}
	if ts, err := strconv.ParseInt(deref(rawMsg.CreateTime), 10, 64); err == nil {
		msg.CreateTime = ts
	}

	if s := event.Event.Sender; s != nil {
		msg.Sender = &Sender{
			SenderType: deref(s.SenderType),
			TenantKey:  deref(s.TenantKey),
		}
		if s.SenderId != nil {
			msg.Sender.SenderID = deref(s.SenderId.OpenId)
		}
	}

	botOpenID := c.Bot().OpenID
	mentionMap := make(map[string]string)
	for _, mention := range rawMsg.Mentions {
		if mention == nil {
			continue
		}
		if mention.Id != nil && mention.Id.OpenId != nil {
			openID := *mention.Id.OpenId
			msg.Mentions = append(msg.Mentions, openID)
			if botOpenID != "" && openID == botOpenID {
				msg.MentionsBot = true
			}
		}
		if mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = *mention.Name
		}
	}

	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(deref(rawMsg.Content), mentionMap)
	case "post":
		msg.Content = parsePostContent(deref(rawMsg.Content), mentionMap)
	default:
		log.Debug().Str("component", "feishu").Str("msg_type", msg.MsgType).Msg("unsupported message type")
		return nil
	}

	log.Debug().
		Str("component", "feishu").
		Str("chat_id", msg.ChatID).
		Str("chat_type", msg.ChatType).
		Str("msg_id", msg.MsgID).
		Bool("mentions_bot", msg.MentionsBot).
		Msg("message received")
	return msg
}

// parseTextContent extracts text from a text message, replacing
// mention placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent flattens a rich text message to plain text
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			UserID string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var sb strings.Builder
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				sb.WriteString(elem.Text)
			case "at":
				if elem.UserID == "" {
					continue
				}
				if name, ok := mentionMap[elem.UserID]; ok {
					sb.WriteString("@" + name)
				} else {
					sb.WriteString("@" + elem.UserID)
				}
			}
		}
		if sb.Len() > 0 {
			lines = append(lines, sb.String())
		}
	}
	return replaceMentions(strings.Join(lines, "\n"), mentionMap)
}

func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// GetChatHistory retrieves up to pageSize (max 50) recent messages,
// oldest first
func (c *Client) GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*HistoryMessage, error) {
	if pageSize > 50 {
		pageSize = 50
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	// Descending, otherwise the API starts from the creation of the chat
	req := larkim.NewListMessageReqBuilder().
		ContainerIdType("chat").
		ContainerId(chatID).
		SortType("ByCreateTimeDesc").
		PageSize(pageSize).
		Build()

	resp, err := c.larkCli.Im.Message.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat history failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat history error: %s", resp.Msg)
	}

	messages := make([]*HistoryMessage, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		if item == nil {
			continue
		}
		msg := &HistoryMessage{
			MsgID:      deref(item.MessageId),
			MsgType:    deref(item.MsgType),
			CreateTime: deref(item.CreateTime),
		}

		mentionMap := make(map[string]string)
		for _, mention := range item.Mentions {
			if mention != nil && mention.Key != nil && mention.Name != nil {
				mentionMap[*mention.Key] = *mention.Name
			}
		}

		if item.Body != nil && item.Body.Content != nil {
			raw := *item.Body.Content
			switch msg.MsgType {
			case "text":
				msg.Content = parseTextContent(raw, mentionMap)
			case "post":
				msg.Content = parsePostContent(raw, mentionMap)
			default:
				msg.Content = "[" + msg.MsgType + "]"
			}
		}

		if item.Sender != nil {
			msg.Sender = &Sender{
				SenderID:   deref(item.Sender.Id),
				SenderType: deref(item.Sender.SenderType),
				TenantKey:  deref(item.Sender.TenantKey),
			}
		}
		messages = append(messages, msg)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	log.Debug().Str("component", "feishu").Str("chat_id", chatID).Int("count", len(messages)).Msg("history retrieved")
	return messages, nil
}

// GetChatMembers retrieves all human members of a chat
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]*ChatMember, error) {
	var members []*ChatMember
	var pageToken string

	for {
		builder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			if item == nil {
				continue
			}
			members = append(members, &ChatMember{
				MemberID: deref(item.MemberId),
				Name:     deref(item.Name),
			})
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	log.Debug().Str("component", "feishu").Str("chat_id", chatID).Int("count", len(members)).Msg("members retrieved")
	return members, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
