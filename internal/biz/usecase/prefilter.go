package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
)

// PrefilterConfig contains pre-filter configuration
type PrefilterConfig struct {
	MinRunes         int      // Messages shorter than this are skipped
	URLShare         float64  // Skip when URLs make up more than this share of the text
	MinCodeBlocks    int      // Skip when the message carries at least this many fenced blocks
	AssistantAliases []string // Names/IDs the assistant answers to in @mentions
}

// DefaultPrefilterConfig returns default pre-filter configuration
func DefaultPrefilterConfig() PrefilterConfig {
	return PrefilterConfig{
		MinRunes:      5,
		URLShare:      0.7,
		MinCodeBlocks: 2,
	}
}

// Skip reasons
const (
	SkipTooShort       = "too_short"
	SkipAcknowledgment = "acknowledgment"
	SkipCommand        = "command"
	SkipLinks          = "links"
	SkipEmoji          = "emoji"
	SkipCode           = "code"
	SkipMentionsOther  = "mentions_other"
)

// acknowledgments is the closed set of replies that never need an answer
var acknowledgments = map[string]struct{}{
	"ok": {}, "okay": {}, "k": {}, "kk": {}, "okk": {},
	"thanks": {}, "thank you": {}, "thanks!": {}, "thx": {}, "ty": {}, "tysm": {},
	"lol": {}, "lmao": {}, "haha": {}, "hahaha": {}, "hehe": {},
	"yes": {}, "no": {}, "yep": {}, "nope": {}, "yeah": {}, "yup": {}, "nah": {},
	"sure": {}, "cool": {}, "nice": {}, "great": {}, "np": {}, "got it": {},
	"sounds good": {}, "alright": {}, "right": {}, "gg": {},
	"好": {}, "好的": {}, "嗯": {}, "谢谢": {}, "收到": {}, "哈哈": {}, "哈哈哈": {},
	"👍": {}, "🙏": {}, "👌": {}, "😂": {}, "❤️": {},
}

var (
	urlPattern     = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_.\-]+)`)
)

// Prefilter decides, without any model call, whether a message is
// obviously not worth classifying
type Prefilter struct {
	config  PrefilterConfig
	aliases map[string]struct{}
}

// NewPrefilter creates a new pre-filter
func NewPrefilter(config PrefilterConfig) *Prefilter {
	defaults := DefaultPrefilterConfig()
	if config.MinRunes <= 0 {
		config.MinRunes = defaults.MinRunes
	}
	if config.URLShare <= 0 {
		config.URLShare = defaults.URLShare
	}
	if config.MinCodeBlocks <= 0 {
		config.MinCodeBlocks = defaults.MinCodeBlocks
	}
	aliases := make(map[string]struct{}, len(config.AssistantAliases))
	for _, a := range config.AssistantAliases {
		if a = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), "@")); a != "" {
			aliases[a] = struct{}{}
		}
	}
	return &Prefilter{config: config, aliases: aliases}
}

// Check returns the reason text should be skipped, or "" if it should be classified.
// Bots in roster count as the assistant for the mention rule.
func (p *Prefilter) Check(text string, roster map[string]domain.Participant) string {
	trimmed := strings.TrimSpace(text)

	if utf8.RuneCountInString(trimmed) < p.config.MinRunes {
		return SkipTooShort
	}
	if isAcknowledgment(trimmed) {
		return SkipAcknowledgment
	}
	if strings.HasPrefix(trimmed, "/") {
		return SkipCommand
	}
	if urlShare(trimmed) > p.config.URLShare {
		return SkipLinks
	}
	if isEmojiOnly(trimmed) {
		return SkipEmoji
	}
	if strings.Count(trimmed, "```")/2 >= p.config.MinCodeBlocks {
		return SkipCode
	}
	if p.mentionsOnlyOthers(trimmed, roster) {
		return SkipMentionsOther
	}
	return ""
}

// SkipResult is the fixed low-confidence non-question returned for pre-filtered messages
func SkipResult(reason string) domain.ClassificationResult {
	return domain.ClassificationResult{
		IsQuestion:     false,
		Confidence:     0.1,
		Targets:        []string{},
		Sensitivity:    domain.SensitivityLow,
		KnowledgeScope: domain.ScopeGeneral,
		Action:         domain.ActionSilent,
		NeedsRetrieval: false,
		Rationale:      "prefilter: " + reason,
		Source:         domain.SourcePrefilter,
	}
}

func isAcknowledgment(text string) bool {
	normalized := strings.ToLower(strings.TrimRight(text, " !.,~。！"))
	_, ok := acknowledgments[normalized]
	return ok
}

func urlShare(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	urlRunes := 0
	for _, u := range urlPattern.FindAllString(text, -1) {
		urlRunes += utf8.RuneCountInString(u)
	}
	return float64(urlRunes) / float64(total)
}

// isEmojiOnly reports whether every non-space grapheme cluster is an emoji
func isEmojiOnly(text string) bool {
	sawEmoji := false
	state := -1
	rest := text
	for len(rest) > 0 {
		var cluster string
		var width int
		cluster, rest, width, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if strings.TrimSpace(cluster) == "" {
			continue
		}
		if !isEmojiCluster(cluster, width) {
			return false
		}
		sawEmoji = true
	}
	return sawEmoji
}

// isEmojiCluster reports whether a grapheme cluster renders as an emoji.
// Text-style symbols such as © or a bare ☺ do not count.
func isEmojiCluster(cluster string, width int) bool {
	r, _ := utf8.DecodeRuneInString(cluster)
	switch {
	case strings.ContainsRune(cluster, 0x20E3):
		return r == '#' || r == '*' || unicode.IsDigit(r)
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case !unicode.Is(unicode.So, r):
		return false
	}
	return width >= 2 || strings.ContainsRune(cluster, 0xFE0F)
}

// mentionsOnlyOthers reports whether text @mentions someone and none of
// the mentions refers to the assistant
func (p *Prefilter) mentionsOnlyOthers(text string, roster map[string]domain.Participant) bool {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return false
	}

	known := len(p.aliases) > 0
	isAssistant := func(name string) bool {
		if _, ok := p.aliases[name]; ok {
			return true
		}
		for id, part := range roster {
			if !part.IsBot {
				continue
			}
			known = true
			if strings.EqualFold(id, name) || strings.EqualFold(part.DisplayName, name) {
				return true
			}
		}
		return false
	}

	for _, m := range matches {
		if isAssistant(strings.ToLower(m[1])) {
			return false
		}
	}
	// Without any notion of who the assistant is, a mention tells us nothing
	return known
}
