package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
)

// maxInterrogativeRunes bounds the length at which an interrogative word
// alone marks a likely question
const maxInterrogativeRunes = 100

// interrogativeWords are matched as whole words, case-insensitively
var interrogativeWords = []string{
	"what", "who", "whom", "whose", "when", "where", "why", "how", "which",
	"can you", "could you", "would you", "will you", "do you", "does anyone",
	"anyone know", "any idea", "is there", "are there", "should i", "should we",
	"is it", "how to", "wondering",
}

// interrogativeMarkers are matched as substrings (scripts without word breaks)
var interrogativeMarkers = []string{
	"吗", "什么", "怎么", "为什么", "哪", "谁", "如何", "是否", "多少", "能不能", "可以吗",
}

var interrogativePattern = compileWordList(interrogativeWords)

func compileWordList(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// LooksLikeQuestion is the lexical Stage-1 check: a trailing question mark,
// or an interrogative word in a short message
func LooksLikeQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "？") {
		return true
	}
	if utf8.RuneCountInString(trimmed) >= maxInterrogativeRunes {
		return false
	}
	if interrogativePattern.MatchString(trimmed) {
		return true
	}
	for _, m := range interrogativeMarkers {
		if strings.Contains(trimmed, m) {
			return true
		}
	}
	return false
}

// NotQuestionResult is the fixed high-confidence result for messages Stage 1 rules out
func NotQuestionResult(source domain.Source) domain.ClassificationResult {
	return domain.ClassificationResult{
		IsQuestion:     false,
		Confidence:     0.9,
		Targets:        []string{},
		Sensitivity:    domain.SensitivityLow,
		KnowledgeScope: domain.ScopeGeneral,
		Action:         domain.ActionSilent,
		NeedsRetrieval: false,
		Rationale:      "not a question",
		Source:         source,
	}
}

// FallbackResult is returned when Stage 2 cannot produce a valid result
func FallbackResult(active bool) domain.ClassificationResult {
	action := domain.ActionSilent
	if active {
		action = domain.ActionContinue
	}
	return domain.ClassificationResult{
		IsQuestion:     true,
		Confidence:     0.5,
		Targets:        []string{},
		Sensitivity:    domain.SensitivityLow,
		KnowledgeScope: domain.ScopeGeneral,
		Action:         action,
		NeedsRetrieval: false,
		Rationale:      "classification unavailable",
		Source:         domain.SourceFallback,
	}
}

// InvalidResult reports a contract violation inside a result instead of failing
func InvalidResult(reason string) domain.ClassificationResult {
	return domain.ClassificationResult{
		IsQuestion:     false,
		Confidence:     0,
		Targets:        []string{},
		Sensitivity:    domain.SensitivityLow,
		KnowledgeScope: domain.ScopeGeneral,
		Action:         domain.ActionSilent,
		Rationale:      "invalid request: " + reason,
		Source:         domain.SourceInvalid,
	}
}
