package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/titanous/json5"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
)

// Repair strategy names, in ladder order
const (
	RepairDirect     = "direct"
	RepairExtract    = "extract"
	RepairBalanced   = "balanced"
	RepairSyntax     = "syntax"
	RepairEnums      = "enums"
	RepairJSON5      = "json5"
	RepairJSONRepair = "jsonrepair"
)

// repairStrategy produces candidate JSON texts from raw model output
type repairStrategy struct {
	name       string
	candidates func(raw string) []string
	lenient    bool // decode with json5 instead of encoding/json
}

var repairLadder = []repairStrategy{
	{name: RepairDirect, candidates: func(raw string) []string { return []string{strings.TrimSpace(raw)} }},
	{name: RepairExtract, candidates: func(raw string) []string { return nonEmpty(extractOuterObject(raw)) }},
	{name: RepairBalanced, candidates: balancedObjects},
	{name: RepairSyntax, candidates: syntaxCandidates},
	{name: RepairEnums, candidates: enumCandidates},
	{name: RepairJSON5, candidates: func(raw string) []string { return nonEmpty(extractOuterObject(raw)) }, lenient: true},
	{name: RepairJSONRepair, candidates: libraryRepair},
}

// ParseClassification decodes model output into a validated result,
// walking the repair ladder until a candidate validates. It returns the
// name of the strategy that succeeded.
func ParseClassification(raw string) (domain.ClassificationResult, string, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.ClassificationResult{}, "", ErrEmptyResponse
	}

	var lastErr error
	for _, strategy := range repairLadder {
		for _, candidate := range strategy.candidates(raw) {
			var fields map[string]interface{}
			var err error
			if strategy.lenient {
				err = json5.Unmarshal([]byte(candidate), &fields)
			} else {
				err = json.Unmarshal([]byte(candidate), &fields)
			}
			if err != nil {
				lastErr = err
				continue
			}
			result, err := validateClassification(fields)
			if err != nil {
				lastErr = err
				continue
			}
			if strategy.name != RepairDirect {
				jsonRepairsTotal.WithLabelValues(strategy.name).Inc()
			}
			return result, strategy.name, nil
		}
	}
	return domain.ClassificationResult{}, "", fmt.Errorf("%w: %w", ErrRepairFailed, lastErr)
}

// validateClassification checks presence and type of every required field
func validateClassification(fields map[string]interface{}) (domain.ClassificationResult, error) {
	var r domain.ClassificationResult

	isQuestion, ok := fields["isQuestion"].(bool)
	if !ok {
		return r, fieldError("isQuestion", "boolean")
	}
	confidence, ok := fields["confidence"].(float64)
	if !ok || math.IsNaN(confidence) {
		return r, fieldError("confidence", "number")
	}
	rawTargets, ok := fields["targets"].([]interface{})
	if !ok {
		return r, fieldError("targets", "array")
	}
	targets := make([]string, 0, len(rawTargets))
	for _, t := range rawTargets {
		s, ok := t.(string)
		if !ok {
			return r, fieldError("targets", "array of strings")
		}
		targets = append(targets, s)
	}
	sensitivity := domain.Sensitivity(enumValue(fields["sensitivity"]))
	if !sensitivity.Valid() {
		return r, fieldError("sensitivity", "low|medium|high")
	}
	scope := domain.KnowledgeScope(enumValue(fields["knowledgeScope"]))
	if !scope.Valid() {
		return r, fieldError("knowledgeScope", "general|specific|personal")
	}
	action := domain.Action(enumValue(fields["action"]))
	if !action.Valid() {
		return r, fieldError("action", "answer|offer|silent|continue")
	}
	needsRetrieval, ok := fields["needsRetrieval"].(bool)
	if !ok {
		return r, fieldError("needsRetrieval", "boolean")
	}
	rationale, _ := fields["rationale"].(string)

	return domain.ClassificationResult{
		IsQuestion:     isQuestion,
		Confidence:     math.Max(0, math.Min(1, confidence)),
		Targets:        targets,
		Sensitivity:    sensitivity,
		KnowledgeScope: scope,
		Action:         action,
		NeedsRetrieval: needsRetrieval,
		Rationale:      rationale,
		Source:         domain.SourceModel,
	}, nil
}

func fieldError(field, want string) error {
	return fmt.Errorf("%w: field %q must be %s", ErrInvalidClassification, field, want)
}

func enumValue(v interface{}) string {
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s))
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// extractOuterObject returns the text between the first '{' and the last '}'
func extractOuterObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// balancedObjects returns every brace-balanced substring, in order of start
// position, ignoring braces inside string literals
func balancedObjects(raw string) []string {
	var out []string
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		if end := matchBrace(raw, start); end > start {
			out = append(out, raw[start:end+1])
		}
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var (
	smartQuotes    = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	singleQuoted   = regexp.MustCompile(`([{\[,:]\s*)'([^'\n]*)'`)
	bareKey        = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	bareEnumValue  = regexp.MustCompile(`("(?:sensitivity|knowledgeScope|action)"\s*:\s*)([A-Za-z]+)`)
	targetsArray   = regexp.MustCompile(`("targets"\s*:\s*\[)([^\]]*)(\])`)
	bareTarget     = regexp.MustCompile(`^@?[A-Za-z_][\w-]*$`)
	booleanLiteral = regexp.MustCompile(`(:\s*)(True|TRUE|False|FALSE)\b`)
)

// syntaxCandidates applies increasingly invasive syntactic fixes
func syntaxCandidates(raw string) []string {
	base := extractOuterObject(raw)
	if base == "" {
		base = strings.TrimSpace(raw)
	}
	commas := trailingComma.ReplaceAllString(base, "$1")
	quotes := normalizeQuotes(commas)
	keys := bareKey.ReplaceAllString(quotes, `$1"$2"$3`)
	return dedupe(commas, quotes, keys)
}

func normalizeQuotes(s string) string {
	s = smartQuotes.Replace(s)
	return singleQuoted.ReplaceAllString(s, `$1"$2"`)
}

// enumCandidates quotes bare enum tokens and lower-cases boolean literals
// on top of the syntactic fixes
func enumCandidates(raw string) []string {
	syntax := syntaxCandidates(raw)
	if len(syntax) == 0 {
		return nil
	}
	s := syntax[len(syntax)-1]
	s = booleanLiteral.ReplaceAllStringFunc(s, func(m string) string { return strings.ToLower(m) })
	s = bareEnumValue.ReplaceAllStringFunc(s, func(m string) string {
		parts := bareEnumValue.FindStringSubmatch(m)
		if isJSONLiteral(parts[2]) {
			return m
		}
		return parts[1] + `"` + parts[2] + `"`
	})
	s = targetsArray.ReplaceAllStringFunc(s, func(m string) string {
		parts := targetsArray.FindStringSubmatch(m)
		return parts[1] + quoteBareItems(parts[2]) + parts[3]
	})
	return []string{s}
}

func isJSONLiteral(s string) bool {
	return s == "true" || s == "false" || s == "null"
}

func quoteBareItems(list string) string {
	if strings.TrimSpace(list) == "" {
		return list
	}
	items := strings.Split(list, ",")
	for i, item := range items {
		// Numbers and literals stay as they are so validation rejects them
		trimmed := strings.TrimSpace(item)
		if !bareTarget.MatchString(trimmed) || isJSONLiteral(trimmed) {
			continue
		}
		items[i] = `"` + trimmed + `"`
	}
	return strings.Join(items, ",")
}

// libraryRepair hands the raw text to jsonrepair as the last resort
func libraryRepair(raw string) []string {
	var out []string
	for _, candidate := range dedupe(extractOuterObject(raw), strings.TrimSpace(raw)) {
		if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
			out = append(out, repaired)
		}
	}
	return out
}

func dedupe(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
