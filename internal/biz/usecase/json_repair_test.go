package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
)

const validClassification = `{"isQuestion": true, "confidence": 0.82, "targets": ["assistant"], "sensitivity": "low", "knowledgeScope": "general", "action": "answer", "needsRetrieval": false, "rationale": "direct question"}`

func TestParseClassification_Ladder(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		strategy string
	}{
		{"valid", validClassification, RepairDirect},
		{"prose and fences", "Sure, here it is:\n```json\n" + validClassification + "\n```\nHope that helps.", RepairExtract},
		{"multiple objects", `{"draft": 1} and then ` + validClassification, RepairBalanced},
		{"trailing comma", `{"isQuestion": true, "confidence": 0.82, "targets": ["assistant",], "sensitivity": "low", "knowledgeScope": "general", "action": "answer", "needsRetrieval": false,}`, RepairSyntax},
		{"single quotes and bare keys", `{isQuestion: true, confidence: 0.82, targets: ['assistant'], sensitivity: 'low', knowledgeScope: 'general', action: 'answer', needsRetrieval: false}`, RepairSyntax},
		{"bare enums and python booleans", `{"isQuestion": True, "confidence": 0.82, "targets": [assistant], "sensitivity": low, "knowledgeScope": general, "action": answer, "needsRetrieval": False}`, RepairEnums},
		{"comments", "{\n// model note\n\"isQuestion\": true, \"confidence\": 0.82, \"targets\": [\"assistant\"], \"sensitivity\": \"low\", \"knowledgeScope\": \"general\", \"action\": \"answer\", \"needsRetrieval\": false}", RepairJSON5},
		{"truncated", `{"isQuestion": true, "confidence": 0.82, "targets": ["assistant"], "sensitivity": "low", "knowledgeScope": "general", "action": "answer", "needsRetrieval": false`, RepairJSONRepair},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result, strategy, err := ParseClassification(c.raw)
			require.NoError(t, err)
			assert.Equal(t, c.strategy, strategy)
			assert.True(t, result.IsQuestion)
			assert.InDelta(t, 0.82, result.Confidence, 1e-9)
			assert.Equal(t, []string{"assistant"}, result.Targets)
			assert.Equal(t, domain.SensitivityLow, result.Sensitivity)
			assert.Equal(t, domain.ScopeGeneral, result.KnowledgeScope)
			assert.Equal(t, domain.ActionAnswer, result.Action)
			assert.False(t, result.NeedsRetrieval)
			assert.Equal(t, domain.SourceModel, result.Source)
		})
	}
}

func TestParseClassification_NormalisesValues(t *testing.T) {
	raw := `{"isQuestion": false, "confidence": 1.7, "targets": [], "sensitivity": "HIGH", "knowledgeScope": "Personal", "action": "Offer", "needsRetrieval": true}`

	result, _, err := ParseClassification(raw)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Empty(t, result.Targets)
	assert.Equal(t, domain.SensitivityHigh, result.Sensitivity)
	assert.Equal(t, domain.ScopePersonal, result.KnowledgeScope)
	assert.Equal(t, domain.ActionOffer, result.Action)
	assert.Empty(t, result.Rationale)
}

func TestParseClassification_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"missing field":     `{"isQuestion": true, "confidence": 0.5, "targets": [], "sensitivity": "low", "knowledgeScope": "general", "action": "answer"}`,
		"wrong type":        `{"isQuestion": "yes", "confidence": 0.5, "targets": [], "sensitivity": "low", "knowledgeScope": "general", "action": "answer", "needsRetrieval": false}`,
		"unknown enum":      `{"isQuestion": true, "confidence": 0.5, "targets": [], "sensitivity": "low", "knowledgeScope": "general", "action": "shout", "needsRetrieval": false}`,
		"non-string target": `{"isQuestion": true, "confidence": 0.5, "targets": [1], "sensitivity": "low", "knowledgeScope": "general", "action": "answer", "needsRetrieval": false}`,
		"literal target":    `{"isQuestion": true, "confidence": 0.5, "targets": [alice, null], "sensitivity": "low", "knowledgeScope": "general", "action": "answer", "needsRetrieval": false}`,
		"bare non-string":   `{isQuestion: true, confidence: 0.5, targets: [alice, 2], sensitivity: low, knowledgeScope: general, action: answer, needsRetrieval: false}`,
		"not json":          `I think this is a question.`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseClassification(raw)
			assert.ErrorIs(t, err, ErrRepairFailed)
		})
	}
}

func TestParseClassification_PartialObjectIsRepairedButRejected(t *testing.T) {
	raw := `{isQuestion:true, confidence:0.9, sensitivity:low}`

	// The fixups produce well-formed JSON with the values intact
	candidates := enumCandidates(raw)
	require.NotEmpty(t, candidates)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(candidates[0]), &fields))
	assert.Equal(t, true, fields["isQuestion"])
	assert.Equal(t, 0.9, fields["confidence"])
	assert.Equal(t, "low", fields["sensitivity"])

	// Missing fields still fail validation, leaving the caller to retry
	_, _, err := ParseClassification(raw)
	assert.ErrorIs(t, err, ErrRepairFailed)
	assert.ErrorIs(t, err, ErrInvalidClassification)
}

func TestQuoteBareItems(t *testing.T) {
	assert.Equal(t, `"alice","@bob","dev-ops"`, quoteBareItems(`alice, @bob,dev-ops`))
	assert.Equal(t, `1, true, null, "x"`, quoteBareItems(`1, true, null, "x"`))
	assert.Equal(t, ` `, quoteBareItems(` `))
}

func TestParseClassification_Empty(t *testing.T) {
	_, _, err := ParseClassification("   ")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestBalancedObjects_IgnoresBracesInStrings(t *testing.T) {
	got := balancedObjects(`noise {"a": "}{"} tail {"b": {"c": 1}}`)
	assert.Equal(t, []string{`{"a": "}{"}`, `{"b": {"c": 1}}`, `{"c": 1}`}, got)
}
