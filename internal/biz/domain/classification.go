package domain

// Sensitivity of the subject matter
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Valid reports whether s is a known sensitivity level
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

// KnowledgeScope describes what kind of knowledge an answer needs
type KnowledgeScope string

const (
	ScopeGeneral  KnowledgeScope = "general"
	ScopeSpecific KnowledgeScope = "specific"
	ScopePersonal KnowledgeScope = "personal"
)

// Valid reports whether k is a known scope
func (k KnowledgeScope) Valid() bool {
	switch k {
	case ScopeGeneral, ScopeSpecific, ScopePersonal:
		return true
	}
	return false
}

// Action is the recommended assistant behaviour
type Action string

const (
	ActionAnswer   Action = "answer"
	ActionOffer    Action = "offer"
	ActionSilent   Action = "silent"
	ActionContinue Action = "continue"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionAnswer, ActionOffer, ActionSilent, ActionContinue:
		return true
	}
	return false
}

// Source records which pipeline stage produced a result
type Source string

const (
	SourcePrefilter  Source = "prefilter"
	SourceHeuristic  Source = "heuristic"
	SourceStage1     Source = "stage1"
	SourceSimilarity Source = "similarity"
	SourceCache      Source = "cache"
	SourceModel      Source = "model"
	SourceFallback   Source = "fallback"
	SourceInvalid    Source = "invalid"
)

// ClassificationResult is the pipeline's decision for one logical message.
// The JSON shape is the one the classifier model is asked to produce.
type ClassificationResult struct {
	IsQuestion     bool           `json:"isQuestion" jsonschema:"required"`
	Confidence     float64        `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	Targets        []string       `json:"targets" jsonschema:"required"`
	Sensitivity    Sensitivity    `json:"sensitivity" jsonschema:"required,enum=low,enum=medium,enum=high"`
	KnowledgeScope KnowledgeScope `json:"knowledgeScope" jsonschema:"required,enum=general,enum=specific,enum=personal"`
	Action         Action         `json:"action" jsonschema:"required,enum=answer,enum=offer,enum=silent,enum=continue"`
	NeedsRetrieval bool           `json:"needsRetrieval" jsonschema:"required"`
	Rationale      string         `json:"rationale,omitempty"`
	Source         Source         `json:"source,omitempty" jsonschema:"-"`
}

// Clone returns a deep copy
func (r ClassificationResult) Clone() ClassificationResult {
	if r.Targets != nil {
		r.Targets = append([]string(nil), r.Targets...)
	}
	return r
}

// ShouldEngage reports whether the action asks the assistant to say anything
func (r ClassificationResult) ShouldEngage() bool {
	return r.Action == ActionAnswer || r.Action == ActionOffer || r.Action == ActionContinue
}
