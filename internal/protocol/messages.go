package protocol

import "time"

// OutputRequest is a candidate text event published by a game
// integration.
type OutputRequest struct {
	Speaker   string    `json:"speaker,omitempty"`
	Text      string    `json:"text"`
	Category  int       `json:"category"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RuleRequest registers a normalization rewrite rule at runtime.
type RuleRequest struct {
	// Kind is "literal" or "pattern".
	Kind            string `json:"kind"`
	Pattern         string `json:"pattern"`
	Replacement     string `json:"replacement"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
}

// RuleClear drops registered rules. Kind is "literal", "pattern" or "all".
type RuleClear struct {
	Kind string `json:"kind"`
}

const (
	SubjectSpeechOutput = "speech.output"
	SubjectSpeechRepeat = "speech.repeat"
	SubjectSpeechStop   = "speech.stop"
	SubjectRulesAdd     = "speech.rules.add"
	SubjectRulesClear   = "speech.rules.clear"
)
