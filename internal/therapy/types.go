// Package therapy holds the closed set of therapeutic framings and the
// deterministic keyword classifier that selects one for each turn.
package therapy

import "github.com/emothrive/emothrive/internal/voice"

// Type identifies the therapeutic framing applied to a response.
type Type string

const (
	CBT        Type = "cbt"
	DBT        Type = "dbt"
	ACT        Type = "act"
	Grief      Type = "grief"
	Anxiety    Type = "anxiety"
	Parenting  Type = "parenting"
	Depression Type = "depression"
	Trauma     Type = "trauma"
	General    Type = "general"
)

// All lists every therapy type, detection priority first, General last.
// Counters and keyword tables iterate this order.
var All = []Type{CBT, DBT, ACT, Grief, Anxiety, Parenting, Depression, Trauma, General}

// labels maps each type to the human-readable name used in prompts.
var labels = map[Type]string{
	CBT:        "Cognitive Behavioral Therapy",
	DBT:        "Dialectical Behavior Therapy",
	ACT:        "Acceptance and Commitment Therapy",
	Grief:      "Grief Counseling",
	Anxiety:    "Anxiety Management",
	Parenting:  "Parenting Support",
	Depression: "Depression Support",
	Trauma:     "Trauma-Informed Therapy",
	General:    "General Therapy",
}

// Label returns the prompt-facing name for t. Unknown values read as General.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return labels[General]
}

// Valid reports whether t is a member of the closed enumeration.
func (t Type) Valid() bool {
	_, ok := labels[t]
	return ok
}

// SpeechStyleFor maps a therapy type to the voice style used when a reply is
// synthesized. Anxiety-adjacent framings get the calmer deliveries.
func SpeechStyleFor(t Type) voice.Style {
	switch t {
	case Anxiety, Trauma:
		return voice.StyleGentle
	case Grief, Depression:
		return voice.StyleEmpathetic
	case Parenting:
		return voice.StyleFriendly
	default:
		return voice.StyleEmpathetic
	}
}
