package therapy

import "strings"

// keywordRule binds a therapy type to the substrings that select it.
type keywordRule struct {
	Type     Type
	Keywords []string
}

// keywordTable is the detection configuration. Rules are checked top to
// bottom and the first hit wins, so order doubles as tie-breaking priority
// when a turn matches several sets.
var keywordTable = []keywordRule{
	{CBT, []string{"cognitive behavioral therapy", "cbt"}},
	{DBT, []string{"dialectical behavior therapy", "dbt"}},
	{ACT, []string{"acceptance and commitment therapy"}},
	{Grief, []string{"grief", "loss", "bereavement"}},
	{Anxiety, []string{"anxiety", "anxious", "panic", "worried"}},
	{Parenting, []string{"parent", "child", "kid", "family"}},
	{Depression, []string{"depress", "sad", "hopeless"}},
	{Trauma, []string{"trauma"}},
}

// Detect classifies a user turn into a therapy type by keyword match.
// Matching is case-insensitive substring search; no match returns General.
// The same input always yields the same result.
func Detect(userTurn string) Type {
	text := strings.ToLower(userTurn)
	for _, rule := range keywordTable {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Type
			}
		}
	}
	return General
}

// Mood is a coarse reading of the user's emotional state, used only to pick
// a speech delivery for synthesized replies.
type Mood string

const (
	MoodSad     Mood = "sad"
	MoodAnxious Mood = "anxious"
	MoodHappy   Mood = "happy"
	MoodAngry   Mood = "angry"
	MoodNeutral Mood = "neutral"
)

var moodTable = []struct {
	Mood     Mood
	Keywords []string
}{
	{MoodSad, []string{"sad", "depressed", "down", "unhappy"}},
	{MoodAnxious, []string{"anxious", "worried", "nervous", "scared"}},
	{MoodHappy, []string{"happy", "good", "great", "wonderful"}},
	{MoodAngry, []string{"angry", "frustrated", "upset", "mad"}},
}

// DetectMood returns a coarse mood for the user turn, MoodNeutral when
// nothing matches.
func DetectMood(userTurn string) Mood {
	text := strings.ToLower(userTurn)
	for _, rule := range moodTable {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Mood
			}
		}
	}
	return MoodNeutral
}
