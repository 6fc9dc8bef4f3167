package pipeline

import "strings"

// directiveSoftening rewrites directive phrasing into invitational phrasing.
var directiveSoftening = strings.NewReplacer(
	"*", "",
	"I suggest", "It might be helpful to try",
	"I recommend", "Perhaps exploring this could be a great step for you",
	"You should", "It might feel good to",
)

const companionLine = "\nI'm here to guide you through this process, and you're not alone in it."

// softenDirectives post-processes a model reply into a warmer register.
// Replies that mention therapy get a closing companion line.
func softenDirectives(reply string) string {
	out := directiveSoftening.Replace(reply)
	if strings.Contains(strings.ToLower(out), "therapy") {
		out += companionLine
	}
	return out
}

// voiceTransitions swaps formal connectives for ones that read naturally
// when spoken aloud.
var voiceTransitions = strings.NewReplacer(
	"However,", "But,",
	"Furthermore,", "Also,",
	"Additionally,", "And,",
	"Nevertheless,", "But,",
	"Therefore,", "So,",
)

// voiceFriendly reformats a reply for speech synthesis: markdown emphasis
// markers are dropped and formal transitions are casualized.
func voiceFriendly(reply string) string {
	out := strings.ReplaceAll(reply, "*", "")
	out = strings.ReplaceAll(out, "_", "")
	out = strings.ReplaceAll(out, "  ", " ")
	return voiceTransitions.Replace(out)
}
