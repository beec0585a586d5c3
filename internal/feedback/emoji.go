package feedback

import "strings"

// Type classifies a piece of feedback.
type Type string

const (
	Positive   Type = "positive"
	Negative   Type = "negative"
	Suggestion Type = "suggestion"
)

// emojiTypes covers Slack short names and the Unicode characters Discord sends.
var emojiTypes = map[string]Type{
	"+1":               Positive,
	"thumbsup":         Positive,
	"white_check_mark": Positive,
	"heart":            Positive,
	"tada":             Positive,
	"👍":                Positive,
	"✅":                Positive,
	"❤":                Positive,
	"🎉":                Positive,

	"-1":         Negative,
	"thumbsdown": Negative,
	"x":          Negative,
	"👎":          Negative,
	"❌":          Negative,

	"arrows_counterclockwise": Suggestion,
	"repeat":                  Suggestion,
	"pencil2":                 Suggestion,
	"memo":                    Suggestion,
	"🔄":                       Suggestion,
	"🔁":                       Suggestion,
	"✏":                       Suggestion,
	"📝":                       Suggestion,
}

// EmojiType maps a reaction to a feedback type. Colons, Slack skin-tone
// suffixes and Unicode variation selectors are ignored.
func EmojiType(emoji string) (Type, bool) {
	e := strings.Trim(emoji, ":")
	if i := strings.Index(e, "::skin-tone"); i >= 0 {
		e = e[:i]
	}
	e = strings.ReplaceAll(e, "\uFE0F", "")
	for _, tone := range []string{"\U0001F3FB", "\U0001F3FC", "\U0001F3FD", "\U0001F3FE", "\U0001F3FF"} {
		e = strings.ReplaceAll(e, tone, "")
	}
	t, ok := emojiTypes[e]
	return t, ok
}
