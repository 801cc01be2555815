package speech

import (
	"regexp"
	"strings"
)

const (
	LanguageArabic  = "ar-SA"
	LanguageEnglish = "en-US"
)

var (
	markupPattern    = regexp.MustCompile("[#`$]")
	ceCommandPattern = regexp.MustCompile(`\\ce\{([^}]+)\}`)
)

// CleanForSpeech strips formatting that reads badly aloud. Order matters: \ce{...}
// is unwrapped before the remaining backslashes are dropped.
func CleanForSpeech(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = markupPattern.ReplaceAllString(text, "")
	text = ceCommandPattern.ReplaceAllString(text, "$1")
	return strings.ReplaceAll(text, `\`, "")
}

// DetectLanguage returns ar-SA when text contains any Arabic-block rune, en-US otherwise.
func DetectLanguage(text string) string {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return LanguageArabic
		}
	}
	return LanguageEnglish
}
