package llm

import (
	"fmt"
	"strings"
)

// languageNames maps common language codes to the names used in prompts.
// Codes not listed here pass through unchanged; models handle either form.
var languageNames = map[string]string{
	"en": "English",
	"zh": "Chinese",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"ja": "Japanese",
	"ko": "Korean",
	"ru": "Russian",
	"pt": "Portuguese",
	"it": "Italian",
	"ar": "Arabic",
	"hi": "Hindi",
	"nl": "Dutch",
	"pl": "Polish",
	"tr": "Turkish",
	"vi": "Vietnamese",
	"th": "Thai",
	"id": "Indonesian",
	"uk": "Ukrainian",
}

// LanguageName resolves a language code to the display name used in prompts.
// A regional suffix is stripped first ("zh-CN" resolves like "zh"); unknown
// codes are returned as-is.
func LanguageName(code string) string {
	base := strings.ToLower(code)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if name, ok := languageNames[base]; ok {
		return name
	}
	return code
}

// SystemPrompt renders the translation instruction shared by all backends.
func SystemPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You are a professional simultaneous interpreter. Translate everything the user says from %s into %s. "+
			"Keep the speaker's tone, register, and terminology. "+
			"Reply with the translation only: no quotes, no notes, no romanization.",
		LanguageName(sourceLang), LanguageName(targetLang),
	)
}

// UserPrompt renders the message carrying the sentence to translate. When a
// prior sentence is available it is included as context so pronouns and
// terminology stay consistent across sentence boundaries.
func UserPrompt(text, context string) string {
	if context == "" {
		return text
	}
	return fmt.Sprintf("Previous sentence (context only, do not translate):\n%s\n\nTranslate this:\n%s", context, text)
}
