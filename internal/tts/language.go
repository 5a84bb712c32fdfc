package tts

// Speech language codes.
const (
	LanguageEnglish = "en"
	LanguageHindi   = "hi"
)

var languageCodes = map[string]string{
	"eng":           LanguageEnglish,
	"hin":           LanguageHindi,
	LanguageEnglish: LanguageEnglish,
	LanguageHindi:   LanguageHindi,
}

// MapLanguage normalizes OCR-style and speech-style codes to a speech
// language, defaulting to English.
func MapLanguage(language string) string {
	code, ok := languageCodes[language]
	if !ok {
		return LanguageEnglish
	}

	return code
}
