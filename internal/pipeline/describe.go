package pipeline

import (
	"fmt"
	"strings"

	"github.com/book-expert/vision-service/internal/core"
)

const (
	maxDescribedLabels = 3
	maxDescribedRunes  = 100
)

// Speech languages selected from the OCR language.
const (
	speechHindi   = "hi"
	speechEnglish = "en"
)

// Describe builds the one-sentence summary that is voiced to the user.
func Describe(objects []core.DetectionRecord, ocr core.OCRResult) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "I detected %d objects", len(objects))

	if len(objects) > 0 {
		shown := min(len(objects), maxDescribedLabels)
		labels := make([]string, 0, shown)

		for _, object := range objects[:shown] {
			labels = append(labels, object.Label)
		}

		builder.WriteString(": ")
		builder.WriteString(strings.Join(labels, ", "))

		if len(objects) > maxDescribedLabels {
			fmt.Fprintf(&builder, " and %d more", len(objects)-maxDescribedLabels)
		}
	}

	if ocr.FullText != "" {
		builder.WriteString(". Text found: ")
		builder.WriteString(truncateRunes(ocr.FullText, maxDescribedRunes))
	}

	return builder.String()
}

// SpeechLanguage picks Hindi speech whenever Hindi recognition was asked for.
func SpeechLanguage(ocrLanguage string) string {
	if strings.Contains(ocrLanguage, "hin") {
		return speechHindi
	}

	return speechEnglish
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit])
}
