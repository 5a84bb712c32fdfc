package detector

import (
	"fmt"
	"strings"

	"github.com/book-expert/vision-service/internal/core"
)

// CategorySeparator splits a prompt into the categories the detector indexes.
const CategorySeparator = "."

const boxCoordinates = 4

// LabelFor maps a detector category index back to a readable label.
// Indices outside the split prompt fall back to the whole prompt.
func LabelFor(prompt string, index int) string {
	if !strings.Contains(prompt, CategorySeparator) {
		return prompt
	}

	segments := strings.Split(prompt, CategorySeparator)
	if index < 0 || index >= len(segments) {
		return prompt
	}

	return segments[index]
}

// Normalize filters raw predictions by ConfidenceThreshold and converts
// them to records, preserving the detector's order.
func Normalize(raw *Response, prompt string) ([]core.DetectionRecord, error) {
	if len(raw.Boxes) != len(raw.Scores) || len(raw.Scores) != len(raw.Labels) {
		return nil, fmt.Errorf(
			"%w: "+errFmtMismatchedLengths,
			ErrMalformedResponse, len(raw.Boxes), len(raw.Scores), len(raw.Labels),
		)
	}

	records := make([]core.DetectionRecord, 0, len(raw.Scores))

	for i, score := range raw.Scores {
		if score <= ConfidenceThreshold {
			continue
		}

		box := raw.Boxes[i]
		if len(box) != boxCoordinates {
			return nil, fmt.Errorf("%w: box %d has %d coordinates", ErrMalformedResponse, i, len(box))
		}

		records = append(records, core.DetectionRecord{
			Label:      LabelFor(prompt, raw.Labels[i]),
			Confidence: score,
			BBox:       core.BoundingBox{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
		})
	}

	return records, nil
}
