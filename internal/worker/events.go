package worker

import (
	"github.com/book-expert/events"
	"github.com/book-expert/vision-service/internal/core"
)

// ImageSubmittedEvent asks the worker to analyze an image that was already
// placed in the image bucket.
type ImageSubmittedEvent struct {
	Header        events.EventHeader `json:"header"`
	ImageKey      string             `json:"image_key"`
	Prompt        string             `json:"prompt,omitempty"`
	OCRLanguage   string             `json:"ocr_language,omitempty"`
	GenerateAudio *bool              `json:"generate_audio,omitempty"`
}

// AnalysisCompletedEvent is the reply to an ImageSubmittedEvent. The audio
// clip, when produced, lives in the audio bucket under AudioKey and is
// removed from Result.
type AnalysisCompletedEvent struct {
	Header   events.EventHeader  `json:"header"`
	Result   core.AnalysisResult `json:"result"`
	AudioKey string              `json:"audio_key,omitempty"`
}
