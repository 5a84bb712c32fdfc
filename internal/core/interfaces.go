// Package core defines the domain types and collaborator interfaces for the vision service.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// ImageStore is a read-only catalogue of named sample images.
type ImageStore interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// ObjectDetector runs an open-vocabulary detector over an image for a free-text prompt.
type ObjectDetector interface {
	Detect(ctx context.Context, img *ImageBuffer, prompt string) ([]DetectionRecord, error)
}

// TextRecognizer extracts text and word boxes from an image in a single pass.
type TextRecognizer interface {
	Recognize(ctx context.Context, img *ImageBuffer, language string) (OCRResult, error)
}

// SpeechSynthesizer renders text into an encoded audio clip.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// FaceDetector locates faces in an image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, img *ImageBuffer) ([]Face, error)
}
