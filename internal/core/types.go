package core

import (
	"encoding/json"
	"fmt"
)

// Request defaults applied when the caller omits a field.
const (
	DefaultPrompt      = "all objects"
	DefaultOCRLanguage = "eng"
)

// BoundingBox holds pixel coordinates as (x_min, y_min, x_max, y_max).
type BoundingBox [4]int

// DetectionRecord is a single detector hit after label mapping and filtering.
type DetectionRecord struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// WordRecord is a recognized word and its location.
type WordRecord struct {
	Text string      `json:"text"`
	BBox BoundingBox `json:"bbox"`
}

// OCRResult carries both views of one recognition pass.
type OCRResult struct {
	FullText string       `json:"full_text"`
	Words    []WordRecord `json:"words"`
}

// EmptyOCRResult is the value substituted when recognition is degraded.
func EmptyOCRResult() OCRResult {
	return OCRResult{FullText: "", Words: []WordRecord{}}
}

// AnalysisResult is the terminal value returned for one analysis request.
type AnalysisResult struct {
	Success     bool              `json:"success"`
	Objects     []DetectionRecord `json:"objects"`
	OCR         *OCRResult        `json:"ocr"`
	Description string            `json:"description"`
	Audio       *string           `json:"audio"`
	Error       string            `json:"error,omitempty"`
}

// failedResultJSON is the wire shape of a failed analysis.
type failedResultJSON struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MarshalJSON encodes failures as {success, error} only.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		data, err := json.Marshal(failedResultJSON{Success: false, Error: r.Error})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal failed result: %w", err)
		}

		return data, nil
	}

	type plain AnalysisResult

	data, err := json.Marshal(plain(r))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return data, nil
}

// FailedResult builds the failure shape of an AnalysisResult.
func FailedResult(err error) AnalysisResult {
	return AnalysisResult{
		Success:     false,
		Objects:     nil,
		OCR:         nil,
		Description: "",
		Audio:       nil,
		Error:       err.Error(),
	}
}

// AnalyzeRequest is the body of an analysis call.
type AnalyzeRequest struct {
	Image         string `json:"image"`
	Prompt        string `json:"prompt,omitempty"`
	OCRLanguage   string `json:"ocr_language,omitempty"`
	GenerateAudio *bool  `json:"generate_audio,omitempty"`

	// fromJSON is set once UnmarshalJSON has applied the defaults for absent keys.
	fromJSON bool
}

// UnmarshalJSON fills defaults only for keys absent from the document.
// Keys that are present are kept as sent, so "prompt": "" stays empty and
// "generate_audio": null disables audio.
func (r *AnalyzeRequest) UnmarshalJSON(data []byte) error {
	type plain AnalyzeRequest

	enabled := true
	decoded := plain{
		Prompt:        DefaultPrompt,
		OCRLanguage:   DefaultOCRLanguage,
		GenerateAudio: &enabled,
	}

	err := json.Unmarshal(data, &decoded)
	if err != nil {
		return err
	}

	*r = AnalyzeRequest(decoded)
	r.fromJSON = true

	return nil
}

// WithDefaults returns a copy of the request with omitted fields filled in.
// A request decoded from JSON already carries its defaults and is returned as is.
func (r AnalyzeRequest) WithDefaults() AnalyzeRequest {
	if r.fromJSON {
		return r
	}

	if r.Prompt == "" {
		r.Prompt = DefaultPrompt
	}

	if r.OCRLanguage == "" {
		r.OCRLanguage = DefaultOCRLanguage
	}

	if r.GenerateAudio == nil {
		enabled := true
		r.GenerateAudio = &enabled
	}

	return r
}

// WantsAudio reports whether speech synthesis was requested.
func (r AnalyzeRequest) WantsAudio() bool {
	return r.GenerateAudio != nil && *r.GenerateAudio
}

// FaceBox locates a face by its top-left corner and size.
type FaceBox struct {
	XMin   int `json:"xmin"`
	YMin   int `json:"ymin"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is a single face detection.
type Face struct {
	Confidence float64 `json:"confidence"`
	Box        FaceBox `json:"box"`
}
