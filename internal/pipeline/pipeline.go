// Package pipeline runs one analysis request end to end: decode, detect and
// recognize concurrently, then describe and optionally voice the result.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/vision-service/internal/core"
	"github.com/book-expert/vision-service/internal/imagecodec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/book-expert/vision-service/internal/pipeline"

// Log messages.
const (
	logDetectionDegraded   = "Object detection degraded, continuing without objects: %v"
	logRecognitionDegraded = "Text recognition degraded, continuing without text: %v"
	logSpeechDegraded      = "Speech synthesis failed, continuing without audio: %v"
	logStagePanicked       = "Analysis stage %s panicked: %v"
)

// Findings is what detection and recognition produce for one image.
type Findings struct {
	Objects []core.DetectionRecord
	OCR     core.OCRResult
}

// Pipeline holds the shared, read-only collaborators of every analysis.
type Pipeline struct {
	detector    core.ObjectDetector
	recognizer  core.TextRecognizer
	synthesizer core.SpeechSynthesizer
	decoder     *imagecodec.Decoder
	log         *logger.Logger
	tracer      trace.Tracer
}

// New creates a pipeline. A nil synthesizer disables audio entirely.
func New(
	detector core.ObjectDetector,
	recognizer core.TextRecognizer,
	synthesizer core.SpeechSynthesizer,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		detector:    detector,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		decoder:     imagecodec.NewDecoder(imagecodec.DefaultMaxPixels),
		log:         log,
		tracer:      otel.Tracer(tracerName),
	}
}

// WithMaxPixels sets the largest image area the pipeline will decode.
func (p *Pipeline) WithMaxPixels(maxPixels int64) *Pipeline {
	p.decoder = imagecodec.NewDecoder(maxPixels)

	return p
}

// AnalyzeWithError runs the request. The returned error is non-nil exactly
// when result.Success is false and wraps core.ErrDecode or core.ErrInternal.
func (p *Pipeline) AnalyzeWithError(
	ctx context.Context,
	req core.AnalyzeRequest,
) (result core.AnalysisResult, err error) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			err = p.stagePanic("analyze", recovered)
			result = core.FailedResult(err)
		}
	}()

	req = req.WithDefaults()

	img, err := p.decode(ctx, req.Image)
	if err != nil {
		return core.FailedResult(err), err
	}

	findings, err := p.Inspect(ctx, img, req.Prompt, req.OCRLanguage)
	if err != nil {
		return core.FailedResult(err), err
	}

	description := Describe(findings.Objects, findings.OCR)

	var audio *string
	if req.WantsAudio() && description != "" {
		audio = p.speak(ctx, description, SpeechLanguage(req.OCRLanguage))
	}

	ocr := findings.OCR

	return core.AnalysisResult{
		Success:     true,
		Objects:     findings.Objects,
		OCR:         &ocr,
		Description: description,
		Audio:       audio,
		Error:       "",
	}, nil
}

// Inspect runs detection and recognition concurrently over an already
// decoded image. Collaborator failures are absorbed into empty values; the
// only error returned wraps core.ErrInternal after a recovered panic.
func (p *Pipeline) Inspect(
	ctx context.Context,
	img *core.ImageBuffer,
	prompt, ocrLanguage string,
) (Findings, error) {
	var (
		waitGroup    sync.WaitGroup
		objects      []core.DetectionRecord
		ocr          core.OCRResult
		detectErr    error
		recognizeErr error
	)

	waitGroup.Add(2)

	go func() {
		defer waitGroup.Done()
		defer func() {
			recovered := recover()
			if recovered != nil {
				detectErr = p.stagePanic("detect", recovered)
			}
		}()

		objects = p.detect(ctx, img, prompt)
	}()

	go func() {
		defer waitGroup.Done()
		defer func() {
			recovered := recover()
			if recovered != nil {
				recognizeErr = p.stagePanic("ocr", recovered)
			}
		}()

		ocr = p.recognize(ctx, img, ocrLanguage)
	}()

	waitGroup.Wait()

	if detectErr != nil {
		return Findings{}, detectErr
	}

	if recognizeErr != nil {
		return Findings{}, recognizeErr
	}

	return Findings{Objects: objects, OCR: ocr}, nil
}

// DecodeBytes decodes raw image bytes under the decode span.
func (p *Pipeline) DecodeBytes(ctx context.Context, data []byte) (*core.ImageBuffer, error) {
	_, span := p.tracer.Start(ctx, "pipeline.decode")
	defer span.End()

	img, err := p.decoder.DecodeBytes(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")

		return nil, err
	}

	span.SetAttributes(attribute.Int("image.width", img.Width), attribute.Int("image.height", img.Height))

	return img, nil
}

func (p *Pipeline) decode(ctx context.Context, payload string) (*core.ImageBuffer, error) {
	_, span := p.tracer.Start(ctx, "pipeline.decode")
	defer span.End()

	img, err := p.decoder.DecodePayload(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")

		return nil, err
	}

	span.SetAttributes(attribute.Int("image.width", img.Width), attribute.Int("image.height", img.Height))

	return img, nil
}

func (p *Pipeline) detect(ctx context.Context, img *core.ImageBuffer, prompt string) []core.DetectionRecord {
	ctx, span := p.tracer.Start(ctx, "pipeline.detect")
	defer span.End()

	span.SetAttributes(attribute.String("detect.prompt", prompt))

	objects, err := p.detector.Detect(ctx, img, prompt)
	if err != nil {
		span.RecordError(err)
		p.log.Warn(logDetectionDegraded, err)

		return []core.DetectionRecord{}
	}

	if objects == nil {
		objects = []core.DetectionRecord{}
	}

	span.SetAttributes(attribute.Int("detect.objects", len(objects)))

	return objects
}

func (p *Pipeline) recognize(ctx context.Context, img *core.ImageBuffer, language string) core.OCRResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.ocr")
	defer span.End()

	span.SetAttributes(attribute.String("ocr.language", language))

	ocr, err := p.recognizer.Recognize(ctx, img, language)
	if err != nil {
		span.RecordError(err)
		p.log.Warn(logRecognitionDegraded, err)

		return core.EmptyOCRResult()
	}

	if ocr.Words == nil {
		ocr.Words = []core.WordRecord{}
	}

	span.SetAttributes(attribute.Int("ocr.words", len(ocr.Words)))

	return ocr
}

func (p *Pipeline) speak(ctx context.Context, text, language string) *string {
	if p.synthesizer == nil {
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.speech")
	defer span.End()

	span.SetAttributes(attribute.String("speech.language", language))

	audio, err := p.synthesizer.Synthesize(ctx, text, language)
	if err != nil {
		span.RecordError(err)
		p.log.Warn(logSpeechDegraded, err)

		return nil
	}

	if len(audio) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(audio)

	return &encoded
}

func (p *Pipeline) stagePanic(stage string, recovered any) error {
	p.log.Error(logStagePanicked, stage, recovered)

	return fmt.Errorf("%w: %s stage panicked: %v", core.ErrInternal, stage, recovered)
}
