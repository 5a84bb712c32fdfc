// Package ocr adapts the Tesseract command-line engine into OCR results.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vision-service/internal/core"
)

// Supported language codes.
const (
	LanguageEnglish         = "eng"
	LanguageHindi           = "hin"
	LanguageEnglishAndHindi = "eng+hin"
)

var languageTable = map[string]string{
	LanguageEnglish:         LanguageEnglish,
	LanguageHindi:           LanguageHindi,
	LanguageEnglishAndHindi: LanguageEnglishAndHindi,
}

// MapLanguage resolves a requested language to a Tesseract code.
// Unknown values fall back to English.
func MapLanguage(language string) string {
	code, ok := languageTable[language]
	if !ok {
		return LanguageEnglish
	}

	return code
}

// Tesseract runs the tesseract binary once per request in TSV mode, so the
// full text and the word boxes come from the same recognition pass.
type Tesseract struct {
	binaryPath string
	timeout    time.Duration
	log        *logger.Logger
}

// NewTesseract creates a recognizer using the given tesseract binary.
func NewTesseract(binaryPath string, log *logger.Logger) *Tesseract {
	return &Tesseract{
		binaryPath: binaryPath,
		log:        log,
	}
}

// WithTimeout bounds each tesseract run. Zero leaves runs bounded only by
// the caller's context.
func (t *Tesseract) WithTimeout(timeout time.Duration) *Tesseract {
	t.timeout = timeout

	return t
}

// Recognize extracts text from the image. Every error wraps core.ErrUpstreamDegraded.
func (t *Tesseract) Recognize(ctx context.Context, img *core.ImageBuffer, language string) (core.OCRResult, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tsv, err := t.run(ctx, img, MapLanguage(language))
	if err != nil {
		return core.EmptyOCRResult(), fmt.Errorf("%w: %w", core.ErrUpstreamDegraded, err)
	}

	result, err := ParseTSV(tsv)
	if err != nil {
		return core.EmptyOCRResult(), fmt.Errorf("%w: %w", core.ErrUpstreamDegraded, err)
	}

	return result, nil
}

func (t *Tesseract) run(ctx context.Context, img *core.ImageBuffer, code string) ([]byte, error) {
	encoded, err := img.EncodePNG()
	if err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp("", "ocr-input-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for ocr input: %w", err)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			t.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	_, writeErr := tempFile.Write(encoded)
	closeErr := tempFile.Close()

	if writeErr != nil {
		return nil, fmt.Errorf("failed to write ocr input: %w", writeErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close ocr input: %w", closeErr)
	}

	// #nosec G204 -- binary path comes from configuration, language from a fixed table
	cmd := exec.CommandContext(ctx, t.binaryPath, tempFile.Name(), "stdout", "-l", code, "tsv")

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tesseract execution failed: %w%s", err, stderrOf(err))
	}

	return output, nil
}

func stderrOf(err error) string {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || len(exitErr.Stderr) == 0 {
		return ""
	}

	return " - output: " + string(exitErr.Stderr)
}
