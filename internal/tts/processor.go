package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/book-expert/logger"
)

// CommandSynthesizer implements core.SpeechSynthesizer by calling a gTTS-style
// binary that takes `--lang <code> --output <file> <text>`.
type CommandSynthesizer struct {
	binaryPath string
	timeout    time.Duration
	log        *logger.Logger
}

// NewCommandSynthesizer creates a synthesizer around the given binary.
func NewCommandSynthesizer(binaryPath string, log *logger.Logger) *CommandSynthesizer {
	return &CommandSynthesizer{
		binaryPath: binaryPath,
		log:        log,
	}
}

// WithTimeout bounds each synthesis run. Zero disables the bound.
func (p *CommandSynthesizer) WithTimeout(timeout time.Duration) *CommandSynthesizer {
	p.timeout = timeout

	return p
}

// Synthesize renders text into an MP3 clip. The intermediate file is removed
// on every exit path.
func (p *CommandSynthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if text == "" {
		return nil, ErrTextEmpty
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tempFile, err := os.CreateTemp("", "tts-output-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for tts output: %w", err)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			p.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	closeErr := tempFile.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close temp file for tts output: %w", closeErr)
	}

	args := []string{
		"--lang", MapLanguage(language),
		"--output", tempFile.Name(),
		text,
	}

	// #nosec G204 -- binary path comes from configuration, language from a fixed table
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("tts binary execution failed: %w - output: %s", err, string(output))
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%s from %s", errReceivedEmptyAudio, p.binaryPath)
	}

	return audioData, nil
}
