package ocr_test

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/vision-service/internal/core"
	"github.com/book-expert/vision-service/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t640\t480\t-1\t\n" +
	"2\t1\t1\t0\t0\t0\t10\t10\t300\t60\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t96.5\tHello\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t60\t20\t95.1\tworld\n" +
	"5\t1\t1\t1\t1\t3\t140\t10\t5\t20\t10.0\t \n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t80\t20\t91.0\tsecond\n" +
	"5\t1\t2\t1\t1\t1\t10\t100\t40\t20\t90.0\tEXIT\n"

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "ocr-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func testImage() *core.ImageBuffer {
	return core.NewImageBuffer(image.NewRGBA(image.Rect(0, 0, 3, 3)))
}

// writeFakeTesseract writes a shell script that records its arguments and
// prints the given output, standing in for the tesseract binary. Tests using
// it stay serial so no concurrent fork holds the script open (ETXTBSY).
func writeFakeTesseract(t *testing.T, output string, exitCode int) (string, string) {
	t.Helper()

	dir := t.TempDir()
	fixturePath := filepath.Join(dir, "fixture.tsv")
	recordPath := filepath.Join(dir, "calls.log")
	scriptPath := filepath.Join(dir, "tesseract")

	require.NoError(t, os.WriteFile(fixturePath, []byte(output), 0o600))

	script := "#!/bin/sh\n" +
		"echo \"$@\" >> " + recordPath + "\n" +
		"test -f \"$1\" || exit 3\n" +
		"cat " + fixturePath + "\n" +
		"echo 'engine failure' >&2\n" +
		"exit " + string(rune('0'+exitCode)) + "\n"

	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o700))

	return scriptPath, recordPath
}

func readCalls(t *testing.T, recordPath string) []string {
	t.Helper()

	data, err := os.ReadFile(recordPath)
	require.NoError(t, err)

	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestMapLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "eng", ocr.MapLanguage("eng"))
	assert.Equal(t, "hin", ocr.MapLanguage("hin"))
	assert.Equal(t, "eng+hin", ocr.MapLanguage("eng+hin"))
	assert.Equal(t, "eng", ocr.MapLanguage("fra"))
	assert.Equal(t, "eng", ocr.MapLanguage(""))
}

func TestTesseract_RecognizeSinglePass(t *testing.T) {
	binary, recordPath := writeFakeTesseract(t, sampleTSV, 0)
	recognizer := ocr.NewTesseract(binary, createTestLogger(t))

	result, err := recognizer.Recognize(context.Background(), testImage(), "eng+hin")
	require.NoError(t, err)

	assert.Equal(t, "Hello world\nsecond\n\nEXIT", result.FullText)
	require.Len(t, result.Words, 4)
	assert.Equal(t, core.BoundingBox{10, 10, 60, 30}, result.Words[0].BBox)

	calls := readCalls(t, recordPath)
	require.Len(t, calls, 1, "tesseract must run exactly once")

	args := strings.Fields(calls[0])
	require.Len(t, args, 5)
	assert.Equal(t, []string{"stdout", "-l", "eng+hin", "tsv"}, args[1:])

	_, statErr := os.Stat(args[0])
	assert.True(t, os.IsNotExist(statErr), "temp input must be removed")
}

func TestTesseract_UnknownLanguageFallsBack(t *testing.T) {
	binary, recordPath := writeFakeTesseract(t, sampleTSV, 0)
	recognizer := ocr.NewTesseract(binary, createTestLogger(t))

	_, err := recognizer.Recognize(context.Background(), testImage(), "klingon")
	require.NoError(t, err)

	args := strings.Fields(readCalls(t, recordPath)[0])
	assert.Equal(t, "eng", args[3])
}

func TestTesseract_FailureIsDegraded(t *testing.T) {
	binary, recordPath := writeFakeTesseract(t, "", 1)
	recognizer := ocr.NewTesseract(binary, createTestLogger(t))

	result, err := recognizer.Recognize(context.Background(), testImage(), "eng")
	require.ErrorIs(t, err, core.ErrUpstreamDegraded)
	assert.Contains(t, err.Error(), "engine failure")
	assert.Empty(t, result.FullText)
	assert.NotNil(t, result.Words)
	assert.Empty(t, result.Words)

	args := strings.Fields(readCalls(t, recordPath)[0])
	_, statErr := os.Stat(args[0])
	assert.True(t, os.IsNotExist(statErr), "temp input must be removed on failure")
}

func TestTesseract_MissingBinaryIsDegraded(t *testing.T) {
	t.Parallel()

	recognizer := ocr.NewTesseract(filepath.Join(t.TempDir(), "missing"), createTestLogger(t))

	_, err := recognizer.Recognize(context.Background(), testImage(), "eng")
	require.ErrorIs(t, err, core.ErrUpstreamDegraded)
}
