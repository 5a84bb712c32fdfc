package ocr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/book-expert/vision-service/internal/core"
)

// Column layout of tesseract's TSV output.
const (
	colLevel = iota
	colPage
	colBlock
	colParagraph
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConfidence
	colText
	tsvColumns
)

const wordLevel = 5

// ErrMalformedTSV indicates tesseract produced output that is not TSV.
var ErrMalformedTSV = errors.New("malformed tesseract tsv output")

type lineKey struct {
	page, block, paragraph, line int
}

// ParseTSV builds both OCR views from tesseract TSV output. Words with empty
// text after trimming are dropped. Lines are joined by newlines and
// paragraphs separated by a blank line.
func ParseTSV(data []byte) (core.OCRResult, error) {
	result := core.EmptyOCRResult()

	rows := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(rows) == 0 || !strings.HasPrefix(rows[0], "level") {
		return result, fmt.Errorf("%w: missing header", ErrMalformedTSV)
	}

	var (
		text       strings.Builder
		lineWords  []string
		current    lineKey
		started    bool
		lineNumber int
	)

	flushLine := func() {
		if len(lineWords) > 0 {
			text.WriteString(strings.Join(lineWords, " "))
			text.WriteString("\n")
		}

		lineWords = lineWords[:0]
	}

	for _, row := range rows[1:] {
		lineNumber++

		if row == "" {
			continue
		}

		fields := strings.SplitN(row, "\t", tsvColumns)
		if len(fields) < tsvColumns-1 {
			return core.EmptyOCRResult(), fmt.Errorf("%w: row %d has %d columns", ErrMalformedTSV, lineNumber, len(fields))
		}

		numbers, err := parseInts(fields[:colConfidence])
		if err != nil {
			return core.EmptyOCRResult(), fmt.Errorf("%w: row %d: %w", ErrMalformedTSV, lineNumber, err)
		}

		if numbers[colLevel] != wordLevel {
			continue
		}

		word := ""
		if len(fields) == tsvColumns {
			word = fields[colText]
		}

		if strings.TrimSpace(word) == "" {
			continue
		}

		key := lineKey{
			page:      numbers[colPage],
			block:     numbers[colBlock],
			paragraph: numbers[colParagraph],
			line:      numbers[colLine],
		}

		if started && key != current {
			flushLine()

			if key.page != current.page || key.block != current.block || key.paragraph != current.paragraph {
				text.WriteString("\n")
			}
		}

		current = key
		started = true
		lineWords = append(lineWords, word)

		left, top := numbers[colLeft], numbers[colTop]
		result.Words = append(result.Words, core.WordRecord{
			Text: word,
			BBox: core.BoundingBox{left, top, left + numbers[colWidth], top + numbers[colHeight]},
		})
	}

	flushLine()

	result.FullText = strings.TrimSpace(text.String())

	return result, nil
}

func parseInts(fields []string) ([]int, error) {
	numbers := make([]int, len(fields))

	for i, field := range fields {
		value, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}

		numbers[i] = value
	}

	return numbers, nil
}
