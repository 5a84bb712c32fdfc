package detector_test

import (
	"testing"

	"github.com/book-expert/vision-service/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt string
		index  int
		want   string
	}{
		{name: "no separator uses prompt", prompt: "all objects", index: 3, want: "all objects"},
		{name: "indexes split prompt", prompt: "cat.dog.car", index: 2, want: "car"},
		{name: "segments are verbatim", prompt: "cat. dog", index: 1, want: " dog"},
		{name: "first segment", prompt: "cat.dog", index: 0, want: "cat"},
		{name: "out of range falls back", prompt: "cat.dog", index: 5, want: "cat.dog"},
		{name: "negative falls back", prompt: "cat.dog", index: -1, want: "cat.dog"},
		{name: "trailing separator", prompt: "cat.", index: 1, want: ""},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, detector.LabelFor(testCase.prompt, testCase.index))
		})
	}
}

func TestNormalize_FiltersAtThreshold(t *testing.T) {
	t.Parallel()

	raw := &detector.Response{
		Boxes:  [][]float64{{0, 0, 1, 1}, {0, 0, 2, 2}, {0, 0, 3, 3}, {0, 0, 4, 4}},
		Scores: []float64{0.2, 0.5, 0.5001, 0.99},
		Labels: []int{0, 0, 0, 0},
	}

	records, err := detector.Normalize(raw, "all objects")
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, record := range records {
		assert.Greater(t, record.Confidence, detector.ConfidenceThreshold)
		assert.Equal(t, "all objects", record.Label)
	}

	assert.Equal(t, 3, records[0].BBox[2])
	assert.Equal(t, 4, records[1].BBox[2])
}

func TestNormalize_Malformed(t *testing.T) {
	t.Parallel()

	_, err := detector.Normalize(&detector.Response{
		Boxes:  [][]float64{{0, 0, 1, 1}},
		Scores: []float64{0.9, 0.8},
		Labels: []int{0},
	}, "cat")
	require.ErrorIs(t, err, detector.ErrMalformedResponse)

	_, err = detector.Normalize(&detector.Response{
		Boxes:  [][]float64{{0, 0, 1}},
		Scores: []float64{0.9},
		Labels: []int{0},
	}, "cat")
	require.ErrorIs(t, err, detector.ErrMalformedResponse)
}

func TestNormalize_Empty(t *testing.T) {
	t.Parallel()

	records, err := detector.Normalize(&detector.Response{}, "cat")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
