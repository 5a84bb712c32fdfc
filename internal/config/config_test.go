// Package config_test tests the configuration loading for the vision-service.
package config_test

import (
	"testing"
	"time"

	"github.com/book-expert/vision-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[server]
port = 9000
max_body_bytes = 1048576
max_image_pixels = 4000000
requests_per_second = 5.0

[detector]
url = "http://glip:5002"
timeout_seconds = 90

[ocr]
binary_path = "/usr/bin/tesseract"

[tts]
engine = "command"
binary_path = "/usr/local/bin/gtts-cli"

[nats]
url = "nats://127.0.0.1:4222"
analyze_subject = "images.submitted"
image_object_store_bucket = "IMAGES"
audio_object_store_bucket = "AUDIO"

[paths]
base_logs_dir = "/var/log/vision"
sample_images_dir = "/srv/test_images"
sample_store = "nats"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(1048576), cfg.Server.MaxBodyBytes)
	assert.Equal(t, int64(4000000), cfg.Server.MaxImagePixels)
	assert.InEpsilon(t, 5.0, cfg.Server.RequestsPerSecond, 0.001)
	assert.Equal(t, "http://glip:5002", cfg.Detector.URL)
	assert.Equal(t, 90, cfg.Detector.TimeoutSeconds)
	assert.Equal(t, "/usr/bin/tesseract", cfg.OCR.BinaryPath)
	assert.Equal(t, config.EngineCommand, cfg.TTS.Engine)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "images.submitted", cfg.NATS.AnalyzeSubject)
	assert.Equal(t, "IMAGES", cfg.NATS.ImageObjectBucket)
	assert.Equal(t, "AUDIO", cfg.NATS.AudioObjectBucket)
	assert.Equal(t, "/var/log/vision", cfg.Paths.BaseLogsDir)
	assert.Equal(t, config.SampleStoreNATS, cfg.Paths.SampleStore)

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Server.Burst)
}

func TestDecode_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Decode([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Address())
	assert.Equal(t, int64(16<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, int64(89_478_485), cfg.Server.MaxImagePixels)
	assert.Equal(t, config.EngineHTTP, cfg.TTS.Engine)
	assert.Equal(t, "tesseract", cfg.OCR.BinaryPath)
	assert.Equal(t, "vision.analyze", cfg.NATS.AnalyzeSubject)
	assert.Equal(t, config.SampleStoreDir, cfg.Paths.SampleStore)
	assert.False(t, cfg.NATS.Enabled())
	assert.Equal(t, 60*time.Second, config.Timeout(cfg.Detector.TimeoutSeconds))
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tomlDoc string
		wantErr error
	}{
		{name: "port out of range", tomlDoc: "[server]\nport = 70000\n", wantErr: config.ErrInvalidPort},
		{name: "unknown engine", tomlDoc: "[tts]\nengine = \"festival\"\n", wantErr: config.ErrUnknownTTSEngine},
		{name: "unknown store", tomlDoc: "[paths]\nsample_store = \"s3\"\n", wantErr: config.ErrUnknownSampleStore},
		{name: "nats store without url", tomlDoc: "[paths]\nsample_store = \"nats\"\n", wantErr: config.ErrSampleStoreNeedsNATS},
		{name: "negative rate", tomlDoc: "[server]\nrequests_per_second = -1.0\n", wantErr: config.ErrNegativeRate},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Decode([]byte(testCase.tomlDoc))
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}
