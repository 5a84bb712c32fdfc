// Package config provides the configuration structure for the vision-service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Default values applied when a field is left empty.
const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8000
	defaultMaxBodyBytes     = 16 << 20
	defaultMaxImagePixels   = 89_478_485
	defaultReadTimeoutSecs  = 30
	defaultWriteTimeoutSecs = 120
	defaultDetectorURL      = "http://127.0.0.1:5002"
	defaultDetectorTimeout  = 60
	defaultTesseractBinary  = "tesseract"
	defaultOCRTimeout       = 60
	defaultTTSEngine        = EngineHTTP
	defaultTTSURL           = "http://127.0.0.1:8020"
	defaultTTSTimeout       = 60
	defaultTTSBinary        = "gtts-cli"
	defaultTTSTemperature   = 0.75
	defaultFacesTimeout     = 30
	defaultAnalyzeSubject   = "vision.analyze"
	defaultImageBucket      = "VISION_IMAGES"
	defaultAudioBucket      = "VISION_AUDIO"
	defaultSampleImagesDir  = "uploads/test_images"
	defaultSampleStore      = SampleStoreDir
	maxPort                 = 65535
)

// Speech synthesis engines.
const (
	EngineHTTP    = "http"
	EngineCommand = "command"
)

// Sample image store backends.
const (
	SampleStoreDir  = "dir"
	SampleStoreNATS = "nats"
)

var (
	// ErrInvalidPort indicates that the server port is out of range.
	ErrInvalidPort = errors.New("server port must be between 1 and 65535")
	// ErrUnknownTTSEngine indicates an unsupported tts.engine value.
	ErrUnknownTTSEngine = errors.New("unknown tts engine")
	// ErrUnknownSampleStore indicates an unsupported paths.sample_store value.
	ErrUnknownSampleStore = errors.New("unknown sample store")
	// ErrSampleStoreNeedsNATS indicates the nats sample store was chosen without a NATS URL.
	ErrSampleStoreNeedsNATS = errors.New("sample store 'nats' requires nats.url")
	// ErrNegativeRate indicates a negative request rate.
	ErrNegativeRate = errors.New("server requests_per_second must be >= 0")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host              string  `toml:"host"`
	Port              int     `toml:"port"`
	MaxBodyBytes      int64   `toml:"max_body_bytes"`
	MaxImagePixels    int64   `toml:"max_image_pixels"`
	ReadTimeoutSecs   int     `toml:"read_timeout_seconds"`
	WriteTimeoutSecs  int     `toml:"write_timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Address returns the host:port listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DetectorConfig holds the open-vocabulary detector sidecar settings.
type DetectorConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// OCRConfig holds the Tesseract settings.
type OCRConfig struct {
	BinaryPath     string `toml:"binary_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTSConfig holds the speech synthesis settings.
type TTSConfig struct {
	Engine         string  `toml:"engine"`
	URL            string  `toml:"url"`
	BinaryPath     string  `toml:"binary_path"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// FacesConfig holds the face detector sidecar settings.
type FacesConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	AnalyzeSubject    string `toml:"analyze_subject"`
	ImageObjectBucket string `toml:"image_object_store_bucket"`
	AudioObjectBucket string `toml:"audio_object_store_bucket"`
}

// Enabled reports whether a NATS connection is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir     string `toml:"base_logs_dir"`
	SampleImagesDir string `toml:"sample_images_dir"`
	SampleStore     string `toml:"sample_store"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Detector DetectorConfig `toml:"detector"`
	OCR      OCRConfig      `toml:"ocr"`
	TTS      TTSConfig      `toml:"tts"`
	Faces    FacesConfig    `toml:"faces"`
	NATS     NATSConfig     `toml:"nats"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the vision-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finalize(&cfg)
}

// Decode parses a TOML document into a validated Config.
func Decode(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return finalize(&cfg)
}

func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills every zero-valued setting with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Host, defaultHost)
	setInt(&c.Server.Port, defaultPort)
	setInt(&c.Server.ReadTimeoutSecs, defaultReadTimeoutSecs)
	setInt(&c.Server.WriteTimeoutSecs, defaultWriteTimeoutSecs)

	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}

	if c.Server.MaxImagePixels <= 0 {
		c.Server.MaxImagePixels = defaultMaxImagePixels
	}

	if c.Server.RequestsPerSecond > 0 && c.Server.Burst == 0 {
		c.Server.Burst = int(c.Server.RequestsPerSecond) + 1
	}

	setString(&c.Detector.URL, defaultDetectorURL)
	setInt(&c.Detector.TimeoutSeconds, defaultDetectorTimeout)

	setString(&c.OCR.BinaryPath, defaultTesseractBinary)
	setInt(&c.OCR.TimeoutSeconds, defaultOCRTimeout)

	setString(&c.TTS.Engine, defaultTTSEngine)
	setString(&c.TTS.URL, defaultTTSURL)
	setString(&c.TTS.BinaryPath, defaultTTSBinary)
	setInt(&c.TTS.TimeoutSeconds, defaultTTSTimeout)

	if c.TTS.Temperature == 0 {
		c.TTS.Temperature = defaultTTSTemperature
	}

	setInt(&c.Faces.TimeoutSeconds, defaultFacesTimeout)

	setString(&c.NATS.AnalyzeSubject, defaultAnalyzeSubject)
	setString(&c.NATS.ImageObjectBucket, defaultImageBucket)
	setString(&c.NATS.AudioObjectBucket, defaultAudioBucket)

	setString(&c.Paths.SampleImagesDir, defaultSampleImagesDir)
	setString(&c.Paths.SampleStore, defaultSampleStore)
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	if c.Server.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: got %f", ErrNegativeRate, c.Server.RequestsPerSecond)
	}

	switch c.TTS.Engine {
	case EngineHTTP, EngineCommand:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownTTSEngine, c.TTS.Engine)
	}

	switch c.Paths.SampleStore {
	case SampleStoreDir:
	case SampleStoreNATS:
		if !c.NATS.Enabled() {
			return ErrSampleStoreNeedsNATS
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownSampleStore, c.Paths.SampleStore)
	}

	return nil
}

// Timeout converts a seconds setting into a duration.
func Timeout(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func setString(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}

func setInt(field *int, fallback int) {
	if *field == 0 {
		*field = fallback
	}
}
