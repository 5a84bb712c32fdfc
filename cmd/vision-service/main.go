// main package for the vision-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vision-service/internal/config"
	"github.com/book-expert/vision-service/internal/core"
	"github.com/book-expert/vision-service/internal/detector"
	"github.com/book-expert/vision-service/internal/faces"
	"github.com/book-expert/vision-service/internal/objectstore"
	"github.com/book-expert/vision-service/internal/ocr"
	"github.com/book-expert/vision-service/internal/pipeline"
	"github.com/book-expert/vision-service/internal/samples"
	"github.com/book-expert/vision-service/internal/server"
	"github.com/book-expert/vision-service/internal/tts"
	"github.com/book-expert/vision-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	probeTimeout    = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// natsResources holds the connection and buckets opened when NATS is enabled.
type natsResources struct {
	conn   *nats.Conn
	images *objectstore.NatsObjectStore
	audio  *objectstore.NatsObjectStore
}

func connectNATS(cfg config.NATSConfig) (*natsResources, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	jetstreamContext, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	images, err := objectstore.New(jetstreamContext, cfg.ImageObjectBucket)
	if err != nil {
		conn.Close()

		return nil, err
	}

	audio, err := objectstore.New(jetstreamContext, cfg.AudioObjectBucket)
	if err != nil {
		conn.Close()

		return nil, err
	}

	return &natsResources{conn: conn, images: images, audio: audio}, nil
}

func buildSynthesizer(cfg config.TTSConfig, log *logger.Logger) (core.SpeechSynthesizer, error) {
	switch cfg.Engine {
	case config.EngineHTTP:
		return tts.NewHTTPClient(cfg.URL, config.Timeout(cfg.TimeoutSeconds), cfg.Temperature), nil
	case config.EngineCommand:
		return tts.NewCommandSynthesizer(cfg.BinaryPath, log).WithTimeout(config.Timeout(cfg.TimeoutSeconds)), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnknownTTSEngine, cfg.Engine)
	}
}

func buildSampleStore(cfg config.PathsConfig, natsRes *natsResources) (core.ImageStore, error) {
	switch cfg.SampleStore {
	case config.SampleStoreDir:
		return samples.NewDirStore(cfg.SampleImagesDir), nil
	case config.SampleStoreNATS:
		if natsRes == nil {
			return nil, config.ErrSampleStoreNeedsNATS
		}

		return natsRes.images, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnknownSampleStore, cfg.SampleStore)
	}
}

func probeDetector(ctx context.Context, client *detector.Client, log *logger.Logger) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := client.Probe(probeCtx)
	if err != nil {
		log.Warn("Detector not initialized, detections will be empty: %v", err)

		return
	}

	log.Info("Detector initialized on device %s.", client.Device())
}

// healthChecker is implemented by synthesizers backed by a remote service.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func probeSynthesizer(ctx context.Context, synthesizer core.SpeechSynthesizer, log *logger.Logger) error {
	checker, ok := synthesizer.(healthChecker)
	if !ok {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := checker.HealthCheck(probeCtx)
	if err != nil {
		log.Warn("Speech service not reachable, audio will be null until it recovers: %v", err)

		return err
	}

	log.Info("Speech service is healthy.")

	return nil
}

func serveHTTP(ctx context.Context, httpServer *http.Server, log *logger.Logger) error {
	errChan := make(chan error, 1)

	go func() {
		log.System("Vision-Service listening on %s", httpServer.Addr)

		listenErr := httpServer.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errChan <- listenErr
		}

		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	return nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), "vision-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "vision-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detectorClient := detector.NewClient(cfg.Detector.URL, config.Timeout(cfg.Detector.TimeoutSeconds))
	probeDetector(ctx, detectorClient, finalLog)

	synthesizer, err := buildSynthesizer(cfg.TTS, finalLog)
	if err != nil {
		return err
	}

	_ = probeSynthesizer(ctx, synthesizer, finalLog)

	analyzer := pipeline.New(
		detectorClient,
		ocr.NewTesseract(cfg.OCR.BinaryPath, finalLog).WithTimeout(config.Timeout(cfg.OCR.TimeoutSeconds)),
		synthesizer,
		finalLog,
	).WithMaxPixels(cfg.Server.MaxImagePixels)

	var natsRes *natsResources

	if cfg.NATS.Enabled() {
		natsRes, err = connectNATS(cfg.NATS)
		if err != nil {
			finalLog.Error("Failed to set up NATS: %v", err)

			return err
		}
		defer natsRes.conn.Close()

		finalLog.Info("NATS object stores ready: images=%s audio=%s", natsRes.images.Bucket(), natsRes.audio.Bucket())

		analysisWorker := worker.NewNatsWorker(
			natsRes.conn, cfg.NATS.AnalyzeSubject, natsRes.images, natsRes.audio, analyzer, finalLog,
		)

		go func() {
			runErr := analysisWorker.Run(ctx)
			if runErr != nil {
				finalLog.Error("Worker stopped: %v", runErr)
			}
		}()
	}

	sampleStore, err := buildSampleStore(cfg.Paths, natsRes)
	if err != nil {
		return err
	}

	srv := server.New(
		analyzer,
		detectorClient,
		sampleStore,
		faces.NewClient(cfg.Faces.URL, config.Timeout(cfg.Faces.TimeoutSeconds)),
		finalLog,
		cfg.Server,
	)

	err = serveHTTP(ctx, srv.HTTPServer(), finalLog)
	if err != nil {
		finalLog.Error("%v", err)

		return err
	}

	finalLog.System("Vision-Service stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
