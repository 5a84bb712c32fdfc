// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/book-expert/vision-service/internal/config"
	"github.com/book-expert/vision-service/internal/core"
	"github.com/book-expert/vision-service/internal/pipeline"
	"github.com/gorilla/mux"
)

// Route paths.
const (
	routeAnalyze    = "/analyze-image"
	routeHealth     = "/health"
	routeTestImage  = "/test-image/{filename}"
	routeListImages = "/list-test-images"
	routeFaces      = "/recognize_face"
)

// Analyzer is the part of the pipeline the handlers depend on.
type Analyzer interface {
	AnalyzeWithError(ctx context.Context, req core.AnalyzeRequest) (core.AnalysisResult, error)
	Inspect(ctx context.Context, img *core.ImageBuffer, prompt, ocrLanguage string) (pipeline.Findings, error)
	DecodeBytes(ctx context.Context, data []byte) (*core.ImageBuffer, error)
}

// DetectorStatus reports the outcome of the detector's startup probe.
type DetectorStatus interface {
	Loaded() bool
	Device() string
}

// Server holds the handlers' collaborators. All of them are constructed at
// startup and shared read-only between requests.
type Server struct {
	analyzer Analyzer
	detector DetectorStatus
	samples  core.ImageStore
	faces    core.FaceDetector
	log      *logger.Logger
	cfg      config.ServerConfig
}

// New creates a server.
func New(
	analyzer Analyzer,
	detector DetectorStatus,
	samples core.ImageStore,
	faces core.FaceDetector,
	log *logger.Logger,
	cfg config.ServerConfig,
) *Server {
	return &Server{
		analyzer: analyzer,
		detector: detector,
		samples:  samples,
		faces:    faces,
		log:      log,
		cfg:      cfg,
	}
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	limit := RateLimitMiddleware(s.cfg.RequestsPerSecond, s.cfg.Burst)

	router.Handle(routeAnalyze, limit(http.HandlerFunc(s.handleAnalyze))).Methods(http.MethodPost)
	router.HandleFunc(routeHealth, s.handleHealth).Methods(http.MethodGet)
	router.Handle(routeTestImage, limit(http.HandlerFunc(s.handleTestImage))).Methods(http.MethodPost)
	router.HandleFunc(routeListImages, s.handleListImages).Methods(http.MethodGet)
	router.Handle(routeFaces, limit(http.HandlerFunc(s.handleRecognizeFace))).Methods(http.MethodPost)

	return Chain(router,
		CORSMiddleware(),
		RequestIDMiddleware(),
		AccessLogMiddleware(s.log),
		RecoveryMiddleware(s.log),
		BodyLimitMiddleware(s.cfg.MaxBodyBytes),
	)
}

// HTTPServer wraps Handler in an http.Server using the configured timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  config.Timeout(s.cfg.ReadTimeoutSecs),
		WriteTimeout: config.Timeout(s.cfg.WriteTimeoutSecs),
	}
}

func respondJSON(w http.ResponseWriter, log *logger.Logger, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(data)
	if err != nil && log != nil {
		log.Warn("Failed to write response: %v", err)
	}
}

func respondError(w http.ResponseWriter, log *logger.Logger, message string, status int) {
	respondJSON(w, log, map[string]string{"error": message}, status)
}
