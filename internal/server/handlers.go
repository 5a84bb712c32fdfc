package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/book-expert/vision-service/internal/core"
	"github.com/gorilla/mux"
)

// Response messages.
const (
	msgImageNotFound = "Image not found"
	msgNoImageFile   = "No image file provided"
	msgImageReceived = "Image received successfully. Ready for processing."
	msgInvalidBody   = "invalid request body"
	msgBodyTooLarge  = "request body too large"
	statusHealthy    = "healthy"
	formFieldImage   = "image"
)

// Log messages.
const (
	logAnalyzeFailed = "Analysis failed [%s]: %v"
	logFaceDegraded  = "Face detection degraded, returning no faces: %v"
	logSampleFailed  = "Sample image '%s' failed: %v"
	logListingFailed = "Listing sample images failed: %v"
)

const multipartMemoryCap = 8 << 20

type healthResponse struct {
	Status     string `json:"status"`
	GlipLoaded bool   `json:"glip_loaded"`
	Device     string `json:"device"`
}

type testImageResponse struct {
	Success  bool                   `json:"success"`
	Objects  []core.DetectionRecord `json:"objects"`
	OCR      core.OCRResult         `json:"ocr"`
	Filename string                 `json:"filename"`
}

type listImagesResponse struct {
	Images []string `json:"images"`
}

type faceResponse struct {
	Message  string      `json:"message"`
	Filename string      `json:"filename"`
	Faces    []core.Face `json:"faces"`
}

// StatusFor maps a pipeline error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req core.AnalyzeRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		status, message := bodyErrorStatus(err)
		respondJSON(w, s.log, core.FailedResult(errors.New(message)), status)

		return
	}

	result, err := s.analyzer.AnalyzeWithError(r.Context(), req)
	if err != nil {
		s.log.Error(logAnalyzeFailed, RequestID(r.Context()), err)
		respondJSON(w, s.log, result, StatusFor(err))

		return
	}

	respondJSON(w, s.log, result, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, s.log, healthResponse{
		Status:     statusHealthy,
		GlipLoaded: s.detector.Loaded(),
		Device:     s.detector.Device(),
	}, http.StatusOK)
}

func (s *Server) handleTestImage(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	data, err := s.samples.Fetch(r.Context(), filename)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondError(w, s.log, msgImageNotFound, http.StatusNotFound)

			return
		}

		s.log.Error(logSampleFailed, filename, err)
		respondError(w, s.log, err.Error(), http.StatusInternalServerError)

		return
	}

	req, err := decodeTestImageParams(r.Body)
	if err != nil {
		status, message := bodyErrorStatus(err)
		respondError(w, s.log, message, status)

		return
	}

	img, err := s.analyzer.DecodeBytes(r.Context(), data)
	if err != nil {
		s.log.Error(logSampleFailed, filename, err)
		respondError(w, s.log, err.Error(), http.StatusInternalServerError)

		return
	}

	findings, err := s.analyzer.Inspect(r.Context(), img, req.Prompt, req.OCRLanguage)
	if err != nil {
		s.log.Error(logSampleFailed, filename, err)
		respondError(w, s.log, err.Error(), StatusFor(err))

		return
	}

	respondJSON(w, s.log, testImageResponse{
		Success:  true,
		Objects:  findings.Objects,
		OCR:      findings.OCR,
		Filename: filename,
	}, http.StatusOK)
}

// decodeTestImageParams reads the optional prompt and ocr_language body.
// An empty body selects the defaults.
func decodeTestImageParams(body io.Reader) (core.AnalyzeRequest, error) {
	var req core.AnalyzeRequest

	err := json.NewDecoder(body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}

	return req.WithDefaults(), nil
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	names, err := s.samples.List(r.Context())
	if err != nil {
		s.log.Error(logListingFailed, err)
		respondError(w, s.log, err.Error(), http.StatusInternalServerError)

		return
	}

	respondJSON(w, s.log, listImagesResponse{Images: names}, http.StatusOK)
}

func (s *Server) handleRecognizeFace(w http.ResponseWriter, r *http.Request) {
	err := r.ParseMultipartForm(multipartMemoryCap)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		status, message := bodyErrorStatus(err)
		respondError(w, s.log, message, status)

		return
	}

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		respondError(w, s.log, msgNoImageFile, http.StatusBadRequest)

		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		status, message := bodyErrorStatus(err)
		respondError(w, s.log, message, status)

		return
	}

	img, err := s.analyzer.DecodeBytes(r.Context(), data)
	if err != nil {
		respondError(w, s.log, err.Error(), http.StatusBadRequest)

		return
	}

	found, err := s.faces.DetectFaces(r.Context(), img)
	if err != nil {
		s.log.Warn(logFaceDegraded, err)

		found = []core.Face{}
	}

	respondJSON(w, s.log, faceResponse{
		Message:  msgImageReceived,
		Filename: header.Filename,
		Faces:    found,
	}, http.StatusOK)
}

func bodyErrorStatus(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge, msgBodyTooLarge
	}

	return http.StatusBadRequest, fmt.Sprintf("%s: %v", msgInvalidBody, err)
}
