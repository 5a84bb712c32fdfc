package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/book-expert/vision-service/internal/core"
)

// Error messages.
const (
	errFmtNonOKStatus = "server returned %s: %s"
	errFmtDecode      = "failed to decode %s response: %w"
)

// HealthStatus mirrors the /health reply.
type HealthStatus struct {
	Status     string `json:"status"`
	GlipLoaded bool   `json:"glip_loaded"`
	Device     string `json:"device"`
}

// InspectResult mirrors the /test-image reply.
type InspectResult struct {
	Success  bool                   `json:"success"`
	Objects  []core.DetectionRecord `json:"objects"`
	OCR      core.OCRResult         `json:"ocr"`
	Filename string                 `json:"filename"`
}

// analysisReply decodes both the success and the failure shape of
// /analyze-image.
type analysisReply struct {
	Success     bool                   `json:"success"`
	Objects     []core.DetectionRecord `json:"objects"`
	OCR         *core.OCRResult        `json:"ocr"`
	Description string                 `json:"description"`
	Audio       *string                `json:"audio"`
	Error       string                 `json:"error"`
}

// apiClient calls the vision-service HTTP API.
type apiClient struct {
	httpClient *http.Client
	baseURL    string
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

func (c *apiClient) Health(ctx context.Context) (HealthStatus, error) {
	var status HealthStatus

	err := c.do(ctx, http.MethodGet, "/health", nil, &status)

	return status, err
}

func (c *apiClient) ListSamples(ctx context.Context) ([]string, error) {
	var reply struct {
		Images []string `json:"images"`
	}

	err := c.do(ctx, http.MethodGet, "/list-test-images", nil, &reply)

	return reply.Images, err
}

func (c *apiClient) Analyze(ctx context.Context, req core.AnalyzeRequest) (analysisReply, error) {
	var reply analysisReply

	err := c.do(ctx, http.MethodPost, "/analyze-image", req, &reply)
	if err != nil {
		return reply, err
	}

	if !reply.Success {
		return reply, fmt.Errorf("analysis failed: %s", reply.Error)
	}

	return reply, nil
}

func (c *apiClient) TestImage(ctx context.Context, name, prompt, language string) (InspectResult, error) {
	var reply InspectResult

	body := map[string]string{"prompt": prompt, "ocr_language": language}
	err := c.do(ctx, http.MethodPost, "/test-image/"+url.PathEscape(name), body, &reply)

	return reply, err
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, target any) error {
	var body io.Reader = http.NoBody

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach vision-service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtNonOKStatus, resp.Status, bytes.TrimSpace(data))
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf(errFmtDecode, path, err)
	}

	return nil
}
