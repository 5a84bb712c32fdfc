// Package detector adapts an open-vocabulary detection sidecar (GLIP) into
// filtered, labelled detection records.
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/vision-service/internal/core"
)

// API endpoints and paths.
const (
	apiDetect = "/v1/detect"
	apiHealth = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// ConfidenceThreshold is the score a detection must exceed to be kept,
// independent of whatever threshold the sidecar applies itself.
const ConfidenceThreshold = 0.5

const defaultDevice = "cpu"

// Error messages.
const (
	errFmtServiceNonOKStatus = "detector returned non-OK status: %s, body: %s"
	errFmtMismatchedLengths  = "detector returned %d boxes, %d scores and %d labels"
)

// ErrMalformedResponse indicates the sidecar reply could not be interpreted.
var ErrMalformedResponse = errors.New("malformed detector response")

// Request is the JSON payload sent to the detector sidecar.
type Request struct {
	// Image is the base64-encoded PNG rendering of the decoded image.
	Image string `json:"image"`
	// Prompt names the categories of interest, separated by periods.
	Prompt string `json:"prompt"`
}

// Response mirrors the raw predictions of the detector: parallel lists of
// boxes, scores and category indices in relevance order.
type Response struct {
	Boxes  [][]float64 `json:"boxes"`
	Scores []float64   `json:"scores"`
	Labels []int       `json:"labels"`
}

type healthResponse struct {
	Status string `json:"status"`
	Device string `json:"device"`
}

// Client talks to the detector sidecar. Probe must run once before the
// client is shared between requests; afterwards it is read-only.
type Client struct {
	httpClient *http.Client
	baseURL    string
	loaded     bool
	device     string
}

// NewClient creates a detector client. The client reports itself unloaded
// until Probe succeeds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		loaded:     false,
		device:     defaultDevice,
	}
}

// Probe performs the one-time initialization check against the sidecar.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for detector at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	var health healthResponse

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err == nil && health.Device != "" {
		c.device = health.Device
	}

	c.loaded = true

	return nil
}

// Loaded reports whether the detector was initialized.
func (c *Client) Loaded() bool {
	return c.loaded
}

// Device reports the compute device the detector runs on.
func (c *Client) Device() string {
	return c.device
}

// Detect sends the image and prompt to the sidecar and returns the
// normalized detections. Every error wraps core.ErrUpstreamDegraded.
func (c *Client) Detect(ctx context.Context, img *core.ImageBuffer, prompt string) ([]core.DetectionRecord, error) {
	if !c.loaded {
		return nil, fmt.Errorf("%w: %w", core.ErrUpstreamDegraded, core.ErrDetectorUnavailable)
	}

	raw, err := c.predict(ctx, img, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUpstreamDegraded, err)
	}

	records, err := Normalize(raw, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUpstreamDegraded, err)
	}

	return records, nil
}

func (c *Client) predict(ctx context.Context, img *core.ImageBuffer, prompt string) (*Response, error) {
	encoded, err := img.EncodePNG()
	if err != nil {
		return nil, err
	}

	requestBody, err := json.Marshal(Request{
		Image:  base64.StdEncoding.EncodeToString(encoded),
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiDetect, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to detector at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
	}

	var raw Response

	err = json.NewDecoder(resp.Body).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return &raw, nil
}
