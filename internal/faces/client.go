// Package faces reaches the face detection sidecar.
package faces

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

const apiFaces = "/v1/faces"

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

const errFmtServiceNonOKStatus = "face detector returned non-OK status: %s, body: %s"

// ErrNotConfigured is returned when no sidecar URL was supplied.
var ErrNotConfigured = errors.New("face detector not configured")

// Request is the JSON payload sent to the sidecar.
type Request struct {
	Image string `json:"image"`
}

// Response is the sidecar reply.
type Response struct {
	Faces []core.Face `json:"faces"`
}

// Client implements core.FaceDetector over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a face detector client. An empty baseURL yields a client
// whose every call degrades.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// DetectFaces returns the faces found in img. Every error wraps
// core.ErrUpstreamDegraded.
func (c *Client) DetectFaces(ctx context.Context, img *core.ImageBuffer) ([]core.Face, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrUpstreamDegraded, ErrNotConfigured)
	}

	found, err := c.detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUpstreamDegraded, err)
	}

	return found, nil
}

func (c *Client) detect(ctx context.Context, img *core.ImageBuffer) ([]core.Face, error) {
	encoded, err := img.EncodePNG()
	if err != nil {
		return nil, err
	}

	requestBody, err := json.Marshal(Request{Image: base64.StdEncoding.EncodeToString(encoded)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiFaces, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to face detector at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
	}

	var decoded Response

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode face detector response: %w", err)
	}

	if decoded.Faces == nil {
		return []core.Face{}, nil
	}

	return decoded.Faces, nil
}
