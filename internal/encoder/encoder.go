// Package encoder computes face encodings using the encoding sidecar
// service. The service wraps a pretrained recognition model and is invoked
// as a black box over HTTP.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const (
	defaultEncoderURL   = "http://localhost:8000"
	defaultEncoderModel = "arcface" // model name for reference only
)

// Client talks to the face-encoding server.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a new encoding client.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultEncoderURL
	}
	if model == "" {
		model = defaultEncoderModel
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

// FaceEncoding is one face found in an image, with its encoding vector.
type FaceEncoding struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Encoding  []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64   `json:"det_score"`
}

// Area returns the bounding box area, used to pick the primary face.
func (f FaceEncoding) Area() float64 {
	if len(f.BBox) != 4 {
		return 0
	}
	w := f.BBox[2] - f.BBox[0]
	h := f.BBox[3] - f.BBox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// faceResponse represents the response from the face encoding endpoint.
type faceResponse struct {
	FacesCount int            `json:"faces_count"`
	Faces      []FaceEncoding `json:"faces"`
	Model      string         `json:"model"`
}

// ExtractEncodings extracts one encoding per face found in the image. An
// image without faces yields an empty slice and no error.
func (c *Client) ExtractEncodings(ctx context.Context, imageData []byte) ([]FaceEncoding, error) {
	body, err := c.postMultipartImage(ctx, "/encode/faces", imageData)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.Faces, nil
}

// Model returns the model name being used.
func (c *Client) Model() string {
	return c.model
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The part carries an explicit Content-Type
// based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
