package emotion

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
	"time"
)

// DeepFaceProvider calls a DeepFace sidecar over HTTP. The sidecar returns
// per-emotion percentages in the 0-100 range.
type DeepFaceProvider struct {
	baseURL string
	client  *http.Client
}

func NewDeepFaceProvider(baseURL string) *DeepFaceProvider {
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}
	return &DeepFaceProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *DeepFaceProvider) Name() string {
	return "deepface"
}

type deepfaceResponse struct {
	Emotions map[string]float64 `json:"emotions"`
}

func (p *DeepFaceProvider) Analyze(ctx context.Context, imageData []byte, imagePath string) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="face.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("writing image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze/emotion", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling emotion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("emotion service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed deepfaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding emotion response: %w", err)
	}
	if len(parsed.Emotions) == 0 {
		return nil, fmt.Errorf("emotion service returned no predictions")
	}

	// Percentages arrive in the 0-100 range.
	scores := make(map[string]float64, len(parsed.Emotions))
	for label, v := range parsed.Emotions {
		scores[strings.ToLower(label)] = v / 100.0
	}

	return normalizeDistribution(scores), nil
}
