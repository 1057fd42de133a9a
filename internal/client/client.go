// Package client is a Go client for the analysis HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running analysis server.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// SimilarImage is one gallery image returned by the API.
type SimilarImage struct {
	Filename   string  `json:"filename"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
	ImageData  string  `json:"image_data"`
}

// AnalysisResult is the response of the analyze and search endpoints.
type AnalysisResult struct {
	Success            bool               `json:"success"`
	SessionID          string             `json:"session_id"`
	UserName           string             `json:"user_name"`
	DominantEmotion    string             `json:"dominant_emotion"`
	EmotionConfidence  float64            `json:"emotion_confidence"`
	AllEmotions        map[string]float64 `json:"all_emotions"`
	Statement          string             `json:"statement"`
	SimilarImagesFound int                `json:"similar_images_found"`
	SimilarImages      []SimilarImage     `json:"similar_images"`
	Error              string             `json:"error"`
}

// StorageStats mirrors the storage-stats endpoint payload.
type StorageStats struct {
	TotalImages int            `json:"total_images"`
	TotalSizeMB float64        `json:"total_size_mb"`
	Users       map[string]int `json:"users"`
	Emotions    map[string]int `json:"emotions"`
}

// Session is a stored analysis session.
type Session struct {
	SessionID         string    `json:"session_id"`
	UserName          string    `json:"user_name"`
	DominantEmotion   string    `json:"dominant_emotion"`
	EmotionConfidence float64   `json:"emotion_confidence"`
	Statement         string    `json:"statement"`
	MatchCount        int       `json:"match_count"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func (c *Client) postImage(ctx context.Context, path string, imageData []byte, fields map[string]string, out any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "capture.jpg")
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling API: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// AnalyzeFace uploads a capture for full analysis and storage.
func (c *Client) AnalyzeFace(ctx context.Context, imageData []byte, userName string, privacyAgreed bool) (*AnalysisResult, error) {
	var result AnalysisResult
	err := c.postImage(ctx, "/api/v1/analyze-face", imageData, map[string]string{
		"user_name":      userName,
		"privacy_agreed": strconv.FormatBool(privacyAgreed),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Search uploads a capture for analysis without storing anything.
func (c *Client) Search(ctx context.Context, imageData []byte) (*AnalysisResult, error) {
	var result AnalysisResult
	if err := c.postImage(ctx, "/api/v1/search", imageData, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LocalImages lists gallery images, optionally filtered by emotion.
func (c *Client) LocalImages(ctx context.Context, emotion string) ([]SimilarImage, error) {
	path := "/api/v1/local-images"
	if emotion != "" {
		path += "?emotion=" + url.QueryEscape(emotion)
	}

	var result struct {
		Success bool           `json:"success"`
		Count   int            `json:"count"`
		Images  []SimilarImage `json:"images"`
		Error   string         `json:"error"`
	}
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("listing images: %s", result.Error)
	}
	return result.Images, nil
}

// StorageStats fetches storage statistics.
func (c *Client) StorageStats(ctx context.Context) (*StorageStats, error) {
	var result struct {
		Success bool          `json:"success"`
		Stats   *StorageStats `json:"stats"`
		Error   string        `json:"error"`
	}
	if err := c.getJSON(ctx, "/api/v1/storage-stats", &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("fetching stats: %s", result.Error)
	}
	return result.Stats, nil
}

// GetSession fetches a stored analysis session.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := c.getJSON(ctx, "/api/v1/sessions/"+url.PathEscape(id), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Health reports whether the API is reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/api/health", &result); err != nil {
		return err
	}
	if result.Status != "healthy" {
		return fmt.Errorf("unexpected health status %q", result.Status)
	}
	return nil
}
