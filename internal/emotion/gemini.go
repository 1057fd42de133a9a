package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiProvider classifies expressions with a Gemini vision model.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) Analyze(ctx context.Context, imageData []byte, imagePath string) (*Result, error) {
	resizedData, err := resizeForUpload(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: emotionAnalysisPrompt},
				{InlineData: &genai.Blob{Data: resizedData, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	content := result.Text()
	if content == "" {
		return nil, errors.New("no response from Gemini")
	}

	var parsed modelEmotionResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse emotion JSON: %w", err)
	}
	if len(parsed.Emotions) == 0 {
		return nil, errors.New("response contains no emotion scores")
	}

	return normalizeDistribution(parsed.Emotions), nil
}
