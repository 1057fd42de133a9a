package emotion

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

//go:embed prompts/emotion_analysis.txt
var emotionAnalysisPrompt string

const openAIModel = openai.ChatModelGPT4_1Mini

// OpenAIProvider classifies expressions with an OpenAI vision model.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Name() string {
	return openAIModel
}

type modelEmotionResponse struct {
	Emotions map[string]float64 `json:"emotions"`
}

func (p *OpenAIProvider) Analyze(ctx context.Context, imageData []byte, imagePath string) (*Result, error) {
	const maxRetries = 3

	// Resize image to max 800px to save costs
	resizedData, err := resizeForUpload(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	base64Image := base64.StdEncoding.EncodeToString(resizedData)
	imageURL := "data:image/jpeg;base64," + base64Image

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(emotionAnalysisPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart("Score the emotions in this face."),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	var lastError error

	for range maxRetries {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openAIModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(200),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from OpenAI")
		}

		content := resp.Choices[0].Message.Content

		var parsed modelEmotionResponse
		if err := json.Unmarshal([]byte(content), &parsed); err != nil || len(parsed.Emotions) == 0 {
			lastError = err
			if lastError == nil {
				lastError = errors.New("response contains no emotion scores")
			}

			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(content),
						},
					},
				},
				openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(fmt.Sprintf("Invalid response: %v. Return the JSON object described in the instructions.", lastError)),
						},
					},
				},
			)
			continue
		}

		return normalizeDistribution(parsed.Emotions), nil
	}

	return nil, fmt.Errorf("failed to parse emotion JSON after %d attempts: %w", maxRetries, lastError)
}
