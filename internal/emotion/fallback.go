package emotion

import (
	"context"
	"strings"
)

// Keyword heuristic scores. The matched emotion gets the high score, the
// rest share the low one.
const (
	fallbackHighScore = 0.65
	fallbackLowScore  = 0.05
)

var emotionKeywords = []struct {
	emotion  string
	keywords []string
}{
	{"happy", []string{"happy", "smile", "joy", "cheer"}},
	{"sad", []string{"sad", "cry", "sorrow"}},
	{"angry", []string{"angry", "mad", "furious"}},
	{"fear", []string{"fear", "scared", "afraid"}},
	{"surprise", []string{"surprise", "shock"}},
	{"disgust", []string{"disgust", "disgusted"}},
	{"neutral", []string{"neutral", "normal"}},
}

// FallbackProvider guesses the emotion from keywords in the image path.
// Gallery folders are organized by emotion name, so this works offline
// without any model.
type FallbackProvider struct{}

func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{}
}

func (p *FallbackProvider) Name() string {
	return "fallback"
}

func (p *FallbackProvider) Analyze(ctx context.Context, imageData []byte, imagePath string) (*Result, error) {
	pathLower := strings.ToLower(imagePath)

	detected := "neutral"
	for _, entry := range emotionKeywords {
		matched := false
		for _, keyword := range entry.keywords {
			if strings.Contains(pathLower, keyword) {
				matched = true
				break
			}
		}
		if matched {
			detected = entry.emotion
			break
		}
	}

	// Raw scores are reported as-is so confidence reads as 65%.
	dist := make(map[string]float64, len(Labels))
	for _, label := range Labels {
		dist[label] = fallbackLowScore
	}
	dist[detected] = fallbackHighScore

	return &Result{
		Dominant:     detected,
		Distribution: dist,
		Confidence:   fallbackHighScore,
	}, nil
}
