// Package emotion classifies facial expressions in photos.
package emotion

import "context"

// Labels lists the supported emotion classes, matching FER2013.
var Labels = []string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}

// Result is the outcome of analyzing a single image.
type Result struct {
	// Dominant is the highest-scoring emotion label.
	Dominant string
	// Distribution maps every label to a score. Scores sum to 1.
	Distribution map[string]float64
	// Confidence is the score of the dominant emotion.
	Confidence float64
}

// Provider defines the interface for emotion analysis backends.
type Provider interface {
	Name() string
	// Analyze classifies the expression in the image. imagePath is a hint
	// for providers that work off filenames rather than pixels.
	Analyze(ctx context.Context, imageData []byte, imagePath string) (*Result, error)
}

// normalizeDistribution fills in missing labels, rescales scores to sum
// to 1 and picks the dominant emotion.
func normalizeDistribution(scores map[string]float64) *Result {
	dist := make(map[string]float64, len(Labels))
	var total float64
	for _, label := range Labels {
		v := scores[label]
		if v < 0 {
			v = 0
		}
		dist[label] = v
		total += v
	}

	if total > 0 {
		for label := range dist {
			dist[label] /= total
		}
	}

	dominant := "neutral"
	confidence := 0.0
	for _, label := range Labels {
		if dist[label] > confidence {
			dominant = label
			confidence = dist[label]
		}
	}

	return &Result{
		Dominant:     dominant,
		Distribution: dist,
		Confidence:   confidence,
	}
}

type chain struct {
	primary  Provider
	fallback Provider
}

// WithFallback returns a provider that tries primary first and falls back
// on any error.
func WithFallback(primary, fallback Provider) Provider {
	return &chain{primary: primary, fallback: fallback}
}

func (c *chain) Name() string {
	return c.primary.Name()
}

func (c *chain) Analyze(ctx context.Context, imageData []byte, imagePath string) (*Result, error) {
	result, err := c.primary.Analyze(ctx, imageData, imagePath)
	if err == nil {
		return result, nil
	}
	return c.fallback.Analyze(ctx, imageData, imagePath)
}
