package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionFeedback(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want string
	}{
		{"zero", 0, FeedbackMoveCloser},
		{"just below lower bound", 14.9, FeedbackMoveCloser},
		{"at lower bound", 15.0, FeedbackGood},
		{"middle", 50, FeedbackGood},
		{"just below upper bound", 79.9, FeedbackGood},
		{"at upper bound", 80.0, FeedbackMoveBack},
		{"full frame", 100, FeedbackMoveBack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PositionFeedback(tt.pct))
		})
	}
}
