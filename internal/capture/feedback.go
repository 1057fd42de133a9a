package capture

// Positioning feedback shown to the user while streaming.
const (
	FeedbackMoveCloser = "move closer"
	FeedbackGood       = "good positioning"
	FeedbackMoveBack   = "move back"
)

// Face-to-frame area thresholds, in percent.
const (
	minFacePercentage = 15.0
	maxFacePercentage = 80.0
)

// PositionFeedback classifies the face-to-frame area ratio (in percent) into
// positioning guidance. Below 15% the face is too small, at 80% or above it
// fills too much of the frame.
func PositionFeedback(facePercentage float64) string {
	switch {
	case facePercentage < minFacePercentage:
		return FeedbackMoveCloser
	case facePercentage >= maxFacePercentage:
		return FeedbackMoveBack
	default:
		return FeedbackGood
	}
}
