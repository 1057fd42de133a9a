// Package capture implements the webcam capture loop: camera acquisition,
// periodic face detection against a pretrained model set, positioning
// feedback, and user-triggered still capture.
package capture

import (
	"context"
	"image"
)

// Point is a single landmark coordinate in frame pixel space.
type Point struct {
	X float64
	Y float64
}

// Box is a face bounding box in frame pixel space.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Area returns the box area in square pixels.
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// GenderEstimate is a gender label with its probability.
type GenderEstimate struct {
	Label       string
	Probability float64
}

// FaceRecord is one detected face from a single detection pass. Which fields
// are populated depends on the loaded model set; the bounding box is always
// present.
type FaceRecord struct {
	Box         Box
	Landmarks   []Point
	Expressions map[string]float64
	Age         float64
	Gender      GenderEstimate
}

// Frame is a single video frame. Bounds must be cheap; Image may decode.
type Frame interface {
	Bounds() image.Rectangle
	Image() (image.Image, error)
}

// Detector runs face detection against video frames. LoadModels must complete
// before DetectAll is called and fails if any required model is missing.
type Detector interface {
	LoadModels(ctx context.Context, modelDir string) error
	DetectAll(frame Frame) ([]FaceRecord, error)
}

// Constraints describe the requested camera stream.
type Constraints struct {
	DeviceID string
	Width    int
	Height   int
}

// StreamHandle is a live camera feed. It is owned exclusively by the capture
// loop for its active lifetime; Stop releases the device and must be safe to
// call more than once.
type StreamHandle interface {
	Frame() (Frame, error)
	Stop()
}

// MediaSource opens camera streams. RequestStream fails when the device is
// missing or permission is denied.
type MediaSource interface {
	RequestStream(ctx context.Context, c Constraints) (StreamHandle, error)
}
