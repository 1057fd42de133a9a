package capture

import "errors"

// ErrNoFaceDetected is returned by Capture when the most recent detection
// pass saw no face. The loop keeps polling; the caller should retry.
var ErrNoFaceDetected = errors.New("no face detected")

// ModelLoadError means the detection model set could not be loaded. Terminal
// for this loop instance; the caller must create a fresh one.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return "loading detection models: " + e.Err.Error()
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// CameraAccessError means the camera stream could not be acquired (missing
// device or permission denied). Terminal for this session.
type CameraAccessError struct {
	Err error
}

func (e *CameraAccessError) Error() string {
	return "acquiring camera stream: " + e.Err.Error()
}

func (e *CameraAccessError) Unwrap() error { return e.Err }

// EncodingError means a still frame could not be drawn or encoded. The
// stream and the poll timer are unaffected.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return "encoding captured frame: " + e.Err.Error()
}

func (e *EncodingError) Unwrap() error { return e.Err }
