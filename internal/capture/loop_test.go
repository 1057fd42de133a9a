package capture

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	bounds image.Rectangle
	imgErr error
}

func (f *fakeFrame) Bounds() image.Rectangle { return f.bounds }

func (f *fakeFrame) Image() (image.Image, error) {
	if f.imgErr != nil {
		return nil, f.imgErr
	}
	return image.NewRGBA(f.bounds), nil
}

type fakeDetector struct {
	loadErr   error
	detect    func() ([]FaceRecord, error)
	loadCalls atomic.Int64
	calls     atomic.Int64
}

func (d *fakeDetector) LoadModels(ctx context.Context, modelDir string) error {
	d.loadCalls.Add(1)
	return d.loadErr
}

func (d *fakeDetector) DetectAll(frame Frame) ([]FaceRecord, error) {
	d.calls.Add(1)
	if d.detect != nil {
		return d.detect()
	}
	return nil, nil
}

type fakeStream struct {
	frame     Frame
	frameErr  error
	stopCalls atomic.Int64
}

func (s *fakeStream) Frame() (Frame, error) {
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return s.frame, nil
}

func (s *fakeStream) Stop() { s.stopCalls.Add(1) }

type fakeSource struct {
	request  func() (StreamHandle, error)
	requests atomic.Int64
}

func (s *fakeSource) RequestStream(ctx context.Context, c Constraints) (StreamHandle, error) {
	s.requests.Add(1)
	if s.request != nil {
		return s.request()
	}
	return nil, errors.New("no stream configured")
}

// faceOfPercentage builds one face record covering the given share of a
// 640x480 frame.
func faceOfPercentage(pct float64) FaceRecord {
	area := pct / 100 * 640 * 480
	return FaceRecord{Box: Box{X: 0, Y: 0, Width: area / 100, Height: 100}}
}

func testFrame() *fakeFrame {
	return &fakeFrame{bounds: image.Rect(0, 0, 640, 480)}
}

// startedLoop brings up a loop with a controllable detector and a very long
// poll interval so tests drive polls by hand.
func startedLoop(t *testing.T, detector *fakeDetector) (*Loop, *fakeStream) {
	t.Helper()
	stream := &fakeStream{frame: testFrame()}
	source := &fakeSource{request: func() (StreamHandle, error) { return stream, nil }}
	loop := New(detector, source, Options{PollInterval: time.Hour})
	require.NoError(t, loop.Start(context.Background()))
	t.Cleanup(loop.Stop)
	return loop, stream
}

func TestEmptyDetectionBlocksCapture(t *testing.T) {
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) { return nil, nil }}
	loop, _ := startedLoop(t, detector)

	loop.poll()

	state := loop.State()
	assert.False(t, state.FaceDetected)
	assert.Equal(t, 0, state.FaceCount)

	captured := false
	loop.opts.OnCapture = func(string) { captured = true }
	_, err := loop.Capture()
	require.ErrorIs(t, err, ErrNoFaceDetected)
	assert.False(t, captured, "OnCapture must not fire on failure")
}

func TestDetectionSetsFaceStateAndFeedback(t *testing.T) {
	faces := []FaceRecord{faceOfPercentage(50)}
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) { return faces, nil }}
	loop, _ := startedLoop(t, detector)

	loop.poll()

	state := loop.State()
	assert.True(t, state.FaceDetected)
	assert.Equal(t, 1, state.FaceCount)
	assert.InDelta(t, 50, state.FacePercentage, 0.1)
	assert.Equal(t, FeedbackGood, state.Feedback)
}

func TestMultiFaceFeedbackFollowsDetectionOrder(t *testing.T) {
	faces := []FaceRecord{faceOfPercentage(50), faceOfPercentage(5)}
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) { return faces, nil }}
	loop, _ := startedLoop(t, detector)

	loop.poll()

	// The last face in detection order decides the feedback.
	state := loop.State()
	assert.Equal(t, 2, state.FaceCount)
	assert.Equal(t, FeedbackMoveCloser, state.Feedback)
}

func TestCaptureKeepsStreamingState(t *testing.T) {
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) {
		return []FaceRecord{faceOfPercentage(30)}, nil
	}}
	loop, stream := startedLoop(t, detector)
	loop.poll()

	var callbacks int
	loop.opts.OnCapture = func(encoded string) { callbacks++ }

	encoded, err := loop.Capture()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "data:image/jpeg;base64,"))
	assert.Equal(t, 1, callbacks)

	state := loop.State()
	assert.Equal(t, PhaseStreaming, state.Phase)
	assert.True(t, state.FaceDetected, "capture must not alter detection state")
	assert.Equal(t, int64(0), stream.stopCalls.Load())

	// Polling still works after a capture.
	loop.poll()
	assert.True(t, loop.State().FaceDetected)
}

func TestCaptureEncodingFailure(t *testing.T) {
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) {
		return []FaceRecord{faceOfPercentage(30)}, nil
	}}
	loop, stream := startedLoop(t, detector)
	loop.poll()

	stream.frame = &fakeFrame{bounds: image.Rect(0, 0, 640, 480), imgErr: errors.New("draw failed")}

	_, err := loop.Capture()
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)

	// The loop survives the failed capture.
	assert.Equal(t, PhaseStreaming, loop.State().Phase)
}

func TestStopIsIdempotent(t *testing.T) {
	detector := &fakeDetector{}
	loop, stream := startedLoop(t, detector)

	loop.Stop()
	loop.Stop()

	assert.Equal(t, int64(1), stream.stopCalls.Load())
	state := loop.State()
	assert.Equal(t, PhaseStopped, state.Phase)
	assert.False(t, state.FaceDetected)

	_, err := loop.Capture()
	assert.ErrorIs(t, err, ErrNoFaceDetected)
}

func TestModelLoadFailureNeverRequestsCamera(t *testing.T) {
	detector := &fakeDetector{loadErr: errors.New("weights missing")}
	source := &fakeSource{}
	loop := New(detector, source, Options{})

	err := loop.Start(context.Background())
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)

	assert.Equal(t, int64(0), source.requests.Load())
	assert.Equal(t, PhaseFailed, loop.State().Phase)
}

func TestCameraDeniedNeverStartsPolling(t *testing.T) {
	detector := &fakeDetector{}
	source := &fakeSource{request: func() (StreamHandle, error) {
		return nil, errors.New("permission denied")
	}}
	loop := New(detector, source, Options{PollInterval: time.Millisecond})

	err := loop.Start(context.Background())
	var camErr *CameraAccessError
	require.ErrorAs(t, err, &camErr)
	assert.Equal(t, PhaseFailed, loop.State().Phase)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), detector.calls.Load())
}

func TestPollSurvivesDetectorError(t *testing.T) {
	var n atomic.Int64
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) {
		if n.Add(1) == 1 {
			return nil, errors.New("bad frame")
		}
		return []FaceRecord{faceOfPercentage(30)}, nil
	}}
	loop, _ := startedLoop(t, detector)

	loop.poll()
	state := loop.State()
	assert.Equal(t, 1, state.PollErrors)
	assert.Equal(t, PhaseStreaming, state.Phase)

	loop.poll()
	state = loop.State()
	assert.True(t, state.FaceDetected)
	assert.Equal(t, int64(2), detector.calls.Load())
}

func TestOverlappingPollIsSkipped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) {
		close(entered)
		<-release
		return nil, nil
	}}
	loop, _ := startedLoop(t, detector)

	go loop.poll()
	<-entered

	// A second tick while the first pass is in flight must be a no-op.
	loop.poll()
	assert.Equal(t, int64(1), detector.calls.Load())

	close(release)
}

func TestTimerDrivenPolling(t *testing.T) {
	detector := &fakeDetector{detect: func() ([]FaceRecord, error) {
		return []FaceRecord{faceOfPercentage(30)}, nil
	}}
	stream := &fakeStream{frame: testFrame()}
	source := &fakeSource{request: func() (StreamHandle, error) { return stream, nil }}
	loop := New(detector, source, Options{PollInterval: 5 * time.Millisecond})
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	assert.Eventually(t, func() bool {
		return detector.calls.Load() >= 2 && loop.State().FaceDetected
	}, time.Second, 5*time.Millisecond)
}

func TestStopDuringStartupReleasesStream(t *testing.T) {
	stream := &fakeStream{frame: testFrame()}
	var loop *Loop
	source := &fakeSource{request: func() (StreamHandle, error) {
		// Teardown races with acquisition; the handle must still be released.
		loop.Stop()
		return stream, nil
	}}
	loop = New(&fakeDetector{}, source, Options{})

	require.NoError(t, loop.Start(context.Background()))
	assert.Equal(t, int64(1), stream.stopCalls.Load())
	assert.Equal(t, PhaseStopped, loop.State().Phase)
}

func TestStopBeforeStart(t *testing.T) {
	detector := &fakeDetector{}
	source := &fakeSource{}
	loop := New(detector, source, Options{})

	loop.Stop()
	require.NoError(t, loop.Start(context.Background()))

	assert.Equal(t, int64(0), detector.loadCalls.Load())
	assert.Equal(t, int64(0), source.requests.Load())
}
