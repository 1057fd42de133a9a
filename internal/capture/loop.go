package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the lifecycle stage of a capture loop.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseModelsLoading
	PhaseCameraStarting
	PhaseStreaming
	PhaseStopped
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseModelsLoading:
		return "models-loading"
	case PhaseCameraStarting:
		return "camera-starting"
	case PhaseStreaming:
		return "streaming"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the loop, replaced atomically once per poll.
type State struct {
	Phase          Phase
	FaceDetected   bool
	FaceCount      int
	FacePercentage float64
	Feedback       string
	PollErrors     int
}

// Options configure a capture loop.
type Options struct {
	// ModelDir is passed to Detector.LoadModels.
	ModelDir string
	// PollInterval is the detection cadence. Defaults to 100ms.
	PollInterval time.Duration
	// JPEGQuality is the still-capture encode quality. Defaults to 95.
	JPEGQuality int
	// Constraints are passed to MediaSource.RequestStream.
	Constraints Constraints
	// OnCapture, when set, is invoked exactly once per successful Capture
	// with the encoded image. Never invoked on failure.
	OnCapture func(encoded string)
}

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultJPEGQuality  = 95
)

// Loop drives the camera stream and the detection poll cycle. Create with
// New, bring up with Start, tear down with Stop.
type Loop struct {
	detector Detector
	source   MediaSource
	opts     Options

	mu      sync.Mutex
	state   State
	stream  StreamHandle
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
	inFlight atomic.Bool
}

// New creates a capture loop. The loop does nothing until Start is called.
func New(detector Detector, source MediaSource, opts Options) *Loop {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	return &Loop{
		detector: detector,
		source:   source,
		opts:     opts,
		state:    State{Phase: PhaseIdle},
		done:     make(chan struct{}),
	}
}

// Start loads the detection models, acquires the camera stream and starts
// the poll timer. Model-load failure returns *ModelLoadError without ever
// requesting a camera; camera failure returns *CameraAccessError without
// starting the poll timer. A loop stopped during startup releases any
// partially acquired stream and returns nil.
func (l *Loop) Start(ctx context.Context) error {
	if l.isStopped() {
		return nil
	}

	l.setPhase(PhaseModelsLoading)
	if err := l.detector.LoadModels(ctx, l.opts.ModelDir); err != nil {
		l.setPhase(PhaseFailed)
		return &ModelLoadError{Err: err}
	}
	if l.isStopped() {
		return nil
	}

	l.setPhase(PhaseCameraStarting)
	stream, err := l.source.RequestStream(ctx, l.opts.Constraints)
	if err != nil {
		l.setPhase(PhaseFailed)
		return &CameraAccessError{Err: err}
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		stream.Stop()
		return nil
	}
	l.stream = stream
	l.state.Phase = PhaseStreaming
	l.mu.Unlock()

	ticker := time.NewTicker(l.opts.PollInterval)
	go l.run(ticker)
	return nil
}

func (l *Loop) run(ticker *time.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.poll()
		}
	}
}

// poll runs one detection pass. The cadence is fixed by the timer, so a pass
// that is still in flight when the next tick fires causes that tick to be
// skipped rather than overlapping. A failing pass leaves the previous
// detection state in place and never terminates the loop.
func (l *Loop) poll() {
	if !l.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer l.inFlight.Store(false)

	l.mu.Lock()
	stream := l.stream
	l.mu.Unlock()
	if stream == nil {
		return
	}

	frame, err := stream.Frame()
	if err != nil {
		l.recordPollError()
		return
	}
	faces, err := l.detector.DetectAll(frame)
	if err != nil {
		l.recordPollError()
		return
	}

	bounds := frame.Bounds()
	frameArea := float64(bounds.Dx() * bounds.Dy())

	var pct float64
	var feedback string
	for _, f := range faces {
		// Feedback is recomputed per face in detection order, so with
		// several faces the last one wins.
		// TODO: key feedback off the largest face instead of detection order.
		if frameArea > 0 {
			pct = f.Box.Area() / frameArea * 100
		}
		feedback = PositionFeedback(pct)
	}

	l.mu.Lock()
	if l.state.Phase == PhaseStreaming {
		l.state.FaceDetected = len(faces) > 0
		l.state.FaceCount = len(faces)
		l.state.FacePercentage = pct
		l.state.Feedback = feedback
	}
	l.mu.Unlock()
}

func (l *Loop) recordPollError() {
	l.mu.Lock()
	l.state.PollErrors++
	l.mu.Unlock()
}

// Capture encodes the current video frame as a base64 JPEG data URL at the
// video's native resolution. It fails with ErrNoFaceDetected unless the most
// recent poll saw at least one face. The stream stays active and polling
// continues regardless of the outcome.
func (l *Loop) Capture() (string, error) {
	l.mu.Lock()
	stream := l.stream
	detected := l.state.Phase == PhaseStreaming && l.state.FaceDetected
	l.mu.Unlock()

	if stream == nil || !detected {
		return "", ErrNoFaceDetected
	}

	frame, err := stream.Frame()
	if err != nil {
		return "", &EncodingError{Err: err}
	}
	img, err := frame.Image()
	if err != nil {
		return "", &EncodingError{Err: err}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: l.opts.JPEGQuality}); err != nil {
		return "", &EncodingError{Err: err}
	}

	encoded := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	if l.opts.OnCapture != nil {
		l.opts.OnCapture(encoded)
	}
	return encoded, nil
}

// State returns a snapshot of the loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stop cancels the poll timer and releases the stream handle. Safe to call
// multiple times and at any lifecycle stage, including mid-startup.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		l.stopped = true
		stream := l.stream
		l.stream = nil
		l.state.Phase = PhaseStopped
		l.state.FaceDetected = false
		l.state.FaceCount = 0
		l.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
	})
}

func (l *Loop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	if !l.stopped {
		l.state.Phase = p
	}
	l.mu.Unlock()
}
