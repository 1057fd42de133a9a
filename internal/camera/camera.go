// Package camera provides a webcam-backed media source for the capture loop.
package camera

import (
	"context"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/rivion/rivion/internal/capture"
)

const readRetryDelay = 10 * time.Millisecond

// Source opens webcam streams via the platform camera API.
type Source struct{}

// New creates a webcam media source.
func New() *Source {
	return &Source{}
}

// RequestStream opens the camera device and starts a background reader that
// keeps the most recent frame available. The first frame is read before
// returning so a stream handle is only ever handed out live.
func (s *Source) RequestStream(ctx context.Context, c capture.Constraints) (capture.StreamHandle, error) {
	device := c.DeviceID
	if device == "" {
		device = "0"
	}

	var vc *gocv.VideoCapture
	var err error
	if id, convErr := strconv.Atoi(device); convErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.OpenVideoCapture(device)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can not open camera device %s", device)
	}

	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}

	st := &stream{
		vc:     vc,
		mat:    gocv.NewMat(),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if ok := vc.Read(&st.mat); !ok || st.mat.Empty() {
		st.mat.Close()
		vc.Close()
		return nil, errors.Errorf("camera device %s opened but produced no frames", device)
	}

	go st.reader()
	return st, nil
}

// stream holds the live camera feed. Owned exclusively by one capture loop.
type stream struct {
	vc *gocv.VideoCapture

	mu     sync.Mutex
	mat    gocv.Mat
	closed bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func (s *stream) reader() {
	defer close(s.done)

	buf := gocv.NewMat()
	defer buf.Close()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if ok := s.vc.Read(&buf); !ok || buf.Empty() {
			time.Sleep(readRetryDelay)
			continue
		}

		s.mu.Lock()
		if !s.closed {
			buf.CopyTo(&s.mat)
		}
		s.mu.Unlock()
	}
}

// Frame returns the most recently read frame, decoded to an image.
func (s *stream) Frame() (capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("stream is stopped")
	}
	if s.mat.Empty() {
		return nil, errors.New("no frame available yet")
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "can not decode frame")
	}
	return &imageFrame{img: img}, nil
}

// Stop releases the device. Idempotent; the reader goroutine is drained
// before the capture handle is closed.
func (s *stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done

		s.mu.Lock()
		s.closed = true
		s.mat.Close()
		s.mu.Unlock()

		s.vc.Close()
	})
}

type imageFrame struct {
	img image.Image
}

func (f *imageFrame) Bounds() image.Rectangle { return f.img.Bounds() }

func (f *imageFrame) Image() (image.Image, error) { return f.img, nil }
