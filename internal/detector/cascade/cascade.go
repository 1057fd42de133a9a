// Package cascade implements face detection with OpenCV Haar cascades.
package cascade

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/rivion/rivion/internal/capture"
)

// FrontalFaceModel is the cascade file expected under the model directory.
const FrontalFaceModel = "haarcascade_frontalface_default.xml"

// Detector runs Haar-cascade face detection. It fills bounding boxes only;
// expression and age/gender fields require a richer model set.
type Detector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	loaded     bool
}

// New creates an unloaded detector. Call LoadModels before DetectAll.
func New() *Detector {
	return &Detector{}
}

// LoadModels loads the cascade file from modelDir. Fails if the file is
// missing or unreadable; a failed load leaves the detector unusable.
func (d *Detector) LoadModels(ctx context.Context, modelDir string) error {
	path := filepath.Join(modelDir, FrontalFaceModel)
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "cascade model file")
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return errors.Errorf("error reading cascade file: %v", path)
	}

	d.mu.Lock()
	d.classifier = classifier
	d.loaded = true
	d.mu.Unlock()
	return nil
}

// DetectAll detects faces in a single frame.
func (d *Detector) DetectAll(frame capture.Frame) ([]capture.FaceRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil, errors.New("detection models not loaded")
	}

	img, err := frame.Image()
	if err != nil {
		return nil, errors.Wrap(err, "can not read frame")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(err, "can not convert frame")
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	rects := d.classifier.DetectMultiScale(gray)
	records := make([]capture.FaceRecord, 0, len(rects))
	for _, r := range rects {
		records = append(records, capture.FaceRecord{
			Box: capture.Box{
				X:      float64(r.Min.X),
				Y:      float64(r.Min.Y),
				Width:  float64(r.Dx()),
				Height: float64(r.Dy()),
			},
		})
	}
	return records, nil
}

// Close releases the classifier.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.classifier.Close()
		d.loaded = false
	}
}
