// Package haar locates faces with an OpenCV Haar cascade.
package haar

import (
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
	"gocv.io/x/gocv"
)

// DefaultCascade is the frontal face cascade shipped with OpenCV.
const DefaultCascade = "haarcascade_frontalface_default.xml"

// Detector wraps a loaded cascade classifier.
type Detector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	minSize    int
}

// New loads the cascade file. minSize drops boxes narrower than that many pixels.
func New(cascadeFile string, minSize int) (*Detector, error) {
	if err := vision.RequireFiles(cascadeFile); err != nil {
		return nil, err
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadeFile) {
		classifier.Close()
		return nil, fmt.Errorf("error reading cascade file: %v", cascadeFile)
	}
	return &Detector{classifier: classifier, minSize: minSize}, nil
}

// Locate implements vision.Locator.
func (d *Detector) Locate(img image.Image) ([]types.Face, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	rects := d.classifier.DetectMultiScale(mat)
	d.mu.Unlock()

	faces := make([]types.Face, 0, len(rects))
	for _, r := range rects {
		if r.Dx() < d.minSize {
			continue
		}
		faces = append(faces, types.Face{Box: r, Confidence: 1})
	}
	return faces, nil
}

// Close releases the classifier.
func (d *Detector) Close() error {
	return d.classifier.Close()
}
