// Package ssd locates faces with OpenCV's res10 SSD Caffe model.
package ssd

import (
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
	"gocv.io/x/gocv"
)

const (
	// DefaultPrototxt and DefaultWeights are the file names OpenCV ships the model under.
	DefaultPrototxt = "deploy.prototxt.txt"
	DefaultWeights  = "res10_300x300_ssd_iter_140000.caffemodel"

	// DefaultConfidence drops detections at or below 50%.
	DefaultConfidence = 0.5
)

var (
	inputSize = image.Pt(300, 300)
	meanBGR   = gocv.NewScalar(104, 177, 123, 0)
)

// Detector wraps a loaded SSD network. Forward passes are serialized.
type Detector struct {
	mu         sync.Mutex
	net        gocv.Net
	confidence float32
}

// New loads the network. A missing model file is reported as types.ErrModelMissing.
func New(prototxt, weights string, confidence float64) (*Detector, error) {
	if err := vision.RequireFiles(prototxt, weights); err != nil {
		return nil, err
	}
	net := gocv.ReadNetFromCaffe(prototxt, weights)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load %s", types.ErrModelMissing, weights)
	}
	if confidence <= 0 {
		confidence = DefaultConfidence
	}
	return &Detector{net: net, confidence: float32(confidence)}, nil
}

// Locate implements vision.Locator. Face.Confidence holds the network score.
func (d *Detector) Locate(img image.Image) ([]types.Face, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()
	return d.LocateMat(mat), nil
}

// LocateMat runs detection on a BGR Mat straight from a capture device.
func (d *Detector) LocateMat(mat gocv.Mat) []types.Face {
	blob := gocv.BlobFromImage(mat, 1.0, inputSize, meanBGR, false, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	d.mu.Unlock()
	defer prob.Close()

	cols, rows := float32(mat.Cols()), float32(mat.Rows())
	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())

	// Each detection is 7 floats: [batch, class, confidence, x1, y1, x2, y2]
	var faces []types.Face
	for i := 0; i+6 < prob.Total(); i += 7 {
		confidence := prob.GetFloatAt(0, i+2)
		if confidence <= d.confidence {
			continue
		}
		box := image.Rect(
			int(prob.GetFloatAt(0, i+3)*cols),
			int(prob.GetFloatAt(0, i+4)*rows),
			int(prob.GetFloatAt(0, i+5)*cols),
			int(prob.GetFloatAt(0, i+6)*rows),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}
		faces = append(faces, types.Face{Box: box, Confidence: confidence})
	}
	return faces
}

// Close releases the network.
func (d *Detector) Close() error {
	return d.net.Close()
}
