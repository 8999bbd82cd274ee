// Package dlib computes 128-d face descriptors with dlib through go-face.
// The recognizer needs shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat
// in its models directory.
package dlib

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"sync"

	face "github.com/Kagami/go-face"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
)

// ModelFiles are the dlib models go-face loads from the models directory.
var ModelFiles = []string{
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
	"mmod_human_face_detector.dat",
}

// Recognizer is both a vision.Locator and a vision.Extractor.
type Recognizer struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// New loads the dlib models from dir.
func New(dir string) (*Recognizer, error) {
	paths := make([]string, len(ModelFiles))
	for i, f := range ModelFiles {
		paths[i] = filepath.Join(dir, f)
	}
	if err := vision.RequireFiles(paths...); err != nil {
		return nil, err
	}
	rec, err := face.NewRecognizer(dir)
	if err != nil {
		return nil, fmt.Errorf("init dlib recognizer: %w", err)
	}
	return &Recognizer{rec: rec}, nil
}

// Locate finds every face and computes its descriptor in one pass.
func (r *Recognizer) Locate(img image.Image) ([]types.Face, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	found, err := r.rec.Recognize(data)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	faces := make([]types.Face, len(found))
	for i, f := range found {
		emb := types.Embedding(f.Descriptor)
		faces[i] = types.Face{Box: f.Rectangle, Confidence: 1, Embedding: &emb}
	}
	return faces, nil
}

// Extract computes the descriptor of the face inside box. Other detectors'
// boxes are tight, so the crop is padded before dlib re-detects in it.
func (r *Recognizer) Extract(img image.Image, box image.Rectangle) (types.Embedding, error) {
	pad := box.Dx() / 4
	crop := vision.Crop(img, box.Inset(-pad))
	data, err := encodeJPEG(crop)
	if err != nil {
		return types.Embedding{}, err
	}

	r.mu.Lock()
	f, err := r.rec.RecognizeSingle(data)
	r.mu.Unlock()
	if err != nil {
		return types.Embedding{}, fmt.Errorf("dlib recognize: %w", err)
	}
	if f == nil {
		return types.Embedding{}, types.ErrNoFaceDetected
	}
	return types.Embedding(f.Descriptor), nil
}

// Close frees the dlib models.
func (r *Recognizer) Close() error {
	r.rec.Close()
	return nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
