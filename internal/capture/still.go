package capture

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const (
	// PhotoName is the full-frame capture, overwritten on every capture.
	PhotoName = "photo.png"
	// FaceName is the face crop saved on enrollment.
	FaceName = "captured_face.png"

	previewWidth  = 400
	previewHeight = 300
)

// SaveStill writes img as dir/name, replacing any previous file of that name.
func SaveStill(dir, name string, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// Preview scales a still down to the fixed preview size.
func Preview(img image.Image) *image.NRGBA {
	return imaging.Resize(img, previewWidth, previewHeight, imaging.Lanczos)
}

// OpenImage loads a still from disk, honouring EXIF orientation.
func OpenImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return img, nil
}
