// Package vision ties a face locator and an embedding extractor to the
// gallery matcher. Concrete backends live in sub-packages so that the core
// stays free of cgo.
package vision

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/types"
)

// Locator finds face bounding boxes in an image. Backends that compute
// embeddings while locating may fill Face.Embedding.
type Locator interface {
	Locate(img image.Image) ([]types.Face, error)
}

// Extractor computes the embedding of one located face.
type Extractor interface {
	Extract(img image.Image, box image.Rectangle) (types.Embedding, error)
}

// Identifier resolves an embedding to a gallery identity.
type Identifier interface {
	Match(query types.Embedding) matcher.Result
}

// Detection is the per-face outcome of one analysis pass.
type Detection struct {
	types.Face
	Match matcher.Result

	// Recognized is false when no extractor ran (detection-only mode).
	Recognized bool
}

// Analyzer runs locate, extract and match over a frame.
type Analyzer struct {
	Locator    Locator
	Extractor  Extractor // nil means detection only
	Identifier Identifier
}

// Analyze locates every face in img and, when an extractor is configured,
// labels each one with its gallery match.
func (a *Analyzer) Analyze(img image.Image) ([]Detection, error) {
	faces, err := a.Locator.Locate(img)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}

	dets := make([]Detection, 0, len(faces))
	for _, f := range faces {
		d := Detection{Face: f, Match: matcher.Result{Index: -1}}
		if a.Extractor != nil || f.Embedding != nil {
			emb, err := a.embed(img, f)
			if err != nil {
				return nil, fmt.Errorf("extract embedding: %w", err)
			}
			d.Embedding = &emb
			d.Recognized = true
			if a.Identifier != nil {
				d.Match = a.Identifier.Match(emb)
			}
		}
		dets = append(dets, d)
	}
	return dets, nil
}

// First locates faces and returns the embedding of the first one, which is
// what enrollment and the upload endpoint use.
func (a *Analyzer) First(img image.Image) (types.Face, types.Embedding, error) {
	faces, err := a.Locator.Locate(img)
	if err != nil {
		return types.Face{}, types.Embedding{}, fmt.Errorf("locate faces: %w", err)
	}
	if len(faces) == 0 {
		return types.Face{}, types.Embedding{}, types.ErrNoFaceDetected
	}
	f := faces[0]
	emb, err := a.embed(img, f)
	if err != nil {
		return f, types.Embedding{}, fmt.Errorf("extract embedding: %w", err)
	}
	return f, emb, nil
}

var errNoExtractor = errors.New("no embedding extractor configured")

func (a *Analyzer) embed(img image.Image, f types.Face) (types.Embedding, error) {
	if f.Embedding != nil {
		return *f.Embedding, nil
	}
	if a.Extractor == nil {
		return types.Embedding{}, errNoExtractor
	}
	return a.Extractor.Extract(img, f.Box)
}

// RequireFiles returns ErrModelMissing naming the first path that is not a
// readable file.
func RequireFiles(paths ...string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s", types.ErrModelMissing, p)
		}
	}
	return nil
}

// Crop returns the part of img inside box, clipped to the image bounds.
func Crop(img image.Image, box image.Rectangle) image.Image {
	box = box.Intersect(img.Bounds())
	if s, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return s.SubImage(box)
	}
	dst := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < box.Dx(); x++ {
			dst.Set(x, y, img.At(box.Min.X+x, box.Min.Y+y))
		}
	}
	return dst
}
