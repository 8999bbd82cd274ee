package vision

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/types"
)

type fakeLocator struct {
	faces []types.Face
	err   error
}

func (f fakeLocator) Locate(img image.Image) ([]types.Face, error) { return f.faces, f.err }

type fakeExtractor struct {
	byX   map[int]types.Embedding
	calls int
}

func (f *fakeExtractor) Extract(img image.Image, box image.Rectangle) (types.Embedding, error) {
	f.calls++
	return f.byX[box.Min.X], nil
}

type staticGallery []types.GalleryEntry

func (g staticGallery) Match(q types.Embedding) matcher.Result {
	return matcher.New(matcher.DefaultThreshold).Match(q, g)
}

func vec(v float32) types.Embedding {
	var e types.Embedding
	e[0] = v
	return e
}

func TestAnalyzeLabelsEachFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	loc := fakeLocator{faces: []types.Face{
		{Box: image.Rect(0, 0, 10, 10)},
		{Box: image.Rect(50, 50, 60, 60)},
	}}
	ext := &fakeExtractor{byX: map[int]types.Embedding{0: vec(0), 50: vec(5)}}
	a := &Analyzer{Locator: loc, Extractor: ext, Identifier: staticGallery{{Name: "Alice", Embedding: vec(0.1)}}}

	dets, err := a.Analyze(img)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(dets))
	}
	if got := dets[0].Match.Label(); got != "Alice" {
		t.Errorf("Expected first face Alice, got %s", got)
	}
	if got := dets[1].Match.Label(); got != matcher.UnknownLabel {
		t.Errorf("Expected second face unknown, got %s", got)
	}
}

func TestAnalyzeUsesLocatorEmbeddings(t *testing.T) {
	e := vec(0)
	loc := fakeLocator{faces: []types.Face{{Box: image.Rect(0, 0, 5, 5), Embedding: &e}}}
	ext := &fakeExtractor{}
	a := &Analyzer{Locator: loc, Extractor: ext, Identifier: staticGallery{{Name: "Bob", Embedding: vec(0)}}}

	dets, err := a.Analyze(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if ext.calls != 0 {
		t.Errorf("Extractor should not run when the locator already embedded, ran %d times", ext.calls)
	}
	if dets[0].Match.Label() != "Bob" {
		t.Errorf("Expected Bob, got %s", dets[0].Match.Label())
	}
}

func TestAnalyzeDetectionOnly(t *testing.T) {
	loc := fakeLocator{faces: []types.Face{{Box: image.Rect(0, 0, 5, 5), Confidence: 0.9}}}
	a := &Analyzer{Locator: loc}
	dets, err := a.Analyze(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatal(err)
	}
	if dets[0].Recognized {
		t.Error("Detection-only analyzer must not mark faces recognized")
	}
}

func TestFirstNoFace(t *testing.T) {
	a := &Analyzer{Locator: fakeLocator{}, Extractor: &fakeExtractor{}}
	_, _, err := a.First(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	if !errors.Is(err, types.ErrNoFaceDetected) {
		t.Errorf("Expected ErrNoFaceDetected, got %v", err)
	}
}

func TestFirstPicksFirstFace(t *testing.T) {
	loc := fakeLocator{faces: []types.Face{{Box: image.Rect(20, 0, 30, 10)}, {Box: image.Rect(0, 0, 10, 10)}}}
	ext := &fakeExtractor{byX: map[int]types.Embedding{20: vec(2), 0: vec(9)}}
	a := &Analyzer{Locator: loc, Extractor: ext}
	f, emb, err := a.First(image.NewRGBA(image.Rect(0, 0, 40, 40)))
	if err != nil {
		t.Fatal(err)
	}
	if f.Box.Min.X != 20 || emb != vec(2) {
		t.Errorf("Expected the first located face, got box %v", f.Box)
	}
}

func TestRequireFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "deploy.prototxt.txt")
	if err := os.WriteFile(present, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := RequireFiles(present); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	err := RequireFiles(present, filepath.Join(dir, "res10_300x300_ssd_iter_140000.caffemodel"))
	if !errors.Is(err, types.ErrModelMissing) {
		t.Errorf("Expected ErrModelMissing, got %v", err)
	}
	if err := RequireFiles(dir); !errors.Is(err, types.ErrModelMissing) {
		t.Errorf("A directory is not a model file, got %v", err)
	}
}

func TestCropClipsToBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	c := Crop(img, image.Rect(15, 15, 40, 40))
	if c.Bounds().Dx() != 5 || c.Bounds().Dy() != 5 {
		t.Errorf("Expected 5x5 crop, got %v", c.Bounds())
	}
}
