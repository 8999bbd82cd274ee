package capture

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/faceroll/internal/types"
)

func TestSliceSource(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src := NewSliceSource("test", a)

	img, err := src.Read()
	if err != nil || img != a {
		t.Fatalf("Expected first frame, got %v, %v", img, err)
	}
	if _, err := src.Read(); !errors.Is(err, types.ErrEndOfStream) {
		t.Errorf("Expected ErrEndOfStream, got %v", err)
	}

	src.Close()
	if !src.Closed() {
		t.Error("Expected source to report closed")
	}
	if _, err := src.Read(); !types.IsDevice(err) {
		t.Errorf("Expected DeviceError after close, got %v", err)
	}
}

func TestSaveStillOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captured_photos")

	small := image.NewRGBA(image.Rect(0, 0, 4, 4))
	path, err := SaveStill(dir, PhotoName, small)
	if err != nil {
		t.Fatalf("SaveStill failed: %v", err)
	}
	if filepath.Base(path) != "photo.png" {
		t.Errorf("Expected photo.png, got %s", path)
	}

	big := image.NewRGBA(image.Rect(0, 0, 16, 8))
	if _, err := SaveStill(dir, PhotoName, big); err != nil {
		t.Fatalf("second SaveStill failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected a single overwritten file, got %d", len(entries))
	}

	img, err := OpenImage(path)
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
		t.Errorf("Expected the second capture on disk, got %v", img.Bounds())
	}
}

func TestPreviewSize(t *testing.T) {
	p := Preview(image.NewRGBA(image.Rect(0, 0, 1280, 720)))
	if p.Bounds().Dx() != 400 || p.Bounds().Dy() != 300 {
		t.Errorf("Expected 400x300 preview, got %v", p.Bounds())
	}
}

func TestYUYVToImage(t *testing.T) {
	// Two pixels: Y0=16 U=128 Y1=235 V=128 -> black then white
	frame := []byte{16, 128, 235, 128}
	img, err := yuyvToImage(frame, 2, 1)
	if err != nil {
		t.Fatalf("yuyvToImage failed: %v", err)
	}
	r0, _, _, _ := img.At(0, 0).RGBA()
	r1, _, _, _ := img.At(1, 0).RGBA()
	if r0 > r1 {
		t.Errorf("Expected first pixel darker than second, got %d vs %d", r0, r1)
	}
	if y := color.GrayModel.Convert(img.At(1, 0)).(color.Gray).Y; y < 200 {
		t.Errorf("Expected bright second pixel, got %d", y)
	}

	if _, err := yuyvToImage(frame[:2], 2, 1); err == nil {
		t.Error("Expected error for short frame")
	}
}
