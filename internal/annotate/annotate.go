// Package annotate draws detection boxes and identity labels onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/andresmejia3/faceroll/internal/vision"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Green = color.RGBA{0, 255, 0, 255}
	Red   = color.RGBA{255, 0, 0, 255}
)

// Thickness of every box outline in pixels.
const Thickness = 2

// ToRGBA returns img as an *image.RGBA, copying unless it already is one.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Frame copies img and draws every detection on the copy.
func Frame(img image.Image, dets []vision.Detection) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	Draw(dst, dets)
	return dst
}

// Draw annotates dst in place.
func Draw(dst *image.RGBA, dets []vision.Detection) {
	for _, d := range dets {
		text, c := LabelFor(d)
		Box(dst, d.Box, c, Thickness)
		Label(dst, d.Box, text, c)
	}
}

// LabelFor picks the caption and colour of a detection: the identity name in
// green, "unknown" in red, or the detector confidence when nothing was
// recognized.
func LabelFor(d vision.Detection) (string, color.RGBA) {
	if !d.Recognized {
		return fmt.Sprintf("%.2f%%", d.Confidence*100), Green
	}
	if d.Match.Known {
		return d.Match.Label(), Green
	}
	return d.Match.Label(), Red
}

// Box strokes the outline of r.
func Box(dst *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Canon()
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), u, image.Point{}, draw.Src)
	}
}

// Label writes text above box, or just inside its top edge when the box
// touches the top of the frame.
func Label(dst *image.RGBA, box image.Rectangle, text string, c color.Color) {
	y := box.Min.Y - 10
	if y <= 10 {
		y = box.Min.Y + 10 + basicfont.Face7x13.Ascent
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(box.Min.X, y),
	}
	d.DrawString(text)
}
