// Package enroll turns a single frame into a new gallery identity.
package enroll

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/faceroll/internal/capture"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/vision"
)

// Prompter asks the user for the new identity's name. ok is false when the
// user cancelled.
type Prompter interface {
	PromptName(ctx context.Context) (name string, ok bool, err error)
}

// FaceFinder returns the first face in a frame and its embedding.
// *vision.Analyzer satisfies it.
type FaceFinder interface {
	First(img image.Image) (types.Face, types.Embedding, error)
}

// Enroller persists a new identity. *gallery.Gallery satisfies it.
type Enroller interface {
	Enroll(ctx context.Context, name string, emb types.Embedding) error
}

// Workflow wires detection, the name prompt and the gallery together.
type Workflow struct {
	Faces    FaceFinder
	Gallery  Enroller
	Prompter Prompter

	// CaptureDir receives captured_face.png after a successful enrollment.
	// Empty disables it.
	CaptureDir string
	Log        *slog.Logger
}

// Result describes a completed enrollment.
type Result struct {
	Name     string
	Face     types.Face
	CropPath string
}

// Enroll locates the first face in frame, asks for a name and adds it to
// the gallery. It returns types.ErrNoFaceDetected or
// types.ErrEnrollmentCancelled without touching the gallery.
func (w *Workflow) Enroll(ctx context.Context, frame image.Image) (Result, error) {
	log := w.Log
	if log == nil {
		log = slog.Default()
	}

	face, emb, err := w.Faces.First(frame)
	if err != nil {
		return Result{}, err
	}

	name, ok, err := w.Prompter.PromptName(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("prompt for name: %w", err)
	}
	if !ok {
		return Result{}, types.ErrEnrollmentCancelled
	}
	name = strings.TrimSpace(name)

	if err := w.Gallery.Enroll(ctx, name, emb); err != nil {
		return Result{}, err
	}
	res := Result{Name: name, Face: face}

	if w.CaptureDir != "" {
		path, err := capture.SaveStill(w.CaptureDir, capture.FaceName, vision.Crop(frame, face.Box))
		if err != nil {
			// the identity is already stored; a missing crop is cosmetic
			log.Warn("saving face crop failed", "error", err)
		} else {
			res.CropPath = path
		}
	}
	log.Info("enrolled", "name", name, "box", face.Box)
	return res, nil
}

// Static answers every prompt with a fixed name.
type Static string

func (s Static) PromptName(ctx context.Context) (string, bool, error) {
	return string(s), true, nil
}

// Cancel always cancels. Useful for dry runs.
type Cancel struct{}

func (Cancel) PromptName(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

// LinePrompter reads the name from a line-oriented stream such as a
// terminal. End of input counts as cancel.
type LinePrompter struct {
	In     io.Reader
	Out    io.Writer
	Prompt string

	r *bufio.Reader
}

func (p *LinePrompter) PromptName(ctx context.Context) (string, bool, error) {
	if p.r == nil {
		p.r = bufio.NewReader(p.In)
	}
	prompt := p.Prompt
	if prompt == "" {
		prompt = "Enter the person's name: "
	}
	if p.Out != nil {
		fmt.Fprint(p.Out, prompt)
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.r.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", false, nil
	case a := <-ch:
		if a.err != nil && !(errors.Is(a.err, io.EOF) && a.line != "") {
			if errors.Is(a.err, io.EOF) {
				return "", false, nil
			}
			return "", false, a.err
		}
		return strings.TrimRight(a.line, "\r\n"), true, nil
	}
}

// NameFromFile derives an identity from a photo file name:
// "Ada_Lovelace.jpg" becomes "Ada Lovelace".
func NameFromFile(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
}
